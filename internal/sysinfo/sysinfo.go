package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of the host the bot runs on. Fields that
// could not be read are left zero.
type Snapshot struct {
	CPUPercent    float64
	CPUCount      int
	MemUsedPct    float64
	MemUsedMB     uint64
	MemTotalMB    uint64
	HostUptime    time.Duration
	Goroutines    int
	GoVersion     string
	ProcessUptime time.Duration
}

var started = time.Now()

// Collect reads host stats. The first error is returned alongside whatever
// was collected.
func Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		ProcessUptime: time.Since(started),
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if percent, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		keep(fmt.Errorf("cpu percent: %w", err))
	} else if len(percent) > 0 {
		snap.CPUPercent = percent[0]
	}
	if count, err := cpu.CountsWithContext(ctx, true); err != nil {
		keep(fmt.Errorf("cpu count: %w", err))
	} else {
		snap.CPUCount = count
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		keep(fmt.Errorf("memory: %w", err))
	} else {
		snap.MemUsedPct = vm.UsedPercent
		snap.MemUsedMB = vm.Used / 1024 / 1024
		snap.MemTotalMB = vm.Total / 1024 / 1024
	}
	if uptime, err := host.UptimeWithContext(ctx); err != nil {
		keep(fmt.Errorf("uptime: %w", err))
	} else {
		snap.HostUptime = time.Duration(uptime) * time.Second
	}

	return snap, firstErr
}

func (s Snapshot) CPU() string {
	return fmt.Sprintf("%.1f%% of %d cores", s.CPUPercent, s.CPUCount)
}

func (s Snapshot) Memory() string {
	return fmt.Sprintf("%.1f%% (%d MB / %d MB)", s.MemUsedPct, s.MemUsedMB, s.MemTotalMB)
}
