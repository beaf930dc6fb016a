package sysinfo

import (
	"context"
	"strings"
	"testing"
)

func TestCollectFillsRuntimeFields(t *testing.T) {
	snap, _ := Collect(context.Background())
	if snap.Goroutines <= 0 || !strings.HasPrefix(snap.GoVersion, "go") {
		t.Fatalf("runtime fields missing: %+v", snap)
	}
}

func TestFormatting(t *testing.T) {
	snap := Snapshot{CPUPercent: 12.34, CPUCount: 4, MemUsedPct: 50, MemUsedMB: 512, MemTotalMB: 1024}
	if got := snap.CPU(); got != "12.3% of 4 cores" {
		t.Fatalf("unexpected cpu %q", got)
	}
	if got := snap.Memory(); got != "50.0% (512 MB / 1024 MB)" {
		t.Fatalf("unexpected memory %q", got)
	}
}
