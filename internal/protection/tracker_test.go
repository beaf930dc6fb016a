package protection

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func joinAt(id string, base time.Time, seconds int) JoinRecord {
	return JoinRecord{IdentityID: id, DisplayName: id, JoinedAt: base.Add(time.Duration(seconds) * time.Second)}
}

func TestPruneBoundary(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	retention := 300 * time.Second

	tracker := NewTracker(retention)
	tracker.RecordJoin("g1", joinAt("u0", base, 0))
	tracker.RecordJoin("g1", joinAt("u10", base, 10))
	tracker.RecordJoin("g1", joinAt("u300", base, 300))

	if removed := tracker.Prune("g1", base.Add(300*time.Second), retention); removed != 0 {
		t.Fatalf("entry exactly at the retention edge must be kept, removed %d", removed)
	}
	if removed := tracker.Prune("g1", base.Add(301*time.Second), retention); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	window := tracker.Window("g1", base.Add(301*time.Second), retention)
	if len(window) != 2 || window[0].IdentityID != "u10" || window[1].IdentityID != "u300" {
		t.Fatalf("unexpected remaining window %+v", window)
	}
}

func TestPruneUnknownGuild(t *testing.T) {
	tracker := NewTracker(time.Minute)
	if removed := tracker.Prune("missing", time.Now(), time.Minute); removed != 0 {
		t.Fatalf("expected 0, got %d", removed)
	}
}

func TestPruneDropsEmptyGuild(t *testing.T) {
	base := time.Unix(0, 0)
	tracker := NewTracker(time.Minute)
	tracker.RecordJoin("g1", joinAt("u1", base, 0))

	tracker.Prune("g1", base.Add(2*time.Minute), time.Minute)
	if guilds := tracker.Guilds(); len(guilds) != 0 {
		t.Fatalf("expected no guilds, got %v", guilds)
	}
}

func TestDuplicateJoinOverwrites(t *testing.T) {
	base := time.Unix(0, 0)
	tracker := NewTracker(5 * time.Minute)
	tracker.RecordJoin("g1", joinAt("u1", base, 0))
	tracker.RecordJoin("g1", joinAt("u1", base, 50))

	if n := tracker.Len("g1"); n != 1 {
		t.Fatalf("expected 1 record, got %d", n)
	}
	window := tracker.Window("g1", base.Add(50*time.Second), time.Minute)
	if len(window) != 1 || !window[0].JoinedAt.Equal(base.Add(50*time.Second)) {
		t.Fatalf("expected overwritten join time, got %+v", window)
	}
}

func TestRecordJoinPrunesOpportunistically(t *testing.T) {
	base := time.Unix(0, 0)
	tracker := NewTracker(time.Minute)
	tracker.RecordJoin("g1", joinAt("old", base, 0))
	tracker.RecordJoin("g1", joinAt("new", base, 61))

	if n := tracker.Len("g1"); n != 1 {
		t.Fatalf("expected old join pruned on insert, got %d records", n)
	}
}

func TestWindowHorizon(t *testing.T) {
	base := time.Unix(0, 0)
	tracker := NewTracker(5 * time.Minute)
	tracker.RecordJoin("g1", joinAt("u1", base, 0))

	if n := len(tracker.Window("g1", base.Add(60*time.Second), time.Minute)); n != 1 {
		t.Fatalf("join at the horizon edge should count, got %d", n)
	}
	if n := len(tracker.Window("g1", base.Add(61*time.Second), time.Minute)); n != 0 {
		t.Fatalf("join past the horizon should not count, got %d", n)
	}
	if tracker.Window("missing", base, time.Minute) != nil {
		t.Fatalf("expected nil window for unknown guild")
	}
}

func TestRemoveGuild(t *testing.T) {
	tracker := NewTracker(time.Minute)
	tracker.RecordJoin("g1", joinAt("u1", time.Unix(0, 0), 0))
	tracker.RecordJoin("g2", joinAt("u1", time.Unix(0, 0), 0))
	tracker.Remove("g1")

	guilds := tracker.Guilds()
	if len(guilds) != 1 || guilds[0] != "g2" {
		t.Fatalf("expected only g2, got %v", guilds)
	}
}

func TestTrackerConcurrentJoinsAndPrunes(t *testing.T) {
	base := time.Unix(0, 0)
	tracker := NewTracker(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tracker.RecordJoin("g1", joinAt(fmt.Sprintf("u%d-%d", worker, j), base, j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tracker.Prune("g1", base.Add(time.Minute), time.Hour)
				_ = tracker.Window("g1", base.Add(time.Minute), time.Hour)
			}
		}()
	}
	wg.Wait()

	if n := tracker.Len("g1"); n != 400 {
		t.Fatalf("expected 400 records, got %d", n)
	}
}
