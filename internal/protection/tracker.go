package protection

import (
	"sort"
	"sync"
	"time"
)

// JoinRecord is one member join kept for raid evaluation.
// AvatarSignature is the custom avatar hash, empty for a default avatar.
type JoinRecord struct {
	IdentityID       string
	DisplayName      string
	AvatarSignature  string
	AccountCreatedAt time.Time
	JoinedAt         time.Time
}

// Tracker keeps the recent joins of every guild, at most one record per
// member. Lock order is registry then window.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	windows   map[string]*joinWindow
}

type joinWindow struct {
	mu      sync.Mutex
	records map[string]JoinRecord
}

func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		retention: retention,
		windows:   make(map[string]*joinWindow),
	}
}

// RecordJoin stores a join, overwriting an earlier join of the same member,
// and prunes the guild relative to the join time.
func (t *Tracker) RecordJoin(guildID string, rec JoinRecord) {
	if guildID == "" || rec.IdentityID == "" {
		return
	}

	t.mu.Lock()
	w := t.windows[guildID]
	if w == nil {
		w = &joinWindow{records: make(map[string]JoinRecord)}
		t.windows[guildID] = w
	}
	w.mu.Lock()
	t.mu.Unlock()

	w.records[rec.IdentityID] = rec
	w.pruneLocked(rec.JoinedAt, t.retention)
	w.mu.Unlock()
}

// Prune drops records older than retention and returns how many were
// removed. A record exactly retention old is kept. Unknown guilds are a no-op.
func (t *Tracker) Prune(guildID string, now time.Time, retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[guildID]
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := w.pruneLocked(now, retention)
	if len(w.records) == 0 {
		delete(t.windows, guildID)
	}
	return removed
}

// Window returns the records that joined within horizon of now, oldest first.
func (t *Tracker) Window(guildID string, now time.Time, horizon time.Duration) []JoinRecord {
	w := t.lookup(guildID)
	if w == nil {
		return nil
	}
	w.mu.Lock()
	out := make([]JoinRecord, 0, len(w.records))
	for _, rec := range w.records {
		if now.Sub(rec.JoinedAt) <= horizon {
			out = append(out, rec)
		}
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].IdentityID < out[j].IdentityID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (t *Tracker) Len(guildID string) int {
	w := t.lookup(guildID)
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Remove forgets a guild entirely, used when the bot leaves it.
func (t *Tracker) Remove(guildID string) {
	t.mu.Lock()
	delete(t.windows, guildID)
	t.mu.Unlock()
}

func (t *Tracker) Guilds() []string {
	t.mu.Lock()
	guilds := make([]string, 0, len(t.windows))
	for guildID := range t.windows {
		guilds = append(guilds, guildID)
	}
	t.mu.Unlock()
	sort.Strings(guilds)
	return guilds
}

func (t *Tracker) lookup(guildID string) *joinWindow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.windows[guildID]
}

func (w *joinWindow) pruneLocked(now time.Time, retention time.Duration) int {
	removed := 0
	for id, rec := range w.records {
		if now.Sub(rec.JoinedAt) > retention {
			delete(w.records, id)
			removed++
		}
	}
	return removed
}
