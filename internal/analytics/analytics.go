package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"raidguard/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

// History is every moderation action recorded for one member, newest first.
type History struct {
	Entries  []storage.ModerationAction
	ByAction map[string]int
}

func (s *Service) History(ctx context.Context, guildID, userID string) (History, error) {
	entries, err := s.store.ListModerationActions(ctx, guildID, userID)
	if err != nil {
		return History{}, err
	}

	history := History{Entries: entries, ByAction: make(map[string]int)}
	for _, entry := range entries {
		history.ByAction[entry.Action]++
	}
	return history, nil
}

func (h History) Total() int {
	return len(h.Entries)
}

// Counts renders the per-action tally, e.g. "ban: 1, kick: 2".
func (h History) Counts() string {
	actions := make([]string, 0, len(h.ByAction))
	for action := range h.ByAction {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	parts := make([]string, 0, len(actions))
	for _, action := range actions {
		parts = append(parts, fmt.Sprintf("%s: %d", action, h.ByAction[action]))
	}
	return strings.Join(parts, ", ")
}
