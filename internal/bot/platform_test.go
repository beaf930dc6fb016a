package bot

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestIsNotFound(t *testing.T) {
	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}

	if !isNotFound(notFound) {
		t.Fatalf("404 should be not found")
	}
	if !isNotFound(fmt.Errorf("lookup: %w", notFound)) {
		t.Fatalf("wrapped 404 should be not found")
	}
	if isNotFound(forbidden) || isNotFound(errors.New("timeout")) || isNotFound(nil) {
		t.Fatalf("only 404 responses count as not found")
	}
}

func TestHasGuildUsesState(t *testing.T) {
	state := discordgo.NewState()
	if err := state.GuildAdd(&discordgo.Guild{ID: "g1"}); err != nil {
		t.Fatalf("guild add: %v", err)
	}
	if err := state.GuildAdd(&discordgo.Guild{ID: "g2", Unavailable: true}); err != nil {
		t.Fatalf("guild add: %v", err)
	}
	platform := &discordPlatform{session: &discordgo.Session{State: state}}

	if !platform.HasGuild("g1") {
		t.Fatalf("expected g1 available")
	}
	if platform.HasGuild("g2") || platform.HasGuild("g3") {
		t.Fatalf("unavailable and unknown guilds must report false")
	}
}
