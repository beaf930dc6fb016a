package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func member(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id}, Roles: roles}
}

func TestHasPermission(t *testing.T) {
	if !hasPermission(discordgo.PermissionKickMembers, discordgo.PermissionKickMembers) {
		t.Fatalf("exact permission should pass")
	}
	if !hasPermission(discordgo.PermissionAdministrator, discordgo.PermissionBanMembers) {
		t.Fatalf("administrator implies every permission")
	}
	if hasPermission(discordgo.PermissionKickMembers, discordgo.PermissionBanMembers) {
		t.Fatalf("kick must not imply ban")
	}
}

func TestCanModerate(t *testing.T) {
	guild := &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "mod", Position: 5},
			{ID: "helper", Position: 3},
			{ID: "member", Position: 1},
		},
	}

	cases := []struct {
		name   string
		actor  *discordgo.Member
		target *discordgo.Member
		want   bool
	}{
		{"higher role", member("a", "mod"), member("b", "helper"), true},
		{"equal role", member("a", "helper"), member("b", "helper", "member"), false},
		{"lower role", member("a", "member"), member("b", "mod"), false},
		{"owner actor", member("owner"), member("b", "mod"), true},
		{"owner target", member("a", "mod"), member("owner"), false},
		{"self", member("a", "mod"), member("a", "mod"), false},
		{"not a member", member("a"), nil, true},
	}
	for _, tc := range cases {
		if got := canModerate(guild, tc.actor, tc.target); got != tc.want {
			t.Fatalf("%s: expected %t, got %t", tc.name, tc.want, got)
		}
	}
}

func TestInteractionUserID(t *testing.T) {
	guildCtx := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: member("m1")}}
	if interactionUserID(guildCtx) != "m1" {
		t.Fatalf("expected member id")
	}
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u1"}}}
	if interactionUserID(dm) != "u1" || interactionPermissions(dm) != 0 {
		t.Fatalf("expected user id and no permissions outside a guild")
	}
}
