package bot

import "github.com/bwmarrin/discordgo"

func hasPermission(perms, flag int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&flag == flag
}

func interactionPermissions(interaction *discordgo.InteractionCreate) int64 {
	if interaction.Member == nil {
		return 0
	}
	return interaction.Member.Permissions
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func topRolePosition(guild *discordgo.Guild, member *discordgo.Member) int {
	if guild == nil || member == nil {
		return 0
	}
	positions := make(map[string]int, len(guild.Roles))
	for _, role := range guild.Roles {
		positions[role.ID] = role.Position
	}
	top := 0
	for _, roleID := range member.Roles {
		if pos, ok := positions[roleID]; ok && pos > top {
			top = pos
		}
	}
	return top
}

// canModerate reports whether actor outranks target. The owner outranks
// everyone and cannot be targeted. A target that is not a member is fair game.
func canModerate(guild *discordgo.Guild, actor, target *discordgo.Member) bool {
	if guild == nil || actor == nil || actor.User == nil {
		return false
	}
	if target == nil || target.User == nil {
		return true
	}
	if target.User.ID == guild.OwnerID || target.User.ID == actor.User.ID {
		return false
	}
	if actor.User.ID == guild.OwnerID {
		return true
	}
	return topRolePosition(guild, actor) > topRolePosition(guild, target)
}
