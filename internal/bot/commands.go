package bot

import "github.com/bwmarrin/discordgo"

func commandDefinitions() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	kick := int64(discordgo.PermissionKickMembers)
	ban := int64(discordgo.PermissionBanMembers)
	moderate := int64(discordgo.PermissionModerateMembers)
	dmAllowed := false
	minThreshold := 1.0

	userOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: description,
			Required:    true,
		}
	}
	reasonOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Why the action is taken",
	}
	toggle := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        name,
			Description: description,
		}
	}
	threshold := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        name,
			Description: description,
			MinValue:    &minThreshold,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "raidmode",
			Description:              "View or change anti-raid protection",
			DefaultMemberPermissions: &admin,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				toggle("enabled", "Kick suspicious members when a join spike happens"),
				threshold("spike_threshold", "Joins within the spike window that count as a raid"),
				threshold("action_threshold", "Suspicion score at which a member is kicked"),
				toggle("check_username", "Score suspicious usernames"),
				toggle("check_account_age", "Score accounts younger than a day"),
				toggle("check_avatar", "Score default avatars"),
				toggle("check_similarity", "Score lookalike names and shared avatars"),
			},
		},
		{
			Name:                     "setlogchannel",
			Description:              "Set the channel for moderation and anti-raid logs",
			DefaultMemberPermissions: &admin,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Log channel",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:                     "history",
			Description:              "Show a member's moderation history",
			DefaultMemberPermissions: &kick,
			DMPermission:             &dmAllowed,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to look up")},
		},
		{
			Name:                     "kick",
			Description:              "Kick a member",
			DefaultMemberPermissions: &kick,
			DMPermission:             &dmAllowed,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to kick"), reasonOption},
		},
		{
			Name:                     "ban",
			Description:              "Ban a member",
			DefaultMemberPermissions: &ban,
			DMPermission:             &dmAllowed,
			Options:                  []*discordgo.ApplicationCommandOption{userOption("Member to ban"), reasonOption},
		},
		{
			Name:                     "timeout",
			Description:              "Time out a member",
			DefaultMemberPermissions: &moderate,
			DMPermission:             &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				userOption("Member to time out"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "How long, e.g. 30s, 10m, 1h, 1d",
					Required:    true,
				},
				reasonOption,
			},
		},
		{
			Name:        "status",
			Description: "Show bot and protection status",
		},
	}
}

// registerCommands syncs the global commands: edits existing ones, creates
// missing ones and deletes stale ones, including stale guild commands.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildCmds, err := b.session.ApplicationCommands(appID, guild.ID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := desired[cmd.Name]; ok {
				continue
			}
			_ = b.session.ApplicationCommandDelete(appID, guild.ID, cmd.ID)
		}
	}
	return nil
}
