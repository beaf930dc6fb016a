package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raidguard/internal/analytics"
	"raidguard/internal/modules/audit"
	"raidguard/internal/storage"
	"raidguard/internal/sysinfo"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	defaultReason  = "No reason given"
	historyEntries = 10
)

type optionMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func mapOptions(options []*discordgo.ApplicationCommandInteractionDataOption) optionMap {
	out := make(optionMap, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (o optionMap) string(name, fallback string) string {
	if opt, ok := o[name]; ok {
		if value := strings.TrimSpace(opt.StringValue()); value != "" {
			return value
		}
	}
	return fallback
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	if interaction.GuildID == "" && data.Name != "status" {
		b.respondError(session, interaction, data.Name, "This command only works in a server.")
		return
	}

	options := mapOptions(data.Options)
	switch data.Name {
	case "raidmode":
		b.handleRaidMode(ctx, session, interaction, options)
	case "setlogchannel":
		b.handleSetLogChannel(ctx, session, interaction, options)
	case "history":
		b.handleHistory(ctx, session, interaction, options)
	case "kick", "ban", "timeout":
		b.handleModeration(ctx, session, interaction, data.Name, options)
	case "status":
		b.handleStatus(ctx, session, interaction)
	}
}

func (b *Bot) handleRaidMode(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionMap) {
	if !hasPermission(interactionPermissions(interaction), discordgo.PermissionAdministrator) {
		b.respondError(session, interaction, "Anti-raid", "Only administrators can change anti-raid settings.")
		return
	}

	if len(options) == 0 {
		settings := b.protectionSettings(ctx, interaction.GuildID)
		b.respondEmbed(session, interaction, raidModeEmbed(settings, "Current anti-raid settings."), true)
		return
	}

	settings, err := b.updateSettings(ctx, interaction.GuildID, func(settings *storage.ProtectionSettings) {
		applyRaidModeOptions(settings, options)
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidThreshold) {
			b.respondError(session, interaction, "Anti-raid", "Thresholds must be positive whole numbers.")
			return
		}
		if errors.Is(err, errSettingsUnavailable) {
			b.logger.Warn("raidmode settings read failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
			b.respondError(session, interaction, "Anti-raid", "Settings could not be loaded.")
			return
		}
		b.logger.Warn("raidmode update failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondError(session, interaction, "Anti-raid", "Settings could not be saved.")
		return
	}

	b.logger.Info("raidmode updated",
		zap.String("guild_id", interaction.GuildID),
		zap.String("user_id", interactionUserID(interaction)),
		zap.Bool("enabled", settings.ModeEnabled),
		zap.Int("spike_threshold", settings.SpikeThreshold),
		zap.Int("action_threshold", settings.ActionThreshold),
	)
	b.respondEmbed(session, interaction, raidModeEmbed(settings, "Anti-raid settings updated."), true)
}

func applyRaidModeOptions(settings *storage.ProtectionSettings, options optionMap) {
	if opt, ok := options["enabled"]; ok {
		settings.ModeEnabled = opt.BoolValue()
	}
	// an action threshold still equal to the spike threshold moves with it
	// unless it is given explicitly
	following := settings.ActionThreshold == settings.SpikeThreshold
	if opt, ok := options["spike_threshold"]; ok {
		settings.SpikeThreshold = int(opt.IntValue())
		if following {
			settings.ActionThreshold = settings.SpikeThreshold
		}
	}
	if opt, ok := options["action_threshold"]; ok {
		settings.ActionThreshold = int(opt.IntValue())
	}
	if opt, ok := options["check_username"]; ok {
		settings.CheckUsername = opt.BoolValue()
	}
	if opt, ok := options["check_account_age"]; ok {
		settings.CheckAccountAge = opt.BoolValue()
	}
	if opt, ok := options["check_avatar"]; ok {
		settings.CheckAvatar = opt.BoolValue()
	}
	if opt, ok := options["check_similarity"]; ok {
		settings.CheckSimilarity = opt.BoolValue()
	}
}

func raidModeEmbed(settings storage.ProtectionSettings, description string) *discordgo.MessageEmbed {
	logChannel := "not set"
	if settings.LogChannelID != "" {
		logChannel = "<#" + settings.LogChannelID + ">"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Protection", Value: onOff(settings.ModeEnabled), Inline: true},
		{Name: "Spike threshold", Value: fmt.Sprintf("%d joins", settings.SpikeThreshold), Inline: true},
		{Name: "Action threshold", Value: fmt.Sprintf("score %d", settings.ActionThreshold), Inline: true},
		{Name: "Username check", Value: onOff(settings.CheckUsername), Inline: true},
		{Name: "Account age check", Value: onOff(settings.CheckAccountAge), Inline: true},
		{Name: "Avatar check", Value: onOff(settings.CheckAvatar), Inline: true},
		{Name: "Similarity check", Value: onOff(settings.CheckSimilarity), Inline: true},
		{Name: "Log channel", Value: logChannel, Inline: true},
	}
	color := colorInfo
	if settings.ModeEnabled {
		color = colorAction
	}
	return commandEmbed("🛡️ Anti-raid", description, color, fields)
}

func onOff(value bool) string {
	if value {
		return "✅ on"
	}
	return "❌ off"
}

func (b *Bot) handleSetLogChannel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionMap) {
	if !hasPermission(interactionPermissions(interaction), discordgo.PermissionAdministrator) {
		b.respondError(session, interaction, "Log channel", "Only administrators can set the log channel.")
		return
	}
	opt, ok := options["channel"]
	if !ok {
		b.respondError(session, interaction, "Log channel", "Pick a channel.")
		return
	}
	channel := opt.ChannelValue(session)
	if channel == nil {
		b.respondError(session, interaction, "Log channel", "That channel could not be found.")
		return
	}

	_, err := b.updateSettings(ctx, interaction.GuildID, func(settings *storage.ProtectionSettings) {
		settings.LogChannelID = channel.ID
	})
	if err != nil {
		b.logger.Warn("log channel update failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		if errors.Is(err, errSettingsUnavailable) {
			b.respondError(session, interaction, "Log channel", "Settings could not be loaded.")
			return
		}
		b.respondError(session, interaction, "Log channel", "Settings could not be saved.")
		return
	}
	fields := []*discordgo.MessageEmbedField{{Name: "Channel", Value: "<#" + channel.ID + ">", Inline: true}}
	b.respondEmbed(session, interaction, commandEmbed("📝 Log channel", "Moderation and anti-raid logs will be posted here.", colorAction, fields), true)
}

func (b *Bot) handleHistory(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options optionMap) {
	opt, ok := options["user"]
	if !ok {
		b.respondError(session, interaction, "History", "Pick a member.")
		return
	}
	user := opt.UserValue(session)
	if user == nil {
		b.respondError(session, interaction, "History", "That member could not be found.")
		return
	}

	history, err := b.analytics.History(ctx, interaction.GuildID, user.ID)
	if err != nil {
		b.logger.Warn("history lookup failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respondError(session, interaction, "History", "History could not be loaded.")
		return
	}
	b.respondEmbed(session, interaction, historyEmbed(user, history), true)
}

func historyEmbed(user *discordgo.User, history analytics.History) *discordgo.MessageEmbed {
	title := "📋 History of " + user.Username
	if history.Total() == 0 {
		return commandEmbed(title, fmt.Sprintf("<@%s> has no moderation history.", user.ID), colorInfo, nil)
	}

	lines := make([]string, 0, historyEntries)
	for i, entry := range history.Entries {
		if i == historyEntries {
			lines = append(lines, fmt.Sprintf("…and %d more", history.Total()-historyEntries))
			break
		}
		reason := entry.Reason
		if reason == "" {
			reason = defaultReason
		}
		lines = append(lines, fmt.Sprintf("<t:%d:R> **%s** by <@%s>: %s", entry.CreatedAt.Unix(), entry.Action, entry.ActorID, reason))
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Total", Value: fmt.Sprintf("%d", history.Total()), Inline: true},
		{Name: "By action", Value: history.Counts(), Inline: true},
	}
	return commandEmbed(title, strings.Join(lines, "\n"), colorInfo, fields)
}

func (b *Bot) handleModeration(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, action string, options optionMap) {
	title := strings.ToUpper(action[:1]) + action[1:]
	if !hasPermission(interactionPermissions(interaction), moderationPermission(action)) {
		b.respondError(session, interaction, title, "You are missing the permission for this command.")
		return
	}

	opt, ok := options["user"]
	if !ok {
		b.respondError(session, interaction, title, "Pick a member.")
		return
	}
	user := opt.UserValue(session)
	if user == nil {
		b.respondError(session, interaction, title, "That member could not be found.")
		return
	}

	var duration time.Duration
	if action == audit.ActionTimeout {
		parsed, err := parseDuration(options.string("duration", ""))
		if err != nil {
			b.respondError(session, interaction, title, "Invalid duration: "+err.Error()+".")
			return
		}
		duration = parsed
	}

	guild := b.guild(interaction.GuildID)
	target := b.memberForUser(interaction.GuildID, user.ID)
	if target == nil && action != audit.ActionBan {
		b.respondError(session, interaction, title, "That user is not a member of this server.")
		return
	}
	if !canModerate(guild, interaction.Member, target) {
		b.respondError(session, interaction, title, "You cannot act on someone with an equal or higher role.")
		return
	}

	reason := options.string("reason", defaultReason)
	actorID := interactionUserID(interaction)
	auditReason := fmt.Sprintf("%s | by %s", reason, actorID)

	var err error
	switch action {
	case audit.ActionKick:
		err = session.GuildMemberDeleteWithReason(interaction.GuildID, user.ID, auditReason, discordgo.WithContext(ctx))
	case audit.ActionBan:
		err = session.GuildBanCreateWithReason(interaction.GuildID, user.ID, auditReason, 0, discordgo.WithContext(ctx))
	case audit.ActionTimeout:
		until := time.Now().Add(duration)
		err = session.GuildMemberTimeout(interaction.GuildID, user.ID, &until, discordgo.WithContext(ctx))
		reason = fmt.Sprintf("%s (for %s)", reason, duration)
	}
	if err != nil {
		b.logger.Warn("moderation command failed",
			zap.String("guild_id", interaction.GuildID),
			zap.String("user_id", user.ID),
			zap.String("action", action),
			zap.Error(err),
		)
		b.respondError(session, interaction, title, "I don't have permission to do that to this member.")
		return
	}

	entry := storage.ModerationAction{
		GuildID:  interaction.GuildID,
		UserID:   user.ID,
		ActorID:  actorID,
		Action:   action,
		Reason:   reason,
		Username: user.Username,
	}
	if err := b.audit.Record(ctx, entry); err != nil {
		b.logger.Warn("moderation action not stored", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
	entry.CreatedAt = time.Now()
	b.respondEmbed(session, interaction, b.moderationEmbed(entry), false)
}

func moderationPermission(action string) int64 {
	switch action {
	case audit.ActionBan:
		return discordgo.PermissionBanMembers
	case audit.ActionTimeout:
		return discordgo.PermissionModerateMembers
	default:
		return discordgo.PermissionKickMembers
	}
}

func (b *Bot) handleStatus(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	snap, err := sysinfo.Collect(statsCtx)
	if err != nil {
		b.logger.Debug("host stats incomplete", zap.Error(err))
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "⏱️ Gateway latency", Value: session.HeartbeatLatency().Round(time.Millisecond).String(), Inline: true},
		{Name: "👀 Watched servers", Value: fmt.Sprintf("%d", b.detector.TrackedGuilds()), Inline: true},
		{Name: "🔥 CPU", Value: snap.CPU(), Inline: true},
		{Name: "🧠 Memory", Value: snap.Memory(), Inline: true},
		{Name: "🚀 Goroutines", Value: fmt.Sprintf("%d", snap.Goroutines), Inline: true},
		{Name: "🕒 Uptime", Value: snap.ProcessUptime.Round(time.Second).String(), Inline: true},
	}
	if interaction.GuildID != "" {
		settings := b.protectionSettings(ctx, interaction.GuildID)
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🛡️ Protection", Value: onOff(settings.ModeEnabled), Inline: true})
	}
	b.respondEmbed(session, interaction, commandEmbed("📊 Status", snap.GoVersion, colorInfo, fields), true)
}

func (b *Bot) guild(guildID string) *discordgo.Guild {
	if guild, err := b.session.State.Guild(guildID); err == nil && guild != nil {
		return guild
	}
	guild, _ := b.session.Guild(guildID)
	return guild
}

func (b *Bot) memberForUser(guildID, userID string) *discordgo.Member {
	member, err := b.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = b.session.GuildMember(guildID, userID)
	return member
}
