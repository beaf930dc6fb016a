package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"raidguard/internal/analytics"
	"raidguard/internal/config"
	"raidguard/internal/metrics"
	"raidguard/internal/modules/audit"
	"raidguard/internal/protection"
	"raidguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorAction  = 0xF59E0B
	colorWarning = 0xEF4444
	colorError   = 0xF97316
	colorInfo    = 0x5865F2
)

// settingsStore is the part of the store the commands read and write.
type settingsStore interface {
	GetProtectionSettings(ctx context.Context, guildID string, defaults storage.ProtectionSettings) (storage.ProtectionSettings, error)
	UpsertProtectionSettings(ctx context.Context, settings storage.ProtectionSettings) error
}

var errSettingsUnavailable = errors.New("protection settings unavailable")

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	settings  settingsStore
	audit     *audit.Logger
	analytics *analytics.Service
	detector  *protection.Detector
	session   *discordgo.Session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, analyticsService *analytics.Service, m *metrics.Metrics) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		settings:  store,
		audit:     auditLogger,
		analytics: analyticsService,
		session:   session,
	}

	p := cfg.Protection
	b.detector = protection.New(protection.Config{
		TickInterval:      p.TickInterval(),
		SpikeWindow:       p.SpikeWindow(),
		Retention:         p.Retention(),
		KickTimeout:       p.KickTimeout(),
		KickConcurrency:   p.KickConcurrency,
		Blacklist:         p.Blacklist,
		DefaultLogChannel: cfg.DefaultLogChannel,
		Defaults:          protection.DefaultSettings(p.SpikeThreshold, p.ActionThreshold),
	}, &discordPlatform{session: session}, store, auditLogger, m, logger.Named("protection"))

	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, action storage.ModerationAction) {
			// raid kicks are reported as one summary per incident
			if b.isAutomated(action) {
				return
			}
			b.notifyModeration(ctx, action)
		})
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}
	b.seedActorID()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.detector.Run(ctx)
	}()

	return nil
}

// Close stops the evaluation loop, waits for it up to ctx, then disconnects.
func (b *Bot) Close(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn("protection loop did not stop before shutdown deadline")
		}
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) selfID() string {
	if b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

// seedActorID sets the detector's actor from state once the session is open,
// in case the first tick runs before Ready is handled.
func (b *Bot) seedActorID() {
	if id := b.selfID(); id != "" && b.detector.ActorID() == "" {
		b.detector.SetActorID(id)
	}
}

// isAutomated reports whether an action was taken by the detector. Manual
// commands always carry the moderator as actor.
func (b *Bot) isAutomated(action storage.ModerationAction) bool {
	return action.ActorID == "" || action.ActorID == b.detector.ActorID()
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	if event.User != nil {
		b.detector.SetActorID(event.User.ID)
		b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
	}
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.User.Bot || event.GuildID == "" {
		return
	}

	rec := protection.JoinRecord{
		IdentityID:      event.User.ID,
		DisplayName:     event.User.Username,
		AvatarSignature: event.User.Avatar,
	}
	if created, err := discordgo.SnowflakeTimestamp(event.User.ID); err == nil {
		rec.AccountCreatedAt = created
	}
	b.detector.RecordJoin(event.GuildID, rec)
}

func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil {
		return
	}
	b.logger.Debug("guild available", zap.String("guild_id", event.ID), zap.Int("members", event.MemberCount))
}

// onGuildDelete forgets tracked joins when the bot leaves. An outage keeps them.
func (b *Bot) onGuildDelete(session *discordgo.Session, event *discordgo.GuildDelete) {
	if event.Guild == nil || event.Unavailable {
		return
	}
	b.detector.ForgetGuild(event.ID)
	b.logger.Info("left guild", zap.String("guild_id", event.ID))
}

func (b *Bot) protectionSettings(ctx context.Context, guildID string) storage.ProtectionSettings {
	defaults := b.detector.Config().Defaults
	defaults.GuildID = guildID
	settings, err := b.settings.GetProtectionSettings(ctx, guildID, defaults)
	if err != nil {
		b.logger.Warn("protection settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

// settingsForUpdate loads the stored settings as the base of a write. Unlike
// protectionSettings it never falls back to defaults, which would overwrite
// the saved row.
func (b *Bot) settingsForUpdate(ctx context.Context, guildID string) (storage.ProtectionSettings, error) {
	defaults := b.detector.Config().Defaults
	defaults.GuildID = guildID
	settings, err := b.settings.GetProtectionSettings(ctx, guildID, defaults)
	if err != nil {
		return storage.ProtectionSettings{}, fmt.Errorf("%w: %v", errSettingsUnavailable, err)
	}
	return settings, nil
}

// updateSettings reads, changes and writes back one guild's settings.
func (b *Bot) updateSettings(ctx context.Context, guildID string, change func(*storage.ProtectionSettings)) (storage.ProtectionSettings, error) {
	settings, err := b.settingsForUpdate(ctx, guildID)
	if err != nil {
		return storage.ProtectionSettings{}, err
	}
	change(&settings)
	if err := b.settings.UpsertProtectionSettings(ctx, settings); err != nil {
		return storage.ProtectionSettings{}, err
	}
	return settings, nil
}

func (b *Bot) logChannel(ctx context.Context, guildID string) string {
	if channelID := b.protectionSettings(ctx, guildID).LogChannelID; channelID != "" {
		return channelID
	}
	return b.cfg.DefaultLogChannel
}

func (b *Bot) notifyModeration(ctx context.Context, action storage.ModerationAction) {
	channelID := b.logChannel(ctx, action.GuildID)
	if channelID == "" {
		return
	}
	embed := b.moderationEmbed(action)
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("moderation log message failed", zap.String("guild_id", action.GuildID), zap.Error(err))
	}
}

func (b *Bot) moderationEmbed(action storage.ModerationAction) *discordgo.MessageEmbed {
	title, color := actionTitle(action.Action)
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**User:** <@%s>\n**Reason:** %s\n**By:** <@%s>", action.UserID, action.Reason, action.ActorID),
		Color:       color,
		Timestamp:   action.CreatedAt.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "User ID: " + action.UserID},
	}
}

func actionTitle(action string) (string, int) {
	switch action {
	case audit.ActionBan:
		return "🔨 User banned", colorWarning
	case audit.ActionKick:
		return "👢 User kicked", colorAction
	case audit.ActionTimeout:
		return "🔇 User timed out", colorInfo
	case audit.ActionKickFailed:
		return "⚠️ Kick failed", colorError
	default:
		return "Moderation action", colorInfo
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func (b *Bot) respondError(session *discordgo.Session, interaction *discordgo.InteractionCreate, title, message string) {
	b.respondEmbed(session, interaction, commandEmbed("❌ "+title, message, colorError, nil), true)
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
