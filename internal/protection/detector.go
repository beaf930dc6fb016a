package protection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"raidguard/internal/metrics"
	"raidguard/internal/modules/audit"
	"raidguard/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Platform is the slice of the chat client the detector needs.
type Platform interface {
	HasGuild(guildID string) bool
	HasMember(ctx context.Context, guildID, userID string) bool
	Kick(ctx context.Context, guildID, userID, reason string) error
	Send(ctx context.Context, channelID, content string) error
}

type SettingsSource interface {
	GetProtectionSettings(ctx context.Context, guildID string, defaults storage.ProtectionSettings) (storage.ProtectionSettings, error)
}

type ActionRecorder interface {
	Record(ctx context.Context, action storage.ModerationAction) error
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultSettings is the state of a guild that never configured protection:
// every check on, protection mode off.
func DefaultSettings(spikeThreshold, actionThreshold int) storage.ProtectionSettings {
	if actionThreshold <= 0 {
		actionThreshold = spikeThreshold
	}
	return storage.ProtectionSettings{
		SpikeThreshold:  spikeThreshold,
		ActionThreshold: actionThreshold,
		CheckUsername:   true,
		CheckAccountAge: true,
		CheckAvatar:     true,
		CheckSimilarity: true,
	}
}

type Config struct {
	TickInterval      time.Duration
	SpikeWindow       time.Duration
	Retention         time.Duration
	KickTimeout       time.Duration
	KickConcurrency   int
	Blacklist         []string
	DefaultLogChannel string
	Defaults          storage.ProtectionSettings
}

// Outcome describes one guild's evaluation in a tick. Responding is set when
// the spike threshold was met with protection enabled.
type Outcome struct {
	GuildID    string
	IncidentID string
	Joins      int
	Spike      bool
	Responding bool
	Results    []ActionResult
}

// ActionResult is the result of one kick attempt.
type ActionResult struct {
	UserID   string
	Username string
	Score    Breakdown
	Err      error
}

func (r ActionResult) OK() bool {
	return r.Err == nil
}

type Detector struct {
	cfg      Config
	tracker  *Tracker
	scorer   *Scorer
	platform Platform
	settings SettingsSource
	recorder ActionRecorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	clock    Clock

	actorMu sync.RWMutex
	actorID string
}

func New(cfg Config, platform Platform, settings SettingsSource, recorder ActionRecorder, m *metrics.Metrics, logger *zap.Logger) *Detector {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.SpikeWindow <= 0 {
		cfg.SpikeWindow = 60 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 300 * time.Second
	}
	if cfg.KickTimeout <= 0 {
		cfg.KickTimeout = 10 * time.Second
	}
	if cfg.KickConcurrency <= 0 {
		cfg.KickConcurrency = 4
	}
	if cfg.Defaults.SpikeThreshold <= 0 {
		cfg.Defaults.SpikeThreshold = 5
	}
	if cfg.Defaults.ActionThreshold <= 0 {
		cfg.Defaults.ActionThreshold = cfg.Defaults.SpikeThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		cfg:      cfg,
		tracker:  NewTracker(cfg.Retention),
		scorer:   NewScorer(cfg.Blacklist),
		platform: platform,
		settings: settings,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		clock:    realClock{},
	}
}

func (d *Detector) WithClock(clock Clock) {
	d.clock = clock
}

// SetActorID sets the id written as actor on automated actions, normally the
// bot's own user id once the gateway is ready.
func (d *Detector) SetActorID(id string) {
	d.actorMu.Lock()
	d.actorID = id
	d.actorMu.Unlock()
}

// ActorID returns the id set by SetActorID, empty before the bot is known.
func (d *Detector) ActorID() string {
	d.actorMu.RLock()
	defer d.actorMu.RUnlock()
	return d.actorID
}

func (d *Detector) Now() time.Time {
	return d.clock.Now()
}

func (d *Detector) Config() Config {
	return d.cfg
}

func (d *Detector) RecordJoin(guildID string, rec JoinRecord) {
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = d.clock.Now()
	}
	d.tracker.RecordJoin(guildID, rec)
	d.metrics.JoinRecorded()
}

func (d *Detector) ForgetGuild(guildID string) {
	d.tracker.Remove(guildID)
}

func (d *Detector) TrackedGuilds() int {
	return len(d.tracker.Guilds())
}

// Run ticks until ctx is done. Kicks already started when ctx ends are left
// to finish under their own timeout.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(tickCtx)
		}
	}
}

// Tick evaluates every tracked guild once.
func (d *Detector) Tick(ctx context.Context) []Outcome {
	started := time.Now()
	now := d.clock.Now()

	var outcomes []Outcome
	for _, guildID := range d.tracker.Guilds() {
		if !d.platform.HasGuild(guildID) {
			d.tracker.Remove(guildID)
			d.logger.Info("dropping join window for unavailable guild", zap.String("guild_id", guildID))
			continue
		}
		outcomes = append(outcomes, d.evaluate(ctx, guildID, now))
	}

	d.metrics.TickObserved(len(d.tracker.Guilds()), time.Since(started))
	return outcomes
}

func (d *Detector) evaluate(ctx context.Context, guildID string, now time.Time) Outcome {
	d.tracker.Prune(guildID, now, d.cfg.Retention)
	window := d.tracker.Window(guildID, now, d.cfg.SpikeWindow)
	outcome := Outcome{GuildID: guildID, Joins: len(window)}

	settings := d.loadSettings(ctx, guildID)
	if len(window) < settings.SpikeThreshold {
		return outcome
	}
	outcome.Spike = true
	d.metrics.SpikeDetected(settings.ModeEnabled)
	if !settings.ModeEnabled {
		d.logger.Debug("join spike with protection disabled",
			zap.String("guild_id", guildID),
			zap.Int("joins", len(window)),
			zap.Int("threshold", settings.SpikeThreshold),
		)
		return outcome
	}

	outcome.Responding = true
	outcome.IncidentID = uuid.NewString()
	logger := d.logger.With(zap.String("guild_id", guildID), zap.String("incident_id", outcome.IncidentID))
	logger.Warn("join spike detected", zap.Int("joins", len(window)), zap.Int("threshold", settings.SpikeThreshold))

	// members who already left neither get scored nor count as lookalike peers
	present := d.presentMembers(ctx, guildID, window)
	rules := RulesFromSettings(settings)
	var suspects []suspect
	for _, candidate := range present {
		score := d.scorer.Score(candidate, present, rules, now)
		if score.Total() >= settings.ActionThreshold {
			suspects = append(suspects, suspect{record: candidate, score: score})
		}
	}
	if len(suspects) == 0 {
		return outcome
	}

	outcome.Results = d.act(ctx, guildID, suspects, now, logger)
	if len(outcome.Results) > 0 {
		d.notify(ctx, settings, outcome)
	}
	return outcome
}

func (d *Detector) presentMembers(ctx context.Context, guildID string, window []JoinRecord) []JoinRecord {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.KickTimeout)
	defer cancel()

	present := make([]JoinRecord, 0, len(window))
	for _, rec := range window {
		if d.platform.HasMember(callCtx, guildID, rec.IdentityID) {
			present = append(present, rec)
		}
	}
	return present
}

type suspect struct {
	record JoinRecord
	score  Breakdown
}

func (d *Detector) act(ctx context.Context, guildID string, suspects []suspect, now time.Time, logger *zap.Logger) []ActionResult {
	attempted := make([]*ActionResult, len(suspects))

	var g errgroup.Group
	g.SetLimit(d.cfg.KickConcurrency)
	for i, s := range suspects {
		i, s := i, s
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, d.cfg.KickTimeout)
			defer cancel()

			userID := s.record.IdentityID
			if !d.platform.HasMember(callCtx, guildID, userID) {
				logger.Info("raid suspect already left", zap.String("user_id", userID))
				return nil
			}

			reason := fmt.Sprintf("raid suspect (score %d: %s)", s.score.Total(), s.score)
			err := d.platform.Kick(callCtx, guildID, userID, reason)
			result := ActionResult{UserID: userID, Username: s.record.DisplayName, Score: s.score, Err: err}
			attempted[i] = &result
			d.metrics.Kick(err == nil)

			entry := storage.ModerationAction{
				GuildID:   guildID,
				UserID:    userID,
				ActorID:   d.ActorID(),
				Action:    audit.ActionKick,
				Reason:    reason,
				Username:  s.record.DisplayName,
				CreatedAt: now,
			}
			if err != nil {
				logger.Warn("raid kick failed", zap.String("user_id", userID), zap.Error(err))
				entry.Action = audit.ActionKickFailed
				entry.Reason = reason + ": " + err.Error()
			}
			if d.recorder != nil {
				if recErr := d.recorder.Record(ctx, entry); recErr != nil {
					logger.Warn("raid action not recorded", zap.String("user_id", userID), zap.Error(recErr))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]ActionResult, 0, len(attempted))
	for _, result := range attempted {
		if result != nil {
			results = append(results, *result)
		}
	}
	return results
}

func (d *Detector) notify(ctx context.Context, settings storage.ProtectionSettings, outcome Outcome) {
	channelID := settings.LogChannelID
	if channelID == "" {
		channelID = d.cfg.DefaultLogChannel
	}
	if channelID == "" {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.KickTimeout)
	defer cancel()
	if err := d.platform.Send(callCtx, channelID, FormatSummary(outcome, d.cfg.SpikeWindow)); err != nil {
		d.logger.Warn("raid summary not delivered",
			zap.String("guild_id", outcome.GuildID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}

// FormatSummary renders the single log-channel message for a responding tick.
func FormatSummary(outcome Outcome, spikeWindow time.Duration) string {
	var kicked, failed []string
	for _, result := range outcome.Results {
		if result.OK() {
			kicked = append(kicked, fmt.Sprintf("<@%s> `%s` (score %d)", result.UserID, result.Username, result.Score.Total()))
			continue
		}
		failed = append(failed, fmt.Sprintf("<@%s> `%s`: %v", result.UserID, result.Username, result.Err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 Raid response `%s`: %d joins in the last %s.", shortID(outcome.IncidentID), outcome.Joins, spikeWindow)
	if len(kicked) > 0 {
		fmt.Fprintf(&sb, "\n🛡️ Kicked %d:\n%s", len(kicked), strings.Join(kicked, "\n"))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "\n⚠️ Could not kick %d:\n%s", len(failed), strings.Join(failed, "\n"))
	}
	return sb.String()
}

func (d *Detector) loadSettings(ctx context.Context, guildID string) storage.ProtectionSettings {
	defaults := d.cfg.Defaults
	defaults.GuildID = guildID
	if d.settings == nil {
		return defaults
	}
	settings, err := d.settings.GetProtectionSettings(ctx, guildID, defaults)
	if err != nil {
		d.logger.Warn("protection settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
