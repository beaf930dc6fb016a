package audit

import (
	"context"
	"time"

	"raidguard/internal/storage"

	"go.uber.org/zap"
)

const (
	ActionKick       = "kick"
	ActionKickFailed = "kick_failed"
	ActionBan        = "ban"
	ActionTimeout    = "timeout"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.ModerationAction)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.ModerationAction)) {
	l.notify = notify
}

// Record appends a moderation action to the log. The notifier still runs when
// the write fails so the log channel sees the action either way.
func (l *Logger) Record(ctx context.Context, action storage.ModerationAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	var err error
	if l.store != nil {
		action.ID, err = l.store.AddModerationAction(ctx, action)
		if err != nil {
			l.logger.Error("moderation log write failed", zap.Error(err), zap.String("guild_id", action.GuildID), zap.String("user_id", action.UserID))
		}
	}
	if l.notify != nil {
		l.notify(ctx, action)
	}
	l.logger.Info("moderation action",
		zap.String("guild_id", action.GuildID),
		zap.String("user_id", action.UserID),
		zap.String("actor_id", action.ActorID),
		zap.String("action", action.Action),
		zap.String("reason", action.Reason),
	)
	return err
}
