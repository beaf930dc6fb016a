package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

var ErrInvalidThreshold = errors.New("thresholds must be positive integers")

type Store struct {
	db      *sqlx.DB
	dialect string
}

type ProtectionSettings struct {
	GuildID         string
	ModeEnabled     bool
	SpikeThreshold  int
	ActionThreshold int
	CheckUsername   bool
	CheckAccountAge bool
	CheckAvatar     bool
	CheckSimilarity bool
	LogChannelID    string
}

type ModerationAction struct {
	ID        int64
	GuildID   string
	UserID    string
	ActorID   string
	Action    string
	Reason    string
	Username  string
	CreatedAt time.Time
}

type settingsRow struct {
	GuildID         string `db:"guild_id"`
	ModeEnabled     int    `db:"mode_enabled"`
	SpikeThreshold  int    `db:"spike_threshold"`
	ActionThreshold int    `db:"action_threshold"`
	CheckUsername   int    `db:"check_username"`
	CheckAccountAge int    `db:"check_account_age"`
	CheckAvatar     int    `db:"check_avatar"`
	CheckSimilarity int    `db:"check_similarity"`
	LogChannelID    string `db:"log_channel_id"`
}

type actionRow struct {
	ID        int64  `db:"id"`
	GuildID   string `db:"guild_id"`
	UserID    string `db:"user_id"`
	ActorID   string `db:"actor_id"`
	Action    string `db:"action"`
	Reason    string `db:"reason"`
	Username  string `db:"username"`
	CreatedAt int64  `db:"created_at"`
}

// New opens a store. Postgres URLs (postgres:// or postgresql://) go through
// the pgx driver, anything else is treated as a SQLite path.
func New(dsn string) (*Store, error) {
	driver, dialect := resolveDriver(dsn)
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == dialectSQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, dialect: dialect}, nil
}

func resolveDriver(dsn string) (driver, dialect string) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "pgx", dialectPostgres
	}
	return "sqlite", dialectSQLite
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	dir := path.Join("migrations", s.dialect)
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join(dir, file))
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(content), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.db.Exec(stmt); err != nil {
				if isIgnorableMigrationError(err) {
					continue
				}
				return fmt.Errorf("migration %s failed: %w", file, err)
			}
		}
	}
	return nil
}

// Validate rejects non-positive thresholds. Called at the command boundary.
func (p ProtectionSettings) Validate() error {
	if p.SpikeThreshold <= 0 || p.ActionThreshold <= 0 {
		return ErrInvalidThreshold
	}
	return nil
}

func (s *Store) GetProtectionSettings(ctx context.Context, guildID string, defaults ProtectionSettings) (ProtectionSettings, error) {
	result := defaults
	result.GuildID = guildID

	var row settingsRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT guild_id, mode_enabled, spike_threshold, action_threshold,
		check_username, check_account_age, check_avatar, check_similarity, log_channel_id
		FROM protection_settings WHERE guild_id = ?`), guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return ProtectionSettings{}, err
	}

	result.ModeEnabled = row.ModeEnabled == 1
	result.CheckUsername = row.CheckUsername == 1
	result.CheckAccountAge = row.CheckAccountAge == 1
	result.CheckAvatar = row.CheckAvatar == 1
	result.CheckSimilarity = row.CheckSimilarity == 1
	result.LogChannelID = row.LogChannelID
	// a hand-edited row with broken thresholds falls back to defaults
	if row.SpikeThreshold > 0 {
		result.SpikeThreshold = row.SpikeThreshold
	}
	if row.ActionThreshold > 0 {
		result.ActionThreshold = row.ActionThreshold
	}
	return result, nil
}

func (s *Store) UpsertProtectionSettings(ctx context.Context, settings ProtectionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO protection_settings (
			guild_id, mode_enabled, spike_threshold, action_threshold,
			check_username, check_account_age, check_avatar, check_similarity,
			log_channel_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			mode_enabled = excluded.mode_enabled,
			spike_threshold = excluded.spike_threshold,
			action_threshold = excluded.action_threshold,
			check_username = excluded.check_username,
			check_account_age = excluded.check_account_age,
			check_avatar = excluded.check_avatar,
			check_similarity = excluded.check_similarity,
			log_channel_id = excluded.log_channel_id,
			updated_at = excluded.updated_at
	`),
		settings.GuildID,
		boolToInt(settings.ModeEnabled),
		settings.SpikeThreshold,
		settings.ActionThreshold,
		boolToInt(settings.CheckUsername),
		boolToInt(settings.CheckAccountAge),
		boolToInt(settings.CheckAvatar),
		boolToInt(settings.CheckSimilarity),
		settings.LogChannelID,
		time.Now().Unix(),
	)
	return err
}

func (s *Store) AddModerationAction(ctx context.Context, action ModerationAction) (int64, error) {
	created := action.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO moderation_log (guild_id, user_id, actor_id, action, reason, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), action.GuildID, action.UserID, action.ActorID, action.Action, action.Reason, action.Username, created.Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert moderation action: %w", err)
	}
	return id, nil
}

// ListModerationActions returns a user's history in a guild, newest first.
func (s *Store) ListModerationActions(ctx context.Context, guildID, userID string) ([]ModerationAction, error) {
	var rows []actionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, guild_id, user_id, actor_id, action, reason, username, created_at
		FROM moderation_log
		WHERE guild_id = ? AND user_id = ?
		ORDER BY created_at DESC, id DESC
	`), guildID, userID)
	if err != nil {
		return nil, err
	}

	actions := make([]ModerationAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, ModerationAction{
			ID:        row.ID,
			GuildID:   row.GuildID,
			UserID:    row.UserID,
			ActorID:   row.ActorID,
			Action:    row.Action,
			Reason:    row.Reason,
			Username:  row.Username,
			CreatedAt: time.Unix(row.CreatedAt, 0),
		})
	}
	return actions, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
