package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Protection.TickInterval() != time.Minute || cfg.Protection.Retention() != 5*time.Minute {
		t.Fatalf("unexpected timings %+v", cfg.Protection)
	}
	if cfg.Protection.SpikeThreshold != 5 || cfg.Protection.ActionThreshold != 5 {
		t.Fatalf("unexpected thresholds %+v", cfg.Protection)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
discord_token: from-file
database_url: postgres://guard@db/guard
protection:
  spike_threshold: 8
  action_threshold: 12
  kick_timeout_seconds: 3
  blacklist: [spam]
metrics:
  enabled: true
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SPIKE_THRESHOLD", "4")
	t.Setenv("USERNAME_BLACKLIST", "raid, ,scam")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-file" || cfg.DatabaseURL != "postgres://guard@db/guard" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Protection.SpikeThreshold != 4 || cfg.Protection.ActionThreshold != 12 {
		t.Fatalf("expected env to override spike threshold only, got %+v", cfg.Protection)
	}
	if cfg.Protection.KickTimeout() != 3*time.Second || !cfg.Metrics.Enabled {
		t.Fatalf("unexpected values %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Protection.Blacklist, []string{"raid", "scam"}) {
		t.Fatalf("unexpected blacklist %v", cfg.Protection.Blacklist)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "protection: [unterminated"))
	t.Setenv("DISCORD_TOKEN", "token")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNormalize(t *testing.T) {
	cfg := Config{Protection: ProtectionConfig{
		SpikeWindowSeconds: 120,
		RetentionSeconds:   30,
		SpikeThreshold:     -1,
		ActionThreshold:    0,
	}}
	normalize(&cfg)

	p := cfg.Protection
	if p.RetentionSeconds != 120 {
		t.Fatalf("retention must cover the spike window, got %d", p.RetentionSeconds)
	}
	if p.SpikeThreshold != 5 || p.ActionThreshold != 5 {
		t.Fatalf("expected default thresholds, got %d/%d", p.SpikeThreshold, p.ActionThreshold)
	}
	if p.TickSeconds != 60 || p.KickConcurrency != 4 || p.KickTimeoutSeconds != 10 {
		t.Fatalf("expected defaults filled, got %+v", p)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug").String() != "debug" || parseLevel("nonsense").String() != "info" {
		t.Fatalf("unexpected level mapping")
	}
	if _, err := BuildLogger("warn"); err != nil {
		t.Fatalf("build logger: %v", err)
	}
}
