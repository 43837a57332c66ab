package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"RECEPTIONIST_KEY", "OBSERVER_KEY", "SAFETY_KEY",
	"PORT", "LOG_LEVEL", "AUTH_DELAY",
	"PERSIST", "PERSIST_BACKEND", "PERSIST_PATH", "SAVE_DEBOUNCE",
	"NATS_URL", "RACETRACK_CONFIG",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
}

// clearEnv isolates a test from the developer's shell and .env.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("RECEPTIONIST_KEY", "front")
	t.Setenv("OBSERVER_KEY", "laps")
	t.Setenv("SAFETY_KEY", "flags")
}

func TestLoadRequiresAllKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("OBSERVER_KEY", "laps")

	_, err := Load(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKeys)
	assert.Contains(t, err.Error(), "RECEPTIONIST_KEY")
	assert.Contains(t, err.Error(), "SAFETY_KEY")
	assert.NotContains(t, err.Error(), "OBSERVER_KEY")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setKeys(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, 500*time.Millisecond, cfg.AuthDelay)
	assert.False(t, cfg.Persist.Enabled)
	assert.Equal(t, BackendFile, cfg.Persist.Backend)
	assert.Equal(t, "data/racetrack.json", cfg.Persist.Path)
	assert.Equal(t, 200*time.Millisecond, cfg.Persist.Debounce)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "front", cfg.Keys.Receptionist)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	setKeys(t)

	path := filepath.Join(t.TempDir(), "racetrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8080
log_level: debug
auth_delay: 0s
persist:
  enabled: true
  backend: badger
  debounce: 1s
nats:
  url: nats://localhost:4222
database:
  host: db.internal
  port: 5433
`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("SAVE_DEBOUNCE", "50")

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, time.Duration(0), cfg.AuthDelay)
	assert.True(t, cfg.Persist.Enabled)
	assert.Equal(t, BackendBadger, cfg.Persist.Backend)
	assert.Equal(t, "data/badger", cfg.Persist.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Persist.Debounce)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "RACETRACK_EVENTS", cfg.NATS.Stream)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "racetrack", cfg.Database.Database)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	clearEnv(t)
	setKeys(t)

	path := filepath.Join(t.TempDir(), "racetrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4000\n"), 0o644))
	t.Setenv("RACETRACK_CONFIG", path)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
}

func TestPersistFlag(t *testing.T) {
	clearEnv(t)
	setKeys(t)
	t.Setenv("PERSIST_PATH", "/var/lib/racetrack/state.json")

	cfg, err := Load([]string{"-persist"})
	require.NoError(t, err)
	assert.True(t, cfg.Persist.Enabled)
	assert.Equal(t, "/var/lib/racetrack/state.json", cfg.Persist.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Port = 70000 }, "port 70000 out of range"},
		{"backend", func(c *Config) { c.Persist.Backend = "s3" }, `unknown persist backend "s3"`},
		{"debounce", func(c *Config) { c.Persist.Debounce = 0 }, "save debounce must be positive"},
		{"auth delay", func(c *Config) { c.AuthDelay = -time.Second }, "auth delay must not be negative"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, `log level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Keys.Receptionist, cfg.Keys.Observer, cfg.Keys.Safety = "a", "b", "c"
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestInvalidEnvValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	setKeys(t)
	t.Setenv("PORT", "not-a-port")
	t.Setenv("AUTH_DELAY", "soon")
	t.Setenv("PERSIST", "maybe")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.AuthDelay)
	assert.False(t, cfg.Persist.Enabled)
}
