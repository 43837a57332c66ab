package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/racetrack/go/internal/access"
	"github.com/mcdev12/racetrack/go/internal/dbconfig"
)

// Persistence backends
const (
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

var (
	ErrMissingKeys    = errors.New("missing required access keys")
	ErrInvalidConfig  = errors.New("invalid configuration")
	defaultPersistDir = "data"
)

// Config is the full server configuration. Access keys come from the
// environment only and are never read from the YAML file.
type Config struct {
	Port      int           `yaml:"port"`
	LogLevel  string        `yaml:"log_level"`
	AuthDelay time.Duration `yaml:"auth_delay"`

	Keys access.Keys `yaml:"-"`

	Persist  PersistConfig   `yaml:"persist"`
	NATS     NATSConfig      `yaml:"nats"`
	Database dbconfig.Config `yaml:"database"`
}

// PersistConfig controls the snapshot store.
type PersistConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"`
	Path     string        `yaml:"path"`
	Debounce time.Duration `yaml:"debounce"`
}

// NATSConfig controls the optional JetStream event mirror. An empty URL
// disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:      3000,
		LogLevel:  "info",
		AuthDelay: 500 * time.Millisecond,
		Persist: PersistConfig{
			Backend:  BackendFile,
			Debounce: 200 * time.Millisecond,
		},
		NATS: NATSConfig{
			Stream:        "RACETRACK_EVENTS",
			SubjectPrefix: "racetrack.events",
		},
		Database: dbconfig.Default(),
	}
}

// Load reads .env, the optional YAML file, and the environment, in that
// order of increasing precedence, then applies command-line flags.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("racetrack", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	persist := fs.Bool("persist", false, "persist sessions and race state across restarts")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = os.Getenv("RACETRACK_CONFIG")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()
	if *persist {
		cfg.Persist.Enabled = true
	}
	cfg.Persist.Path = cfg.persistPath()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays settings from a YAML file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields with any environment variables that are set.
func (c *Config) ApplyEnv() {
	c.Keys = access.Keys{
		Receptionist: os.Getenv("RECEPTIONIST_KEY"),
		Observer:     os.Getenv("OBSERVER_KEY"),
		Safety:       os.Getenv("SAFETY_KEY"),
	}

	c.Port = getEnvAsInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.AuthDelay = getEnvAsDuration("AUTH_DELAY", c.AuthDelay)

	c.Persist.Enabled = getEnvAsBool("PERSIST", c.Persist.Enabled)
	c.Persist.Backend = strings.ToLower(getEnv("PERSIST_BACKEND", c.Persist.Backend))
	c.Persist.Path = getEnv("PERSIST_PATH", c.Persist.Path)
	c.Persist.Debounce = getEnvAsDuration("SAVE_DEBOUNCE", c.Persist.Debounce)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)

	c.Database.ApplyEnv()
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	var missing []string
	if c.Keys.Receptionist == "" {
		missing = append(missing, "RECEPTIONIST_KEY")
	}
	if c.Keys.Observer == "" {
		missing = append(missing, "OBSERVER_KEY")
	}
	if c.Keys.Safety == "" {
		missing = append(missing, "SAFETY_KEY")
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", ")))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port))
	}
	if c.AuthDelay < 0 {
		errs = append(errs, fmt.Errorf("%w: auth delay must not be negative", ErrInvalidConfig))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel))
	}

	switch c.Persist.Backend {
	case BackendFile, BackendBadger, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown persist backend %q", ErrInvalidConfig, c.Persist.Backend))
	}
	if c.Persist.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("%w: save debounce must be positive", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) persistPath() string {
	if c.Persist.Path != "" {
		return c.Persist.Path
	}
	switch c.Persist.Backend {
	case BackendBadger:
		return defaultPersistDir + "/badger"
	case BackendFile:
		return defaultPersistDir + "/racetrack.json"
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid integer setting")
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or bare milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration setting")
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid boolean setting")
	}
	return defaultValue
}
