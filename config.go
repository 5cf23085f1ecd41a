package authstate

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/MrEthical07/authstate/credential"
	"github.com/MrEthical07/authstate/guard"
	"github.com/MrEthical07/authstate/state"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration. Start from DefaultConfig or LoadConfig.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Sync      SyncConfig      `yaml:"sync"`
	Routes    RoutesConfig    `yaml:"routes"`
	Transport TransportConfig `yaml:"transport"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig selects the credential backend shared by execution contexts.
type StoreConfig struct {
	// Backend is "redis" or "memory". A client passed to Builder.WithRedis wins over the
	// address settings below.
	Backend       string `yaml:"backend" validate:"oneof=redis memory"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	KeyPrefix     string `yaml:"key_prefix" validate:"required"`
}

// SyncConfig tunes how the reactive state follows the store.
type SyncConfig struct {
	PollInterval         time.Duration `yaml:"poll_interval"`
	DisableNotifications bool          `yaml:"disable_notifications"`
	WatchedKeys          []string      `yaml:"watched_keys" validate:"dive,oneof=ACCESS_TOKEN LOGGED_USER REFRESH_TOKEN SESSION_ID"`
}

// RoutesConfig configures the route guard.
type RoutesConfig struct {
	Paths guard.Paths      `yaml:"paths"`
	Rules []guard.RoleRule `yaml:"rules"`
}

// TransportConfig configures the API client.
type TransportConfig struct {
	BaseURL              string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout              time.Duration `yaml:"timeout"`
	InvalidTokenMessages []string      `yaml:"invalid_token_messages"`
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size" validate:"gte=0"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig configures the logger built by NewLogger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns a configuration backed by Redis on localhost.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend:   "redis",
			RedisAddr: "localhost:6379",
			KeyPrefix: credential.DefaultKeyPrefix,
		},
		Sync: SyncConfig{
			PollInterval: state.DefaultPollInterval,
			WatchedKeys:  []string{credential.KeyAccessToken, credential.KeyLoggedUser},
		},
		Routes: RoutesConfig{
			Paths: guard.DefaultPaths(),
		},
		Transport: TransportConfig{
			Timeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a YAML file, expands ${VAR} references from the environment, fills
// unset fields from DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(data []byte) (Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config: %v", ErrInvalidConfig, err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Config) {
	d := DefaultConfig()

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = d.Store.Backend
	}
	if cfg.Store.Backend == "redis" && cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = d.Store.RedisAddr
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = d.Store.KeyPrefix
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = d.Sync.PollInterval
	}
	if len(cfg.Sync.WatchedKeys) == 0 {
		cfg.Sync.WatchedKeys = d.Sync.WatchedKeys
	}
	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = d.Transport.Timeout
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = d.Audit.BufferSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	// Paths fill their own blanks when the guard is built.
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Sync.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: Sync PollInterval must be >= 10ms", ErrInvalidConfig)
	}
	if c.Sync.PollInterval > time.Minute {
		return fmt.Errorf("%w: Sync PollInterval must be <= 1m", ErrInvalidConfig)
	}
	if c.Transport.Timeout < 0 {
		return fmt.Errorf("%w: Transport Timeout must be >= 0", ErrInvalidConfig)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when enabled", ErrInvalidConfig)
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return fmt.Errorf("%w: latency histograms require Metrics Enabled", ErrInvalidConfig)
	}

	p := c.Routes.Paths
	for name, path := range map[string]string{
		"root":          p.Root,
		"login":         p.Login,
		"signup":        p.Signup,
		"confirm_email": p.ConfirmEmail,
		"landing":       p.Landing,
		"unauthorized":  p.Unauthorized,
	} {
		if path != "" && !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w: route %s must start with /", ErrInvalidConfig, name)
		}
	}
	for _, r := range c.Routes.Rules {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("%w: role rule prefix %q must start with /", ErrInvalidConfig, r.Prefix)
		}
		if len(r.Roles) == 0 {
			return fmt.Errorf("%w: role rule %q lists no roles", ErrInvalidConfig, r.Prefix)
		}
	}
	return nil
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Sync.WatchedKeys = append([]string(nil), cfg.Sync.WatchedKeys...)
	out.Transport.InvalidTokenMessages = append([]string(nil), cfg.Transport.InvalidTokenMessages...)
	out.Routes.Rules = make([]guard.RoleRule, len(cfg.Routes.Rules))
	for i, r := range cfg.Routes.Rules {
		out.Routes.Rules[i] = guard.RoleRule{Prefix: r.Prefix, Roles: append([]string(nil), r.Roles...)}
	}
	return out
}
