package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the orchestrator's top-level configuration, built via
// functional options layered over environment-variable defaults.
type Config struct {
	ServiceName string
	RunID       string

	Logging     LoggingConfig
	Development DevelopmentConfig
	Telemetry   TelemetryConfig
	Session     SessionConfig
	Checkpoint  CheckpointConfig
	Router      RouterConfig
	Budget      BudgetConfig

	logger Logger
}

// LoggingConfig controls ProductionLogger output.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output string // stdout, stderr
}

// DevelopmentConfig enables local-dev conveniences.
type DevelopmentConfig struct {
	Enabled      bool
	DebugLogging bool
	PrettyLogs   bool
}

// TelemetryConfig holds OpenTelemetry settings. No package in this module
// reads it; the telemetry package takes its settings as arguments.
type TelemetryConfig struct {
	Enabled       bool
	ServiceName   string
	OTLPEndpoint  string // OTLP/HTTP collector; telemetry defaults empty to localhost:4318
	SampleRatio   float64
}

// SessionConfig controls session.Store selection and GC.
type SessionConfig struct {
	Backend  string // memory, file, redis
	Dir      string // for file backend
	RedisURL string
	TTL      time.Duration
	GCCron   string // cron schedule for periodic reaper; empty disables
}

// CheckpointConfig controls checkpoint.Manager selection.
type CheckpointConfig struct {
	Backend  string // file, redis
	Dir      string
	RedisURL string
}

// RouterConfig holds router settings. No package in this module reads them;
// ModelRouter and FallbackRouter take their settings from their
// constructors.
type RouterConfig struct {
	DefaultTier     string
	MaxCascadeHops  int
	ProbeTimeout    time.Duration
}

// BudgetConfig controls the Cost Plugin's spend ceilings.
type BudgetConfig struct {
	MaxUSD        float64
	MaxTokens     int
	MaxToolCalls  int
}

// Option mutates a Config during construction and may fail validation
// eagerly.
type Option func(*Config) error

// DefaultConfig returns the baseline configuration before environment
// overlay or explicit options are applied.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "taskctl",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Development: DevelopmentConfig{},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "taskctl",
			SampleRatio: 1.0,
		},
		Session: SessionConfig{
			Backend: "memory",
			Dir:     ".taskctl/sessions",
			TTL:     24 * time.Hour,
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Dir:     ".taskctl/checkpoints",
		},
		Router: RouterConfig{
			DefaultTier:    "standard",
			MaxCascadeHops: 3,
			ProbeTimeout:   2 * time.Second,
		},
		Budget: BudgetConfig{
			MaxUSD:       0, // 0 = unlimited
			MaxTokens:    0,
			MaxToolCalls: 0,
		},
	}
}

// DetectEnvironment adjusts defaults for Kubernetes vs. local development,
// matching the teacher's auto-detection via KUBERNETES_SERVICE_HOST.
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Logging.Format = "json"
		return
	}
	if os.Getenv("TASKCTL_DEV_MODE") != "false" {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
	}
}

// LoadFromEnv overlays TASKCTL_* environment variables onto the config.
// Environment variables take precedence over DefaultConfig but are
// overridden by explicit Options passed to NewConfig.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TASKCTL_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("TASKCTL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TASKCTL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TASKCTL_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("TASKCTL_SESSION_DIR"); v != "" {
		c.Session.Dir = v
	}
	if v := os.Getenv("TASKCTL_REDIS_URL"); v != "" {
		c.Session.RedisURL = v
		c.Checkpoint.RedisURL = v
	}
	if v := os.Getenv("TASKCTL_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = d
		}
	}
	if v := os.Getenv("TASKCTL_CHECKPOINT_BACKEND"); v != "" {
		c.Checkpoint.Backend = v
	}
	if v := os.Getenv("TASKCTL_CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.Dir = v
	}
	if v := os.Getenv("TASKCTL_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("TASKCTL_BUDGET_MAX_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Budget.MaxUSD = f
		}
	}
	if v := os.Getenv("TASKCTL_BUDGET_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.MaxTokens = n
		}
	}
	return nil
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return NewFrameworkError("Config.Validate", "config", ErrMissingConfiguration)
	}
	switch c.Session.Backend {
	case "memory", "file", "redis":
	default:
		return NewFrameworkError("Config.Validate", "config",
			fmt.Errorf("%w: unknown session backend %q", ErrInvalidConfiguration, c.Session.Backend))
	}
	if c.Session.Backend == "redis" && c.Session.RedisURL == "" {
		return NewFrameworkError("Config.Validate", "config",
			fmt.Errorf("%w: session backend redis requires TASKCTL_REDIS_URL", ErrMissingConfiguration))
	}
	switch c.Checkpoint.Backend {
	case "file", "redis":
	default:
		return NewFrameworkError("Config.Validate", "config",
			fmt.Errorf("%w: unknown checkpoint backend %q", ErrInvalidConfiguration, c.Checkpoint.Backend))
	}
	if c.Checkpoint.Backend == "redis" && c.Checkpoint.RedisURL == "" {
		return NewFrameworkError("Config.Validate", "config",
			fmt.Errorf("%w: checkpoint backend redis requires TASKCTL_REDIS_URL", ErrMissingConfiguration))
	}
	if c.Budget.MaxUSD < 0 || c.Budget.MaxTokens < 0 || c.Budget.MaxToolCalls < 0 {
		return NewFrameworkError("Config.Validate", "config",
			fmt.Errorf("%w: budget limits must be non-negative", ErrInvalidConfiguration))
	}
	return nil
}

// WithServiceName sets the service name used in logs and telemetry.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: service name cannot be empty", ErrInvalidConfiguration)
		}
		c.ServiceName = name
		c.Telemetry.ServiceName = name
		return nil
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format ("text" or "json").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		if format != "text" && format != "json" {
			return fmt.Errorf("%w: log format must be text or json", ErrInvalidConfiguration)
		}
		c.Logging.Format = format
		return nil
	}
}

// WithSessionStore configures the session backend ("memory", "file",
// "redis") and, for file, its directory.
func WithSessionStore(backend, location string) Option {
	return func(c *Config) error {
		c.Session.Backend = backend
		switch backend {
		case "file":
			c.Session.Dir = location
		case "redis":
			c.Session.RedisURL = location
		}
		return nil
	}
}

// WithSessionTTL sets how long idle sessions survive before GC.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: session TTL must be positive", ErrInvalidConfiguration)
		}
		c.Session.TTL = ttl
		return nil
	}
}

// WithSessionGCCron enables a periodic reaper sweep on the given cron
// schedule (robfig/cron syntax).
func WithSessionGCCron(schedule string) Option {
	return func(c *Config) error {
		c.Session.GCCron = schedule
		return nil
	}
}

// WithCheckpointStore configures the checkpoint backend ("file", "redis").
func WithCheckpointStore(backend, location string) Option {
	return func(c *Config) error {
		c.Checkpoint.Backend = backend
		switch backend {
		case "file":
			c.Checkpoint.Dir = location
		case "redis":
			c.Checkpoint.RedisURL = location
		}
		return nil
	}
}

// WithTelemetry records whether telemetry is enabled and the OTLP/HTTP
// collector endpoint. The telemetry package exports over OTLP/HTTP only (no
// stdout exporter) and defaults an empty endpoint to localhost:4318.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.OTLPEndpoint = endpoint
		return nil
	}
}

// WithBudget sets the Cost Plugin's ceilings. Zero means unlimited.
func WithBudget(maxUSD float64, maxTokens, maxToolCalls int) Option {
	return func(c *Config) error {
		c.Budget.MaxUSD = maxUSD
		c.Budget.MaxTokens = maxTokens
		c.Budget.MaxToolCalls = maxToolCalls
		return nil
	}
}

// WithRouterDefaults sets the default model tier and cascade hop limit.
func WithRouterDefaults(tier string, maxCascadeHops int) Option {
	return func(c *Config) error {
		c.Router.DefaultTier = tier
		c.Router.MaxCascadeHops = maxCascadeHops
		return nil
	}
}

// WithDevelopmentMode forces development conveniences on or off.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		c.Development.PrettyLogs = enabled
		return nil
	}
}

// WithLogger attaches a pre-built logger instead of constructing one from
// LoggingConfig.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig builds a Config: defaults, then environment overlay, then the
// supplied options, then validation - matching the teacher's layering order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DetectEnvironment()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, NewFrameworkError("NewConfig", "config", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("NewConfig", "config", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.ServiceName, cfg.Logging.Level, cfg.Logging.Format, cfg.Development.DebugLogging)
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Logger returns the config's logger, constructing the default
// ProductionLogger if NewConfig has not run yet.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		c.logger = NewProductionLogger(c.ServiceName, c.Logging.Level, c.Logging.Format, c.Development.DebugLogging)
	}
	return c.logger
}
