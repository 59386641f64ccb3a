// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"credlife/internal/filestore"
	"credlife/internal/platform/database"
	"credlife/internal/platform/kafka"
	"credlife/internal/platform/redis"
)

// Prefix is prepended to every variable name, e.g. CREDLIFE_ADDR.
const Prefix = "CREDLIFE"

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Environment     string        `envconfig:"ENV" default:"development"`
	Addr            string        `envconfig:"ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	TracingEnabled  bool          `envconfig:"TRACING_ENABLED"`
	TrustedProxies  []string      `envconfig:"TRUSTED_PROXIES"`
}

// Auth configures bearer token verification and issuance.
type Auth struct {
	JWTSigningKey string        `envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER" default:"credlife"`
	JWTAudience   string        `envconfig:"JWT_AUDIENCE" default:"credlife-api"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"15m"`
}

// Lifecycle tunes the credential rules and background work.
type Lifecycle struct {
	PolicyFile      string        `envconfig:"POLICY_FILE"`
	StatusCacheTTL  time.Duration `envconfig:"STATUS_CACHE_TTL" default:"10m"`
	ScanInterval    time.Duration `envconfig:"SCAN_INTERVAL" default:"1h"`
	WarningWindow   time.Duration `envconfig:"SCAN_WARNING_WINDOW" default:"720h"`
	ScanBatchSize   int           `envconfig:"SCAN_BATCH_SIZE" default:"500"`
	ScanConcurrency int           `envconfig:"SCAN_CONCURRENCY" default:"8"`
	ScannerEnabled  bool          `envconfig:"SCANNER_ENABLED" default:"true"`
}

// Outbox tunes the event relay.
type Outbox struct {
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"500ms"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	Retention    time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`
}

// Config is the complete process configuration.
type Config struct {
	Server    Server
	Auth      Auth
	Lifecycle Lifecycle
	Outbox    Outbox
	Database  database.Config
	Redis     redis.Config
	Kafka     kafka.Config
	S3        filestore.Config
}

// TrustedProxyPrefixes returns the parsed proxy ranges. Load has already
// validated them.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, p := range c.Server.TrustedProxies {
		if prefix, err := netip.ParsePrefix(p); err == nil {
			out = append(out, prefix)
		}
	}
	return out
}

// IsDevelopment reports whether the process runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Load reads an optional dotenv file, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	sections := []struct {
		name string
		dst  any
	}{
		{"server", &cfg.Server},
		{"auth", &cfg.Auth},
		{"lifecycle", &cfg.Lifecycle},
		{"outbox", &cfg.Outbox},
		{"database", &cfg.Database},
		{"redis", &cfg.Redis},
		{"kafka", &cfg.Kafka},
		{"s3", &cfg.S3},
	}
	for _, s := range sections {
		if err := envconfig.Process(Prefix, s.dst); err != nil {
			return nil, fmt.Errorf("%s config: %w", s.name, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSigningKey == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("%s_JWT_SIGNING_KEY is required outside development", Prefix)
		}
		c.Auth.JWTSigningKey = devSigningKey
	}
	for _, p := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err != nil {
			return fmt.Errorf("%s_TRUSTED_PROXIES: %w", Prefix, err)
		}
	}
	if c.Lifecycle.ScanConcurrency < 1 {
		return fmt.Errorf("%s_SCAN_CONCURRENCY must be at least 1", Prefix)
	}
	if c.Lifecycle.WarningWindow < 0 {
		return fmt.Errorf("%s_SCAN_WARNING_WINDOW must not be negative", Prefix)
	}
	return nil
}
