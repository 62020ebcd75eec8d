package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/mhemr/internal/domain/session"
	"github.com/spf13/viper"
)

// DevSigningKey signs sandbox tokens when ENV=development and no key is set.
const DevSigningKey = "mhemr-development-signing-key"

type Config struct {
	Env                   string        `mapstructure:"ENV"`
	APIBaseURL            string        `mapstructure:"API_BASE_URL"`
	APITimeout            time.Duration `mapstructure:"API_TIMEOUT"`
	APIToken              string        `mapstructure:"API_TOKEN"`
	SessionTimeoutMinutes int           `mapstructure:"SESSION_TIMEOUT_MINUTES"`
	SessionWarningSeconds int           `mapstructure:"SESSION_WARNING_SECONDS"`
	HeartbeatInterval     time.Duration `mapstructure:"SESSION_HEARTBEAT_INTERVAL"`
	SandboxPort           string        `mapstructure:"SANDBOX_PORT"`
	SandboxSigningKey     string        `mapstructure:"SANDBOX_SIGNING_KEY"`
	SandboxSeedFile       string        `mapstructure:"SANDBOX_SEED_FILE"`
	SandboxSessionMinutes int           `mapstructure:"SANDBOX_SESSION_MINUTES"`
	SandboxBodyLimit      string        `mapstructure:"SANDBOX_BODY_LIMIT"`
	SandboxRequestTimeout time.Duration `mapstructure:"SANDBOX_REQUEST_TIMEOUT"`
	SandboxLoginRate      float64       `mapstructure:"SANDBOX_LOGIN_RATE"`
	SandboxLoginBurst     int           `mapstructure:"SANDBOX_LOGIN_BURST"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("API_BASE_URL", "http://localhost:5000")
	v.SetDefault("API_TIMEOUT", "10s")
	v.SetDefault("SESSION_TIMEOUT_MINUTES", session.DefaultTimeoutMinutes)
	v.SetDefault("SESSION_WARNING_SECONDS", session.DefaultWarningSeconds)
	v.SetDefault("SESSION_HEARTBEAT_INTERVAL", session.DefaultHeartbeatInterval.String())
	v.SetDefault("SANDBOX_PORT", "5000")
	v.SetDefault("SANDBOX_SESSION_MINUTES", 15)
	v.SetDefault("SANDBOX_BODY_LIMIT", "1M")
	v.SetDefault("SANDBOX_REQUEST_TIMEOUT", "30s")
	v.SetDefault("SANDBOX_LOGIN_RATE", 1.0)
	v.SetDefault("SANDBOX_LOGIN_BURST", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "API_BASE_URL", "API_TIMEOUT", "API_TOKEN",
		"SESSION_TIMEOUT_MINUTES", "SESSION_WARNING_SECONDS", "SESSION_HEARTBEAT_INTERVAL",
		"SANDBOX_PORT", "SANDBOX_SIGNING_KEY", "SANDBOX_SEED_FILE", "SANDBOX_SESSION_MINUTES",
		"SANDBOX_BODY_LIMIT", "SANDBOX_REQUEST_TIMEOUT", "SANDBOX_LOGIN_RATE", "SANDBOX_LOGIN_BURST",
		"CORS_ORIGINS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	origins := v.GetString("CORS_ORIGINS")
	if len(cfg.CORSOrigins) <= 1 && origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.SandboxSigningKey == "" && cfg.IsDev() {
		cfg.SandboxSigningKey = DevSigningKey
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the timing values are usable and that sandbox
// tokens are signed with a real key outside development.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	if c.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be positive, got %d", c.SessionTimeoutMinutes)
	}
	if c.SessionWarningSeconds <= 0 {
		return fmt.Errorf("SESSION_WARNING_SECONDS must be positive, got %d", c.SessionWarningSeconds)
	}
	if c.SessionWarningSeconds >= c.SessionTimeoutMinutes*60 {
		return fmt.Errorf("SESSION_WARNING_SECONDS (%d) must be shorter than SESSION_TIMEOUT_MINUTES (%d)",
			c.SessionWarningSeconds, c.SessionTimeoutMinutes)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("SESSION_HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.SandboxSessionMinutes <= 0 {
		return fmt.Errorf("SANDBOX_SESSION_MINUTES must be positive, got %d", c.SandboxSessionMinutes)
	}
	if c.SandboxRequestTimeout <= 0 {
		return fmt.Errorf("SANDBOX_REQUEST_TIMEOUT must be positive, got %s", c.SandboxRequestTimeout)
	}
	if c.SandboxLoginRate <= 0 || c.SandboxLoginBurst <= 0 {
		return fmt.Errorf("SANDBOX_LOGIN_RATE and SANDBOX_LOGIN_BURST must be positive")
	}
	if !c.IsDev() && (c.SandboxSigningKey == "" || c.SandboxSigningKey == DevSigningKey) {
		return fmt.Errorf("SANDBOX_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	return nil
}

// SessionOptions returns the monitor options for this configuration. The
// callbacks and clock are left for the caller to fill in.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		TimeoutMinutes:    c.SessionTimeoutMinutes,
		WarningSeconds:    c.SessionWarningSeconds,
		HeartbeatInterval: c.HeartbeatInterval,
		RequestTimeout:    c.APITimeout,
	}
}

// SandboxSessionTTL is how long an idle sandbox session stays valid.
func (c *Config) SandboxSessionTTL() time.Duration {
	return time.Duration(c.SandboxSessionMinutes) * time.Minute
}
