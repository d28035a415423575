// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"chaseinvest/internal/browser"
)

// Config holds the application configuration.
type Config struct {
	Browser     Browser     `yaml:"browser"`
	Credentials Credentials `yaml:"credentials"`
	Storage     Storage     `yaml:"storage"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Orders      Orders      `yaml:"orders"`
}

// Browser configures the Chrome instance.
type Browser struct {
	Headless bool   `yaml:"headless"`
	Docker   bool   `yaml:"docker"`
	ExecPath string `yaml:"exec_path"`

	// Profile names the persistent user-data profile. Empty means a fresh
	// profile on every start.
	Profile    string `yaml:"profile"`
	ProfileDir string `yaml:"profile_dir"`

	UserAgent          string        `yaml:"user_agent"`
	Width              int           `yaml:"width"`
	Height             int           `yaml:"height"`
	NavigationInterval time.Duration `yaml:"navigation_interval"`
}

// Credentials are the logon details. When empty, the credential vault is
// consulted instead.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	LastFour string `yaml:"last_four"`
}

// Storage holds paths and secrets for data persistence.
type Storage struct {
	SQLitePath       string `yaml:"sqlite_path"`
	EncryptionSecret string `yaml:"encryption_secret"` // Used for sealing stored credentials

	// RetentionDays bounds how long snapshots, sync history and audit
	// entries are kept. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// Server holds the local API listener configuration.
type Server struct {
	Host           string  `yaml:"host"`
	Port           string  `yaml:"port"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second per client
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// APIToken, when set, must be sent as a bearer token on every request
	// except /health and the code-entry page.
	APIToken string `yaml:"api_token"`

	// PublicURL is the base URL encoded into the MFA QR code. Empty means
	// the request's own host.
	PublicURL string `yaml:"public_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Orders sets defaults for the order flow.
type Orders struct {
	AcceptWarnings bool `yaml:"accept_warnings"`
	AfterHours     bool `yaml:"after_hours"`
}

// New creates a new Config with values from environment variables or defaults.
func New() *Config {
	cfg := defaults()
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads the YAML configuration file at path over the defaults and then
// applies environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	opts := browser.DefaultOptions()
	return &Config{
		Browser: Browser{
			Headless:           true,
			ProfileDir:         ".",
			UserAgent:          opts.UserAgent,
			Width:              opts.Width,
			Height:             opts.Height,
			NavigationInterval: opts.NavigationInterval,
		},
		Storage: Storage{
			SQLitePath:       filepath.Join("data", "chaseinvest.db"),
			EncryptionSecret: "change-me-in-production-32chars!",
			RetentionDays:    365,
		},
		Server: Server{
			Host:           "localhost",
			Port:           "8080",
			RateLimit:      5,
			RateLimitBurst: 10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	cfg.Credentials.Username = getEnv("CHASE_USERNAME", cfg.Credentials.Username)
	cfg.Credentials.Password = getEnv("CHASE_PASSWORD", cfg.Credentials.Password)
	cfg.Credentials.LastFour = getEnv("CHASE_LAST_FOUR", cfg.Credentials.LastFour)

	cfg.Browser.ProfileDir = getEnv("CHASE_PROFILE_DIR", cfg.Browser.ProfileDir)
	cfg.Browser.Profile = getEnv("CHASE_PROFILE", cfg.Browser.Profile)
	if v, err := strconv.ParseBool(os.Getenv("CHASE_HEADLESS")); err == nil {
		cfg.Browser.Headless = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CHASE_DOCKER")); err == nil {
		cfg.Browser.Docker = v
	}

	cfg.Storage.SQLitePath = getEnv("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.EncryptionSecret = getEnv("ENCRYPTION_SECRET", cfg.Storage.EncryptionSecret)
	if v, err := strconv.Atoi(os.Getenv("RETENTION_DAYS")); err == nil {
		cfg.Storage.RetentionDays = v
	}

	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.APIToken = getEnv("CHASE_API_TOKEN", cfg.Server.APIToken)
	cfg.Server.PublicURL = getEnv("CHASE_PUBLIC_URL", cfg.Server.PublicURL)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required"))
	}
	if len(c.Storage.EncryptionSecret) < 32 {
		errs = append(errs, errors.New("storage.encryption_secret must be at least 32 characters"))
	}
	if c.Credentials.LastFour != "" && len(c.Credentials.LastFour) != 4 {
		errs = append(errs, errors.New("credentials.last_four must be 4 digits"))
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retention_days must not be negative"))
	}
	if c.Browser.Width < 0 || c.Browser.Height < 0 {
		errs = append(errs, errors.New("browser window size must not be negative"))
	}
	return errors.Join(errs...)
}

// VaultProfile is the name credentials are stored under: the browser
// profile, or "default" without one.
func (c *Config) VaultProfile() string {
	if c.Browser.Profile != "" {
		return c.Browser.Profile
	}
	return "default"
}

// Retention returns how long journal rows are kept. Zero means forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// Address returns the full address to bind the server to.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// BrowserOptions converts the browser section to launch options.
func (c *Config) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Docker = c.Browser.Docker
	opts.ExecPath = c.Browser.ExecPath
	opts.Title = c.Browser.Profile
	opts.ProfilePath = c.Browser.ProfileDir
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.Width > 0 && c.Browser.Height > 0 {
		opts.Width = c.Browser.Width
		opts.Height = c.Browser.Height
	}
	if c.Browser.NavigationInterval > 0 {
		opts.NavigationInterval = c.Browser.NavigationInterval
	}
	return opts
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
