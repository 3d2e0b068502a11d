package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client settings. Values come from defaults, then the TOML
// file, then TABLES_* environment variables.
type Config struct {
	ServerURL     string        `mapstructure:"server-url"`
	Timeout       time.Duration `mapstructure:"request-timeout"`
	RetryAttempts int           `mapstructure:"retry-attempts"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`
	RedirectDelay time.Duration `mapstructure:"redirect-delay"`

	PollInterval         time.Duration `mapstructure:"poll-interval"`
	PollMaxAttempts      int           `mapstructure:"poll-max-attempts"`
	PollFailureThreshold int           `mapstructure:"poll-failure-threshold"`
	PollProgressEvery    int           `mapstructure:"poll-progress-every"`

	// RefreshInterval is how often the TUI refreshes file indicators in the
	// background. Zero disables the refresher.
	RefreshInterval time.Duration `mapstructure:"refresh-interval"`

	DownloadDir string `mapstructure:"download-dir"`
	CookieFile  string `mapstructure:"cookie-file"`
	PrefsFile   string `mapstructure:"prefs-file"`

	LogFile   string `mapstructure:"log-file"`
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
}

const (
	envPrefix         = "TABLES"
	defaultConfigPath = "~/.config/tables/config.toml"
	defaultServerURL  = "http://127.0.0.1:5000"
	defaultCookieFile = "~/.local/share/tables/cookies.json"
	defaultPrefsFile  = "~/.config/tables/prefs.toml"
	defaultLogFile    = "~/.local/state/tables/tables.log"
	defaultDownload   = "~/Downloads"
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Load reads the config file at path (or the default location), applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigFile(resolved)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	_ = cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server-url", defaultServerURL)
	v.SetDefault("request-timeout", 30*time.Second)
	v.SetDefault("retry-attempts", 3)
	v.SetDefault("retry-delay", time.Second)
	v.SetDefault("redirect-delay", 2*time.Second)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("poll-max-attempts", 60)
	v.SetDefault("poll-failure-threshold", 5)
	v.SetDefault("poll-progress-every", 10)
	v.SetDefault("refresh-interval", time.Duration(0))
	v.SetDefault("download-dir", defaultDownload)
	v.SetDefault("cookie-file", defaultCookieFile)
	v.SetDefault("prefs-file", defaultPrefsFile)
	v.SetDefault("log-file", defaultLogFile)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

func (c *Config) normalize() error {
	c.ServerURL = strings.TrimRight(strings.TrimSpace(c.ServerURL), "/")
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("request-timeout must be positive, got %s", c.Timeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry-attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 || c.RedirectDelay < 0 || c.RefreshInterval < 0 {
		return fmt.Errorf("delays and intervals must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxAttempts < 1 || c.PollFailureThreshold < 1 || c.PollProgressEvery < 1 {
		return fmt.Errorf("poll limits must be at least 1")
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	case "warning":
		c.LogLevel = "warn"
	default:
		return fmt.Errorf("unknown log-level %q", c.LogLevel)
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log-format %q", c.LogFormat)
	}

	c.DownloadDir = expandOr(c.DownloadDir, defaultDownload)
	c.CookieFile = expandOr(c.CookieFile, defaultCookieFile)
	c.PrefsFile = expandOr(c.PrefsFile, defaultPrefsFile)
	c.LogFile = expandOr(c.LogFile, defaultLogFile)
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandOr(path, fallback string) string {
	if strings.TrimSpace(path) == "" {
		path = fallback
	}
	return mustExpand(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
