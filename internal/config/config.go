// Package config provides application configuration management with support for command-line flags,
// environment variables, a TOML config file, and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultCurrencyBaseURL is the public exchangerate-api endpoint.
const DefaultCurrencyBaseURL = "https://api.exchangerate-api.com/v4"

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Currency CurrencyConfig
	Import   ImportConfig

	// File is the config file that was read, empty when none was found.
	File string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// DataPath holds the sqlite database, the rate cache and the daemon lock (default: ~/Ledger).
	DataPath string
}

// DatabasePath is the sqlite database file.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataPath, "ledger.db")
}

// RateCachePath is the badger directory for cached exchange rates.
func (s StorageConfig) RateCachePath() string {
	return filepath.Join(s.DataPath, "rates")
}

// LockPath is the file the watch daemon locks.
func (s StorageConfig) LockPath() string {
	return filepath.Join(s.DataPath, "ledger.lock")
}

// CurrencyConfig holds exchange rate configuration.
type CurrencyConfig struct {
	BaseURL           string
	Timeout           time.Duration // per request (default: 10s)
	CacheTTL          time.Duration // cached quote lifetime (default: 12h)
	RefreshInterval   time.Duration // background refresh, 0 disables (default: 6h)
	RequestsPerSecond float64       // live source throttle (default: 1)
	// Offline skips the live source; cached and fallback rates still apply.
	Offline bool
}

// ImportConfig holds import pipeline configuration.
type ImportConfig struct {
	ProgressEvery int    // rows between progress saves (default: 10)
	DefaultUserID string // owner of files picked up by the inbox watcher
	InboxPath     string // default: {data}/inbox
	SettleDelay   time.Duration
	StaleAfter    time.Duration
}

// Flags carries command-line values. Empty strings and nil pointers mean "not set".
type Flags struct {
	ConfigFile  string
	EnvFile     string
	Environment string
	LogLevel    string
	DataPath    string
	BaseURL     string
	InboxPath   string
	UserID      string
	Offline     *bool
}

// fileConfig mirrors the TOML config file.
type fileConfig struct {
	App      fileApp      `toml:"app"`
	Logger   fileLogger   `toml:"logger"`
	Storage  fileStorage  `toml:"storage"`
	Currency fileCurrency `toml:"currency"`
	Import   fileImport   `toml:"import"`
}

type fileApp struct {
	Environment string `toml:"environment"`
}

type fileLogger struct {
	Level string `toml:"level"`
}

type fileStorage struct {
	DataPath string `toml:"data_path"`
}

type fileCurrency struct {
	BaseURL           string   `toml:"base_url"`
	Timeout           string   `toml:"timeout"`
	CacheTTL          string   `toml:"cache_ttl"`
	RefreshInterval   string   `toml:"refresh_interval"`
	RequestsPerSecond *float64 `toml:"requests_per_second"`
	Offline           *bool    `toml:"offline"`
}

type fileImport struct {
	ProgressEvery *int   `toml:"progress_every"`
	DefaultUserID string `toml:"default_user_id"`
	InboxPath     string `toml:"inbox_path"`
	SettleDelay   string `toml:"settle_delay"`
	StaleAfter    string `toml:"stale_after"`
}

// sources resolves a setting across the configuration layers.
type sources struct {
	dotenv map[string]string
}

// value returns the first non-empty value, with precedence:
// 1. Command-line flag (highest priority).
// 2. Environment variable.
// 3. Config file.
// 4. .env file.
// 5. Default value (lowest priority).
func (s sources) value(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	if fileValue != "" {
		return fileValue
	}
	if dotValue := s.dotenv[envKey]; dotValue != "" {
		return dotValue
	}
	return defaultValue
}

// LoadConfig loads configuration from flags, LEDGER_* environment variables, the TOML
// config file and the .env file, then expands paths and validates the result.
func LoadConfig(flags Flags) (*Config, error) {
	envFile := flags.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := readEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	src := sources{dotenv: dotenv}

	var file fileConfig
	configPath := src.value(flags.ConfigFile, "LEDGER_CONFIG", "", "")
	resolved, err := loadConfigFile(configPath, &file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		File: resolved,
		App: AppConfig{
			Environment: src.value(flags.Environment, "LEDGER_ENV", file.App.Environment, "development"),
		},
		Logger: LoggerConfig{
			Level: src.value(flags.LogLevel, "LEDGER_LOG_LEVEL", file.Logger.Level, "info"),
		},
		Storage: StorageConfig{
			DataPath: src.value(flags.DataPath, "LEDGER_DATA_PATH", file.Storage.DataPath, ""),
		},
		Currency: CurrencyConfig{
			BaseURL: src.value(flags.BaseURL, "LEDGER_CURRENCY_BASE_URL", file.Currency.BaseURL, DefaultCurrencyBaseURL),
		},
		Import: ImportConfig{
			DefaultUserID: src.value(flags.UserID, "LEDGER_USER_ID", file.Import.DefaultUserID, "default"),
			InboxPath:     src.value(flags.InboxPath, "LEDGER_INBOX_PATH", file.Import.InboxPath, ""),
		},
	}

	durations := []struct {
		dst      *time.Duration
		envKey   string
		file     string
		fallback string
	}{
		{&cfg.Currency.Timeout, "LEDGER_CURRENCY_TIMEOUT", file.Currency.Timeout, "10s"},
		{&cfg.Currency.CacheTTL, "LEDGER_CURRENCY_CACHE_TTL", file.Currency.CacheTTL, "12h"},
		{&cfg.Currency.RefreshInterval, "LEDGER_CURRENCY_REFRESH_INTERVAL", file.Currency.RefreshInterval, "6h"},
		{&cfg.Import.SettleDelay, "LEDGER_SETTLE_DELAY", file.Import.SettleDelay, "2s"},
		{&cfg.Import.StaleAfter, "LEDGER_STALE_AFTER", file.Import.StaleAfter, "1h"},
	}
	for _, d := range durations {
		raw := src.value("", d.envKey, d.file, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	rps := src.value("", "LEDGER_CURRENCY_RPS", formatFloat(file.Currency.RequestsPerSecond), "1")
	if cfg.Currency.RequestsPerSecond, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("invalid LEDGER_CURRENCY_RPS %q: %w", rps, err)
	}

	every := src.value("", "LEDGER_PROGRESS_EVERY", formatInt(file.Import.ProgressEvery), "10")
	if cfg.Import.ProgressEvery, err = strconv.Atoi(every); err != nil {
		return nil, fmt.Errorf("invalid LEDGER_PROGRESS_EVERY %q: %w", every, err)
	}

	offline := src.value(formatBool(flags.Offline), "LEDGER_OFFLINE", formatBool(file.Currency.Offline), "false")
	cfg.Currency.Offline = parseBool(offline)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("LEDGER_ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch {
	case c.Currency.Timeout <= 0:
		return errors.New("currency timeout must be positive")
	case c.Currency.CacheTTL < 0:
		return errors.New("currency cache TTL cannot be negative")
	case c.Currency.RefreshInterval < 0:
		return errors.New("currency refresh interval cannot be negative")
	case c.Currency.RequestsPerSecond <= 0:
		return errors.New("currency requests per second must be positive")
	}

	if c.Import.ProgressEvery < 1 {
		return fmt.Errorf("progress interval must be at least 1, got %d", c.Import.ProgressEvery)
	}
	if strings.TrimSpace(c.Import.DefaultUserID) == "" {
		return errors.New("default user ID cannot be empty")
	}
	if c.Import.SettleDelay <= 0 {
		return errors.New("settle delay must be positive")
	}
	if c.Import.StaleAfter <= 0 {
		return errors.New("stale threshold must be positive")
	}

	return nil
}

// DefaultConfigPath returns the config file read when none is given.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ledger/config.toml", "")
}

// loadConfigFile decodes the TOML file at path into dst. An explicit path must exist;
// the default path is optional. Returns the path that was read.
func loadConfigFile(path string, dst *fileConfig) (string, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	} else {
		expanded, err := expandPath(path, "")
		if err != nil {
			return "", err
		}
		path = expanded
	}

	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	return path, nil
}

// readEnvFile reads KEY=value pairs from a .env file. A missing file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return values, nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data path (default ~/Ledger) and the inbox (default {data}/inbox).
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dataPath, err := expandPath(c.Storage.DataPath, filepath.Join(homeDir, "Ledger"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Storage.DataPath = dataPath

	inbox, err := expandPath(c.Import.InboxPath, filepath.Join(dataPath, "inbox"))
	if err != nil {
		return fmt.Errorf("invalid inbox path: %w", err)
	}
	c.Import.InboxPath = inbox
	return nil
}

// parseBool accepts "true", "1", "yes" (case-insensitive) as true; anything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func formatInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
