// Package config provides configuration management for promptvault.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultServerPort   = 37780
	DefaultMaxConns     = 1
	DefaultCacheTTL     = 5 * time.Minute
	DefaultParseWorkers = 4
	DefaultLogLevel     = "info"
	DefaultDebounce     = 250 * time.Millisecond

	// EnvPrefix prefixes environment overrides, e.g. PROMPTVAULT_PROMPTS_DIR.
	EnvPrefix = "PROMPTVAULT"

	dataDirName  = ".promptvault"
	dbFileName   = "promptvault.db"
	settingsName = "settings.json"
)

// Config holds promptvault settings.
type Config struct {
	PromptsDir      string        `json:"prompts_dir" mapstructure:"prompts_dir"`
	FragmentsDir    string        `json:"fragments_dir" mapstructure:"fragments_dir"`
	DBPath          string        `json:"db_path" mapstructure:"db_path"`
	LogLevel        string        `json:"log_level" mapstructure:"log_level"`
	LogFile         string        `json:"log_file" mapstructure:"log_file"`
	MetadataCommand string        `json:"metadata_command" mapstructure:"metadata_command"`
	CacheTTL        time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
	WatchDebounce   time.Duration `json:"watch_debounce" mapstructure:"watch_debounce"`
	MaxConns        int           `json:"max_conns" mapstructure:"max_conns"`
	ParseWorkers    int           `json:"parse_workers" mapstructure:"parse_workers"`
	ServerPort      int           `json:"server_port" mapstructure:"server_port"`
}

var (
	global     *Config
	globalOnce sync.Once
)

// DataDir returns the promptvault data directory (~/.promptvault).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the default index database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsName)
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		PromptsDir:    filepath.Join(dir, "prompts"),
		FragmentsDir:  filepath.Join(dir, "fragments"),
		DBPath:        DBPath(),
		LogLevel:      DefaultLogLevel,
		CacheTTL:      DefaultCacheTTL,
		WatchDebounce: DefaultDebounce,
		MaxConns:      DefaultMaxConns,
		ParseWorkers:  DefaultParseWorkers,
		ServerPort:    DefaultServerPort,
	}
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// EnsureAll creates the data directory and the default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

// EnsureLibrary creates the prompts and fragments roots of cfg.
func EnsureLibrary(cfg *Config) error {
	for _, dir := range []string{cfg.PromptsDir, cfg.FragmentsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads settings.json and PROMPTVAULT_* environment overrides on top of
// the defaults. A missing settings file is not an error; a malformed one is
// logged and ignored.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile is Load with an explicit settings file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		default:
			log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable settings file")
			// Start over without the file so partial state does not leak in
			v = viper.New()
			setDefaults(v, Default())
			v.SetEnvPrefix(EnvPrefix)
			v.AutomaticEnv()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("prompts_dir", d.PromptsDir)
	v.SetDefault("fragments_dir", d.FragmentsDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("metadata_command", d.MetadataCommand)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("watch_debounce", d.WatchDebounce)
	v.SetDefault("max_conns", d.MaxConns)
	v.SetDefault("parse_workers", d.ParseWorkers)
	v.SetDefault("server_port", d.ServerPort)
}

// normalize expands ~ in paths and replaces out-of-range values with defaults.
func (c *Config) normalize() {
	c.PromptsDir = expandHome(c.PromptsDir)
	c.FragmentsDir = expandHome(c.FragmentsDir)
	c.DBPath = expandHome(c.DBPath)
	c.LogFile = expandHome(c.LogFile)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.ParseWorkers <= 0 {
		c.ParseWorkers = DefaultParseWorkers
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = DefaultDebounce
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		c.ServerPort = DefaultServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// GetServerPort returns the HTTP port, preferring a valid
// PROMPTVAULT_SERVER_PORT over the loaded configuration.
func GetServerPort() int {
	if raw := os.Getenv(EnvPrefix + "_SERVER_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	return Get().ServerPort
}
