package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("config")

// AppName names the per-user data directory and the startup shortcut.
const AppName = "ShortRun"

// Config is the user-level settings document. It is read once at startup,
// passed to whoever needs it, and written back after each change.
type Config struct {
	Theme            string `mapstructure:"theme"`
	LastTab          int    `mapstructure:"last_tab"`
	RunElevated      bool   `mapstructure:"run_elevated"`
	ShowUninstallers bool   `mapstructure:"show_uninstallers"`
	Author           string `mapstructure:"author"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	LogFile          string `mapstructure:"log_file"`
	AuditEnabled     bool   `mapstructure:"audit_enabled"`
}

func Default() *Config {
	return &Config{
		Theme:        "system",
		Author:       AppName,
		LogLevel:     "warn",
		LogFormat:    "text",
		AuditEnabled: true,
	}
}

// Keys lists every settable key in file order.
var Keys = []string{
	"theme",
	"last_tab",
	"run_elevated",
	"show_uninstallers",
	"author",
	"log_level",
	"log_format",
	"log_file",
	"audit_enabled",
}

// Store loads and saves a Config at a fixed path on a filesystem.
type Store struct {
	fs   afero.Fs
	path string
}

// NewStore returns a store for path on fsys. An empty path means DefaultPath().
func NewStore(fsys afero.Fs, path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{fs: fsys, path: path}
}

// Path returns the config file location.
func (s *Store) Path() string { return s.path }

// Load reads the config file. A missing or unreadable file yields defaults;
// SHORTRUN_* environment variables override both.
func (s *Store) Load() *Config {
	return s.load(true)
}

func (s *Store) load(withEnv bool) *Config {
	v := s.newViper(withEnv)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			log.Warn("config unreadable, using defaults", "path", s.path, "error", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		log.Warn("config decode failed, using defaults", "path", s.path, "error", err)
		cfg = Default()
	}
	cfg.Validate()
	return cfg
}

// Save writes cfg to the store's path, creating the directory if needed.
func (s *Store) Save(cfg *Config) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetFs(s.fs)
	for key, value := range cfg.values() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Set assigns one key from its string form, validates, and persists. The
// change is applied to the file's own values, so SHORTRUN_* overrides in cfg
// are never written out. cfg is updated to match.
func (s *Store) Set(cfg *Config, key, value string) error {
	onDisk := s.load(false)
	if err := onDisk.set(key, value); err != nil {
		return err
	}
	result := onDisk.ValidateTiered()
	if result.HasFatals() {
		return errors.Join(result.Fatals...)
	}
	if err := s.Save(onDisk); err != nil {
		return err
	}
	if err := cfg.set(key, value); err != nil {
		return err
	}
	cfg.Validate()
	return nil
}

func (s *Store) newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	v.SetFs(s.fs)
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if withEnv {
		v.SetEnvPrefix("SHORTRUN")
		v.AutomaticEnv()
	}
	// Defaults make every key visible to AutomaticEnv during Unmarshal.
	for key, value := range Default().values() {
		v.SetDefault(key, value)
	}
	return v
}

// Get returns the string form of one key.
func (c *Config) Get(key string) (string, error) {
	value, ok := c.values()[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return cast.ToString(value), nil
}

func (c *Config) values() map[string]any {
	return map[string]any{
		"theme":             c.Theme,
		"last_tab":          c.LastTab,
		"run_elevated":      c.RunElevated,
		"show_uninstallers": c.ShowUninstallers,
		"author":            c.Author,
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
		"log_file":          c.LogFile,
		"audit_enabled":     c.AuditEnabled,
	}
}

func (c *Config) set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "theme":
		c.Theme = strings.ToLower(value)
	case "last_tab":
		c.LastTab, err = cast.ToIntE(value)
	case "run_elevated":
		c.RunElevated, err = cast.ToBoolE(value)
	case "show_uninstallers":
		c.ShowUninstallers, err = cast.ToBoolE(value)
	case "author":
		c.Author = value
	case "log_level":
		c.LogLevel = strings.ToLower(value)
	case "log_format":
		c.LogFormat = strings.ToLower(value)
	case "log_file":
		c.LogFile = value
	case "audit_enabled":
		c.AuditEnabled, err = cast.ToBoolE(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Load reads the config at cfgFile (DefaultPath() when empty) from disk.
func Load(cfgFile string) *Config {
	return NewStore(afero.NewOsFs(), cfgFile).Load()
}

// Save writes cfg to cfgFile (DefaultPath() when empty) on disk.
func Save(cfg *Config, cfgFile string) error {
	return NewStore(afero.NewOsFs(), cfgFile).Save(cfg)
}

// DefaultPath is <data dir>/config.json.
func DefaultPath() string {
	return filepath.Join(GetDataDir(), "config.json")
}

// GetDataDir returns the per-user directory holding config, logs and the
// audit journal: %APPDATA%\ShortRun on Windows.
func GetDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, AppName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+strings.ToLower(AppName))
}
