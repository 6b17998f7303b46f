// Package config loads sitepass settings from defaults, an optional YAML
// file and SITEPASS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/maskedinput"
	"github.com/forest6511/sitepass/pkg/persist"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

const (
	// EnvPrefix is the prefix of environment overrides; dots in keys become
	// underscores (mask.glyph -> SITEPASS_MASK_GLYPH).
	EnvPrefix = "SITEPASS"
	// DirName is the default data directory under the home directory.
	DirName = ".sitepass"
	// FileName is the config file name looked up in the data directory.
	FileName = "config"

	// Storage backends.
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the resolved configuration.
type Config struct {
	DataDir    string       `mapstructure:"data_dir"`
	Backend    string       `mapstructure:"backend"`
	StorageKey string       `mapstructure:"storage_key"`
	Mask       MaskConfig   `mapstructure:"mask"`
	Breach     BreachConfig `mapstructure:"breach"`
	Log        LogConfig    `mapstructure:"log"`
	SQLite     SQLiteConfig `mapstructure:"sqlite"`
}

// MaskConfig configures the masked master key input.
type MaskConfig struct {
	Glyph       string        `mapstructure:"glyph"`
	RevealDelay time.Duration `mapstructure:"reveal_delay"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// BreachConfig configures breach checking.
type BreachConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// GlyphRune returns the first rune of the glyph.
func (m MaskConfig) GlyphRune() rune {
	for _, r := range m.Glyph {
		return r
	}
	return maskedinput.DefaultGlyph
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper, home string) {
	v.SetDefault("data_dir", filepath.Join(home, DirName))
	v.SetDefault("backend", BackendFile)
	v.SetDefault("storage_key", sitestore.DefaultStorageKey)
	v.SetDefault("mask.glyph", string(maskedinput.DefaultGlyph))
	v.SetDefault("mask.reveal_delay", maskedinput.DefaultRevealDelay)
	v.SetDefault("mask.idle_timeout", maskedinput.DefaultIdleTimeout)
	v.SetDefault("breach.enabled", true)
	v.SetDefault("breach.endpoint", breach.DefaultEndpoint)
	v.SetDefault("breach.timeout", breach.DefaultTimeout)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("sqlite.poll_interval", persist.DefaultPollInterval)
}

// New returns a viper instance with defaults and environment overrides
// registered. When cfgFile is empty, config.yaml in the default data
// directory is used if it exists.
func New(cfgFile string) (*viper.Viper, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: failed to get home directory: %w", err)
	}

	v := viper.New()
	SetDefaults(v, home)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
		v.AddConfigPath(filepath.Join(home, DirName))
	}

	if err := v.ReadInConfig(); err != nil {
		notFound := viper.ConfigFileNotFoundError{}
		// The default config file is optional; an explicit one is not.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}
	c.DataDir = expandHome(c.DataDir)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	case c.Backend != BackendFile && c.Backend != BackendSQLite:
		return fmt.Errorf("%w: backend must be %q or %q, got %q", ErrInvalid, BackendFile, BackendSQLite, c.Backend)
	case c.Mask.Glyph == "":
		return fmt.Errorf("%w: mask.glyph is empty", ErrInvalid)
	case c.Mask.RevealDelay <= 0:
		return fmt.Errorf("%w: mask.reveal_delay must be positive", ErrInvalid)
	case c.Mask.IdleTimeout < 0:
		return fmt.Errorf("%w: mask.idle_timeout must not be negative", ErrInvalid)
	case c.Breach.Timeout <= 0:
		return fmt.Errorf("%w: breach.timeout must be positive", ErrInvalid)
	case c.SQLite.PollInterval <= 0:
		return fmt.Errorf("%w: sqlite.poll_interval must be positive", ErrInvalid)
	}
	if err := persist.ValidateKey(c.StorageKey); err != nil {
		return fmt.Errorf("%w: storage_key: %v", ErrInvalid, err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
