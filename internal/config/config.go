// Package config loads the ya configuration.
//
// Sources in increasing precedence: built-in defaults, the YAML file
// <root>/.ya/config.yaml (or an explicit path), YA_* environment variables,
// and command-line flags bound through BindFlag. Nested keys map to
// environment variables with dots replaced by underscores, so commit.push is
// YA_COMMIT_PUSH.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the configuration file inside the state directory.
const FileName = "config.yaml"

// Config is the resolved configuration. Relative paths are relative to the
// repository root.
type Config struct {
	CacheDir string `mapstructure:"cache_dir"`
	StateDir string `mapstructure:"state_dir"`
	LiveDB   string `mapstructure:"live_db"`
	// VCS forces a backend: auto, git or jj.
	VCS    string `mapstructure:"vcs"`
	Remote string `mapstructure:"remote"`
	// Ref is the branch (git) or bookmark (jj) pushed and pulled.
	Ref string `mapstructure:"ref"`

	Commit CommitConfig `mapstructure:"commit"`
	Log    LogConfig    `mapstructure:"log"`
	Daemon DaemonConfig `mapstructure:"daemon"`
	Store  StoreConfig  `mapstructure:"store"`
}

type CommitConfig struct {
	Author string `mapstructure:"author"`
	Push   bool   `mapstructure:"push"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DaemonConfig struct {
	PullInterval time.Duration `mapstructure:"pull_interval"`
	Debounce     time.Duration `mapstructure:"debounce"`
	// Listen is the dashboard address. Empty disables it.
	Listen string `mapstructure:"listen"`
}

type StoreConfig struct {
	ParseCacheSize int `mapstructure:"parse_cache_size"`
	Workers        int `mapstructure:"workers"`
}

var defaults = map[string]any{
	"cache_dir":              "cache",
	"state_dir":              ".ya",
	"live_db":                ".ya/live.db",
	"vcs":                    "auto",
	"remote":                 "",
	"ref":                    "",
	"commit.author":          "",
	"commit.push":            false,
	"log.level":              "info",
	"log.file":               "",
	"log.max_size_mb":        10,
	"log.max_backups":        3,
	"log.max_age_days":       28,
	"log.compress":           true,
	"daemon.pull_interval":   time.Minute,
	"daemon.debounce":        200 * time.Millisecond,
	"daemon.listen":          "",
	"store.parse_cache_size": 4096,
	"store.workers":          8,
}

// Loader resolves a Config from its sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader with defaults and environment binding set up.
func NewLoader() *Loader {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("YA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag makes flag override key when it is set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for %s is nil", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the configuration for the repository at root. When path is
// empty, <root>/.ya/config.yaml is read if it exists; an explicit path must
// exist.
func (l *Loader) Load(root, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, ".ya", FileName)
	}
	l.v.SetConfigFile(path)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is NewLoader().Load(root, path).
func Load(root, path string) (*Config, error) {
	return NewLoader().Load(root, path)
}

// Default returns the built-in defaults overlaid with YA_* environment
// variables.
func Default() *Config {
	cfg, err := NewLoader().load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.CacheDir == "":
		return fmt.Errorf("cache_dir cannot be empty")
	case filepath.IsAbs(c.CacheDir):
		return fmt.Errorf("cache_dir must be relative to the repository root")
	case strings.HasPrefix(filepath.ToSlash(filepath.Clean(c.CacheDir)), ".."):
		return fmt.Errorf("cache_dir must be inside the repository")
	case c.StateDir == "":
		return fmt.Errorf("state_dir cannot be empty")
	case c.LiveDB == "":
		return fmt.Errorf("live_db cannot be empty")
	case c.Daemon.PullInterval < 0:
		return fmt.Errorf("daemon.pull_interval cannot be negative")
	case c.Daemon.Debounce <= 0:
		return fmt.Errorf("daemon.debounce must be positive")
	case c.Store.ParseCacheSize < 0:
		return fmt.Errorf("store.parse_cache_size cannot be negative")
	case c.Store.Workers <= 0:
		return fmt.Errorf("store.workers must be positive")
	}
	switch c.VCS {
	case "auto", "git", "jj":
	default:
		return fmt.Errorf("vcs must be auto, git or jj, got %q", c.VCS)
	}
	return nil
}

// Abs resolves a configured path against root.
func Abs(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Starter holds the choices written into a new config file.
type Starter struct {
	VCS    string
	Remote string
	Push   bool
}

// WriteDefault writes a commented starter config file to path unless one
// already exists.
func WriteDefault(path string) error {
	return WriteStarter(path, Starter{})
}

// WriteStarter is WriteDefault with the given choices filled in.
func WriteStarter(path string, s Starter) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.render()), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (s Starter) render() string {
	vcs := "# vcs: auto"
	if s.VCS != "" && s.VCS != "auto" {
		vcs = "vcs: " + s.VCS
	}
	remote := "# remote: origin"
	if s.Remote != "" {
		remote = fmt.Sprintf("remote: %q", s.Remote)
	}
	return fmt.Sprintf(starter, vcs, remote, s.Push)
}

const starter = `# ya configuration. Every key can also be set as YA_<KEY>, with dots
# replaced by underscores.
cache_dir: cache
%s
%s
# ref: main
commit:
  push: %t
log:
  level: info
daemon:
  pull_interval: 1m
  debounce: 200ms
  # listen: 127.0.0.1:7420
`
