// Package config loads launchq settings from YAML files and LAUNCHQ_* variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/igusev/launchq/internal/index"
	"github.com/igusev/launchq/internal/match"
	"github.com/igusev/launchq/internal/usage"
)

// ErrInvalidConfig is returned when a loaded value is out of range
var ErrInvalidConfig = errors.New("invalid configuration")

// Usage store backends
const (
	StoreSQLite = "sqlite"
	StoreGob    = "gob"
)

// Config holds the application configuration
type Config struct {
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Matching   MatchingConfig   `mapstructure:"matching" yaml:"matching"`
	Usage      UsageConfig      `mapstructure:"usage" yaml:"usage"`
	Extensions ExtensionsConfig `mapstructure:"extensions" yaml:"extensions"`
	Apps       AppsConfig       `mapstructure:"apps" yaml:"apps"`
	Bookmarks  BookmarksConfig  `mapstructure:"bookmarks" yaml:"bookmarks"`
	Files      FilesConfig      `mapstructure:"files" yaml:"files"`
	Notes      NotesConfig      `mapstructure:"notes" yaml:"notes"`
	SSH        SSHConfig        `mapstructure:"ssh" yaml:"ssh"`
	WebSearch  WebSearchConfig  `mapstructure:"websearch" yaml:"websearch"`
}

// EngineConfig holds dispatch settings
type EngineConfig struct {
	Workers   int  `mapstructure:"workers" yaml:"workers"` // 0 means one per CPU
	Fallbacks bool `mapstructure:"fallbacks" yaml:"fallbacks"`
}

// MatchingConfig holds index and matcher settings shared by all handlers
type MatchingConfig struct {
	CaseSensitive         bool   `mapstructure:"case_sensitive" yaml:"case_sensitive"`
	Fuzzy                 bool   `mapstructure:"fuzzy" yaml:"fuzzy"`
	NGramSize             int    `mapstructure:"ngram_size" yaml:"ngram_size"`
	ErrorToleranceDivisor int    `mapstructure:"error_tolerance_divisor" yaml:"error_tolerance_divisor"`
	Separators            string `mapstructure:"separators" yaml:"separators"`
}

// UsageConfig holds usage scoring settings
type UsageConfig struct {
	Decay                  float64 `mapstructure:"decay" yaml:"decay"`
	PrioritizePerfectMatch bool    `mapstructure:"prioritize_perfect_match" yaml:"prioritize_perfect_match"`
	MaxAgeDays             int     `mapstructure:"max_age_days" yaml:"max_age_days"` // 0 keeps everything
	Store                  string  `mapstructure:"store" yaml:"store"`
}

// ExtensionsConfig holds per-extension switches
type ExtensionsConfig struct {
	Disabled []string          `mapstructure:"disabled" yaml:"disabled"` // Extension ids, wildcards allowed
	Triggers map[string]string `mapstructure:"triggers" yaml:"triggers"` // Extension id -> trigger
}

// AppsConfig holds the desktop entry search path
type AppsConfig struct {
	Dirs []string `mapstructure:"dirs" yaml:"dirs"`
}

// BookmarksConfig holds the bookmarks file location
type BookmarksConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// FilesConfig holds the file walker settings
type FilesConfig struct {
	Roots     []string `mapstructure:"roots" yaml:"roots"`
	BatchSize int      `mapstructure:"batch_size" yaml:"batch_size"`
	MaxDepth  int      `mapstructure:"max_depth" yaml:"max_depth"`
}

// NotesConfig holds the markdown notes directory
type NotesConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SSHConfig holds the ssh client config location
type SSHConfig struct {
	Config string `mapstructure:"config" yaml:"config"`
}

// WebSearchConfig holds the search engines offered as fallbacks
type WebSearchConfig struct {
	Engines []SearchEngine `mapstructure:"engines" yaml:"engines"`
}

// SearchEngine is a named URL template; %s is replaced by the escaped query
type SearchEngine struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

// Dir returns the configuration directory
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "launchq")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: "~/.local/share/launchq",
		Engine:  EngineConfig{Workers: 0, Fallbacks: true},
		Matching: MatchingConfig{
			CaseSensitive:         false,
			Fuzzy:                 true,
			NGramSize:             2,
			ErrorToleranceDivisor: match.DefaultErrorToleranceDivisor,
			Separators:            index.DefaultSeparators,
		},
		Usage: UsageConfig{
			Decay:                  0.9,
			PrioritizePerfectMatch: true,
			MaxAgeDays:             100,
			Store:                  StoreSQLite,
		},
		Extensions: ExtensionsConfig{
			Disabled: []string{},
			Triggers: map[string]string{},
		},
		Apps: AppsConfig{Dirs: []string{
			"/usr/share/applications",
			"/usr/local/share/applications",
			"~/.local/share/applications",
		}},
		Bookmarks: BookmarksConfig{File: "~/.config/launchq/bookmarks.yaml", Watch: true},
		Files:     FilesConfig{Roots: []string{"~"}, BatchSize: 50, MaxDepth: 8},
		Notes:     NotesConfig{Dir: "~/notes"},
		SSH:       SSHConfig{Config: "~/.ssh/config"},
		WebSearch: WebSearchConfig{Engines: []SearchEngine{
			{Name: "DuckDuckGo", URL: "https://duckduckgo.com/?q=%s"},
			{Name: "Wikipedia", URL: "https://en.wikipedia.org/wiki/Special:Search?search=%s"},
		}},
	}
}

func setDefaults() {
	d := Default()
	viper.SetDefault("data_dir", d.DataDir)
	viper.SetDefault("engine.workers", d.Engine.Workers)
	viper.SetDefault("engine.fallbacks", d.Engine.Fallbacks)
	viper.SetDefault("matching.case_sensitive", d.Matching.CaseSensitive)
	viper.SetDefault("matching.fuzzy", d.Matching.Fuzzy)
	viper.SetDefault("matching.ngram_size", d.Matching.NGramSize)
	viper.SetDefault("matching.error_tolerance_divisor", d.Matching.ErrorToleranceDivisor)
	viper.SetDefault("matching.separators", d.Matching.Separators)
	viper.SetDefault("usage.decay", d.Usage.Decay)
	viper.SetDefault("usage.prioritize_perfect_match", d.Usage.PrioritizePerfectMatch)
	viper.SetDefault("usage.max_age_days", d.Usage.MaxAgeDays)
	viper.SetDefault("usage.store", d.Usage.Store)
	viper.SetDefault("extensions.disabled", d.Extensions.Disabled)
	viper.SetDefault("extensions.triggers", d.Extensions.Triggers)
	viper.SetDefault("apps.dirs", d.Apps.Dirs)
	viper.SetDefault("bookmarks.file", d.Bookmarks.File)
	viper.SetDefault("bookmarks.watch", d.Bookmarks.Watch)
	viper.SetDefault("files.roots", d.Files.Roots)
	viper.SetDefault("files.batch_size", d.Files.BatchSize)
	viper.SetDefault("files.max_depth", d.Files.MaxDepth)
	viper.SetDefault("notes.dir", d.Notes.Dir)
	viper.SetDefault("ssh.config", d.SSH.Config)
	viper.SetDefault("websearch.engines", d.WebSearch.Engines)
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(Dir())
	viper.AddConfigPath(".") // Also check current directory

	// LAUNCHQ_USAGE_DECAY overrides usage.decay
	viper.SetEnvPrefix("LAUNCHQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range values. Nothing is clamped.
func (c *Config) Validate() error {
	if err := c.IndexConfig().Validate(); err != nil {
		return fmt.Errorf("%w: matching: %v", ErrInvalidConfig, err)
	}
	if err := c.UsageConfig().Validate(); err != nil {
		return fmt.Errorf("%w: usage: %v", ErrInvalidConfig, err)
	}
	if c.Usage.MaxAgeDays < 0 {
		return fmt.Errorf("%w: usage.max_age_days must not be negative", ErrInvalidConfig)
	}
	if c.Usage.Store != StoreSQLite && c.Usage.Store != StoreGob {
		return fmt.Errorf("%w: usage.store %q must be %q or %q", ErrInvalidConfig, c.Usage.Store, StoreSQLite, StoreGob)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("%w: engine.workers must not be negative", ErrInvalidConfig)
	}
	if c.Files.BatchSize < 1 {
		return fmt.Errorf("%w: files.batch_size must be at least 1", ErrInvalidConfig)
	}
	for _, e := range c.WebSearch.Engines {
		if e.Name == "" || !strings.Contains(e.URL, "%s") {
			return fmt.Errorf("%w: websearch engine %q needs a name and a %%s placeholder", ErrInvalidConfig, e.Name)
		}
	}
	return nil
}

// IndexConfig returns the item index settings
func (c *Config) IndexConfig() index.Config {
	return index.Config{
		Separators:            c.Matching.Separators,
		CaseSensitive:         c.Matching.CaseSensitive,
		Fuzzy:                 c.Matching.Fuzzy,
		NGramSize:             c.Matching.NGramSize,
		ErrorToleranceDivisor: c.Matching.ErrorToleranceDivisor,
	}
}

// MatchConfig returns the matcher settings for handlers that match without an index
func (c *Config) MatchConfig() match.Config {
	cfg := match.DefaultConfig()
	cfg.CaseSensitive = c.Matching.CaseSensitive
	cfg.Fuzzy = c.Matching.Fuzzy
	cfg.ErrorToleranceDivisor = c.Matching.ErrorToleranceDivisor
	if re, err := regexp.Compile(c.Matching.Separators); err == nil {
		cfg.Separators = re
	}
	return cfg
}

// UsageConfig returns the usage scoring settings
func (c *Config) UsageConfig() usage.Config {
	return usage.Config{
		Decay:                  c.Usage.Decay,
		PrioritizePerfectMatch: c.Usage.PrioritizePerfectMatch,
		MaxAge:                 time.Duration(c.Usage.MaxAgeDays) * 24 * time.Hour,
	}
}

func (c *Config) expandPaths() {
	c.DataDir = expandPath(c.DataDir)
	for i := range c.Apps.Dirs {
		c.Apps.Dirs[i] = expandPath(c.Apps.Dirs[i])
	}
	c.Bookmarks.File = expandPath(c.Bookmarks.File)
	for i := range c.Files.Roots {
		c.Files.Roots[i] = expandPath(c.Files.Roots[i])
	}
	c.Notes.Dir = expandPath(c.Notes.Dir)
	c.SSH.Config = expandPath(c.SSH.Config)
}

// expandPath expands ~ to home directory in paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home := os.Getenv("HOME")
		if len(path) == 1 {
			return home
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// EnsureConfigDir ensures the config directory exists
func EnsureConfigDir() error {
	return os.MkdirAll(Dir(), 0755)
}

// ExampleConfigPath returns the path where the example config should be created
func ExampleConfigPath() string {
	return filepath.Join(Dir(), "config.yaml.example")
}

// IsDisabled checks if an extension id matches any disabled pattern
func (c *Config) IsDisabled(id string) bool {
	for _, pattern := range c.Extensions.Disabled {
		matched, err := filepath.Match(pattern, id)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// Trigger returns the configured trigger for an extension, empty for the default
func (c *Config) Trigger(id string) string {
	return c.Extensions.Triggers[id]
}

// Disable adds an extension id to the disabled list and saves
func (c *Config) Disable(id string) error {
	for _, existing := range c.Extensions.Disabled {
		if existing == id {
			return nil // Already disabled
		}
	}
	c.Extensions.Disabled = append(c.Extensions.Disabled, id)
	return c.Save()
}

// Enable removes an extension id from the disabled list and saves
func (c *Config) Enable(id string) error {
	kept := make([]string, 0, len(c.Extensions.Disabled))
	changed := false
	for _, p := range c.Extensions.Disabled {
		if p == id {
			changed = true
			continue
		}
		kept = append(kept, p)
	}
	if !changed {
		return nil
	}
	c.Extensions.Disabled = kept
	return c.Save()
}

// Save writes the extension switches to the config file
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("extensions.disabled", c.Extensions.Disabled)
	viper.Set("extensions.triggers", c.Extensions.Triggers)

	if err := viper.WriteConfigAs(filepath.Join(Dir(), "config.yaml")); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

const exampleHeader = `# launchq configuration file
# Place this file at ~/.config/launchq/config.yaml
#
# Every value can be overridden from the environment, e.g.
#   LAUNCHQ_USAGE_DECAY=0.5         (most recently used first)
#   LAUNCHQ_MATCHING_FUZZY=false
#
# usage.decay must be within [0.5, 1.0]: 1.0 ranks by frequency only,
# 0.5 lets any newer activation outweigh all older ones.

`

// ExampleConfig renders the default configuration as commented YAML
func ExampleConfig() ([]byte, error) {
	body, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to render example config: %w", err)
	}
	return append([]byte(exampleHeader), body...), nil
}

// CreateExampleConfig writes the example configuration next to the real one
func CreateExampleConfig() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}
	data, err := ExampleConfig()
	if err != nil {
		return "", err
	}
	path := ExampleConfigPath()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write example config: %w", err)
	}
	return path, nil
}
