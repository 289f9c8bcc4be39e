package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir     = "configs"
	DefaultConfigFile    = "config.yaml"
	DefaultTokenEnv      = "VK_ACCESS_TOKEN"
	DefaultAPIVersion    = "5.199"
	DefaultBaseURL       = "https://api.vk.com/method"
	DefaultTimeout       = 30 * time.Second
	DefaultPageSize      = 20
	MaxPageSize          = 100
	DefaultAttempts      = 5
	DefaultMinTextLength = 10
	DefaultTimezone      = "UTC"
	DefaultBackend       = BackendTSV
	DefaultTSVPath       = "configs/group_ids.tsv"
	DefaultSQLitePath    = ".wallharvest/watermarks.db"
	DefaultPostsPath     = "posts.json"
	DefaultRepostsPath   = "reposts.json"
	DefaultRepostedPath  = "configs/reposted_groups.tsv"
	DefaultLogLevel      = "info"
	BackendTSV           = "tsv"
	BackendSQLite        = "sqlite"
)

// DefaultAllowFields are the post attributes kept when allow_fields is not
// set.
var DefaultAllowFields = []string{
	"marked_as_ads", "copy_history", "date", "from_id", "id",
	"owner_id", "post_source", "post_type", "text",
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	API        APIConfig        `yaml:"api"`
	Harvest    HarvestConfig    `yaml:"harvest"`
	Watermarks WatermarksConfig `yaml:"watermarks"`
	Output     OutputConfig     `yaml:"output"`
	Reposted   RepostedConfig   `yaml:"reposted"`
	Log        LogConfig        `yaml:"log"`
}

type APIConfig struct {
	TokenEnv string   `yaml:"token_env"`
	Version  string   `yaml:"version"`
	BaseURL  string   `yaml:"base_url"`
	Timeout  Duration `yaml:"timeout"`
	PageSize int      `yaml:"page_size"`
	Attempts int      `yaml:"attempts"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type HarvestConfig struct {
	Groups            []string `yaml:"groups"`
	MaxDaysAgo        int      `yaml:"max_days_ago"`
	MaxPosts          int      `yaml:"max_posts"`
	AllowFields       []string `yaml:"allow_fields"`
	DeduplicateByText bool     `yaml:"deduplicate_by_text"`
	MinTextLength     int      `yaml:"min_text_length"`
	Timezone          string   `yaml:"timezone"`
	PostsInputFile    string   `yaml:"posts_input_file"`
}

type WatermarksConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type OutputConfig struct {
	PostsPath   string `yaml:"posts_path"`
	RepostsPath string `yaml:"reposts_path"`
}

type RepostedConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and
// validates. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	var cfg Config
	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.API.TokenEnv == "" {
		cfg.API.TokenEnv = DefaultTokenEnv
	}
	if cfg.API.Version == "" {
		cfg.API.Version = DefaultAPIVersion
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.Timeout.Duration == 0 {
		cfg.API.Timeout.Duration = DefaultTimeout
	}
	if cfg.API.PageSize == 0 {
		cfg.API.PageSize = DefaultPageSize
	}
	if cfg.API.Attempts == 0 {
		cfg.API.Attempts = DefaultAttempts
	}
	if cfg.Harvest.AllowFields == nil {
		cfg.Harvest.AllowFields = append([]string(nil), DefaultAllowFields...)
	}
	if cfg.Harvest.MinTextLength == 0 {
		cfg.Harvest.MinTextLength = DefaultMinTextLength
	}
	if cfg.Harvest.Timezone == "" {
		cfg.Harvest.Timezone = DefaultTimezone
	}
	if cfg.Watermarks.Backend == "" {
		cfg.Watermarks.Backend = DefaultBackend
	}
	if cfg.Watermarks.Path == "" {
		if cfg.Watermarks.Backend == BackendSQLite {
			cfg.Watermarks.Path = DefaultSQLitePath
		} else {
			cfg.Watermarks.Path = DefaultTSVPath
		}
	}
	if cfg.Output.PostsPath == "" {
		cfg.Output.PostsPath = DefaultPostsPath
	}
	if cfg.Output.RepostsPath == "" {
		cfg.Output.RepostsPath = DefaultRepostsPath
	}
	if cfg.Reposted.Path == "" {
		cfg.Reposted.Path = DefaultRepostedPath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func resolveEnv(cfg *Config) {
	if cfg.API.TokenEnv != "" {
		cfg.API.Token = os.Getenv(cfg.API.TokenEnv)
	}
}

// Validate checks value ranges. It is called by Load and again after
// command-line overrides.
func (cfg *Config) Validate() error {
	if cfg.API.PageSize < 1 || cfg.API.PageSize > MaxPageSize {
		return fmt.Errorf("api.page_size: %d out of range 1..%d", cfg.API.PageSize, MaxPageSize)
	}
	if cfg.API.Attempts < 1 {
		return fmt.Errorf("api.attempts: must be positive, got %d", cfg.API.Attempts)
	}
	if cfg.API.Timeout.Duration < 0 {
		return fmt.Errorf("api.timeout: must not be negative, got %s", cfg.API.Timeout.Duration)
	}
	if cfg.Harvest.MaxDaysAgo < 0 {
		return fmt.Errorf("harvest.max_days_ago: must not be negative, got %d", cfg.Harvest.MaxDaysAgo)
	}
	if cfg.Harvest.MaxPosts < 0 {
		return fmt.Errorf("harvest.max_posts: must not be negative, got %d", cfg.Harvest.MaxPosts)
	}
	if cfg.Harvest.MinTextLength < 1 {
		return fmt.Errorf("harvest.min_text_length: must be positive, got %d", cfg.Harvest.MinTextLength)
	}
	if _, err := time.LoadLocation(cfg.Harvest.Timezone); err != nil {
		return fmt.Errorf("harvest.timezone: %w", err)
	}

	switch cfg.Watermarks.Backend {
	case BackendTSV, BackendSQLite:
		// valid
	default:
		return fmt.Errorf("watermarks.backend: unknown backend %q (want %s or %s)", cfg.Watermarks.Backend, BackendTSV, BackendSQLite)
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Location returns the time zone that defines the calendar day of a run.
func (cfg *Config) Location() *time.Location {
	loc, err := time.LoadLocation(cfg.Harvest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", level)
	}
}
