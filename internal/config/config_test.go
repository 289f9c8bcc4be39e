package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_VK_TOKEN", "vk1.secret")

	writeTestYAML(t, dir, DefaultConfigFile, `
api:
  token_env: TEST_VK_TOKEN
  version: "5.131"
  base_url: http://localhost:8080/method
  timeout: 5s
  page_size: 100
  attempts: 2
harvest:
  groups: ["1", "apiclub"]
  max_days_ago: 7
  max_posts: 500
  allow_fields: [id, date, text]
  deduplicate_by_text: true
  min_text_length: 20
  timezone: Europe/Moscow
  posts_input_file: dump.json
watermarks:
  backend: sqlite
  path: state/marks.db
output:
  posts_path: out/posts.json
  reposts_path: out/reposts.json
reposted:
  path: out/reposted.tsv
log:
  level: debug
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := &Config{
		API: APIConfig{
			TokenEnv: "TEST_VK_TOKEN",
			Version:  "5.131",
			BaseURL:  "http://localhost:8080/method",
			Timeout:  Duration{5 * time.Second},
			PageSize: 100,
			Attempts: 2,
			Token:    "vk1.secret",
		},
		Harvest: HarvestConfig{
			Groups:            []string{"1", "apiclub"},
			MaxDaysAgo:        7,
			MaxPosts:          500,
			AllowFields:       []string{"id", "date", "text"},
			DeduplicateByText: true,
			MinTextLength:     20,
			Timezone:          "Europe/Moscow",
			PostsInputFile:    "dump.json",
		},
		Watermarks: WatermarksConfig{Backend: BackendSQLite, Path: "state/marks.db"},
		Output:     OutputConfig{PostsPath: "out/posts.json", RepostsPath: "out/reposts.json"},
		Reposted:   RepostedConfig{Path: "out/reposted.tsv"},
		Log:        LogConfig{Level: "debug"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
harvest:
  max_days_ago: 3
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.API.TokenEnv != DefaultTokenEnv {
		t.Errorf("token_env = %q, want %q", cfg.API.TokenEnv, DefaultTokenEnv)
	}
	if cfg.API.Version != DefaultAPIVersion {
		t.Errorf("version = %q, want %q", cfg.API.Version, DefaultAPIVersion)
	}
	if cfg.API.Timeout.Duration != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", cfg.API.Timeout.Duration, DefaultTimeout)
	}
	if cfg.API.PageSize != DefaultPageSize {
		t.Errorf("page_size = %d, want %d", cfg.API.PageSize, DefaultPageSize)
	}
	if cfg.API.Attempts != DefaultAttempts {
		t.Errorf("attempts = %d, want %d", cfg.API.Attempts, DefaultAttempts)
	}
	if diff := cmp.Diff(DefaultAllowFields, cfg.Harvest.AllowFields); diff != "" {
		t.Errorf("allow_fields mismatch (-want +got):\n%s", diff)
	}
	if cfg.Harvest.MinTextLength != DefaultMinTextLength {
		t.Errorf("min_text_length = %d, want %d", cfg.Harvest.MinTextLength, DefaultMinTextLength)
	}
	if cfg.Harvest.Timezone != DefaultTimezone {
		t.Errorf("timezone = %q, want %q", cfg.Harvest.Timezone, DefaultTimezone)
	}
	if cfg.Watermarks.Backend != BackendTSV || cfg.Watermarks.Path != DefaultTSVPath {
		t.Errorf("watermarks = %+v, want tsv at %s", cfg.Watermarks, DefaultTSVPath)
	}
	if cfg.Output.PostsPath != DefaultPostsPath || cfg.Output.RepostsPath != DefaultRepostsPath {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Reposted.Path != DefaultRepostedPath {
		t.Errorf("reposted.path = %q, want %q", cfg.Reposted.Path, DefaultRepostedPath)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("log.level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoad_SQLiteDefaultPath(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
watermarks:
  backend: sqlite
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Watermarks.Path != DefaultSQLitePath {
		t.Errorf("path = %q, want %q", cfg.Watermarks.Path, DefaultSQLitePath)
	}
}

func TestLoad_EmptyAllowFieldsKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
harvest:
  allow_fields: []
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Harvest.AllowFields) != 0 {
		t.Errorf("allow_fields = %v, want empty", cfg.Harvest.AllowFields)
	}
}

func TestLoad_FileNotFoundUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.PostsPath != DefaultPostsPath {
		t.Errorf("posts_path = %q, want %q", cfg.Output.PostsPath, DefaultPostsPath)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "page size too large", yaml: "api:\n  page_size: 101\n", want: "api.page_size"},
		{name: "negative page size", yaml: "api:\n  page_size: -1\n", want: "api.page_size"},
		{name: "negative attempts", yaml: "api:\n  attempts: -2\n", want: "api.attempts"},
		{name: "bad duration", yaml: "api:\n  timeout: soon\n", want: "parse config"},
		{name: "negative max days", yaml: "harvest:\n  max_days_ago: -1\n", want: "harvest.max_days_ago"},
		{name: "negative max posts", yaml: "harvest:\n  max_posts: -5\n", want: "harvest.max_posts"},
		{name: "negative min text", yaml: "harvest:\n  min_text_length: -1\n", want: "harvest.min_text_length"},
		{name: "unknown timezone", yaml: "harvest:\n  timezone: Not/AZone\n", want: "harvest.timezone"},
		{name: "unknown backend", yaml: "watermarks:\n  backend: redis\n", want: "unknown backend"},
		{name: "unknown log level", yaml: "log:\n  level: loud\n", want: "log.level"},
		{name: "malformed yaml", yaml: "{{{invalid", want: "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTestYAML(t, dir, DefaultConfigFile, tt.yaml)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for empty dir")
	}
	if want := "config dir is required"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err, want)
	}
}

func TestLoad_EnvVarMissing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
api:
  token_env: NONEXISTENT_VAR_12345
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Token != "" {
		t.Errorf("token = %q, want empty", cfg.API.Token)
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Harvest: HarvestConfig{Timezone: "Europe/Moscow"}}
	if got := cfg.Location().String(); got != "Europe/Moscow" {
		t.Errorf("location = %q, want Europe/Moscow", got)
	}

	cfg.Harvest.Timezone = "Not/AZone"
	if got := cfg.Location(); got != time.UTC {
		t.Errorf("location = %v, want UTC fallback", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}
