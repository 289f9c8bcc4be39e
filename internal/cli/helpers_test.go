package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/wallharvest/internal/config"
	"github.com/spf13/cobra"
)

// testEnv is a config directory with every data path inside it.
type testEnv struct {
	dir          string
	groupsPath   string
	postsPath    string
	repostsPath  string
	repostedPath string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()

	oldConfigDir := configDir
	oldLogLevel := logLevel
	oldLogOutput := logOutput
	t.Cleanup(func() {
		configDir = oldConfigDir
		logLevel = oldLogLevel
		logOutput = oldLogOutput
	})
	configDir = dir
	logLevel = ""
	logOutput = io.Discard

	return testEnv{
		dir:          dir,
		groupsPath:   filepath.Join(dir, "group_ids.tsv"),
		postsPath:    filepath.Join(dir, "posts.json"),
		repostsPath:  filepath.Join(dir, "reposts.json"),
		repostedPath: filepath.Join(dir, "reposted_groups.tsv"),
	}
}

// writeConfig writes config.yaml with the env paths followed by extra YAML
// for the api and harvest sections.
func (e testEnv) writeConfig(t *testing.T, api, harvest string) {
	t.Helper()
	content := "api:\n  token_env: WALLHARVEST_TEST_TOKEN\n" + api +
		"harvest:\n  timezone: UTC\n" + harvest +
		"watermarks:\n  backend: tsv\n  path: " + e.groupsPath + "\n" +
		"output:\n  posts_path: " + e.postsPath + "\n  reposts_path: " + e.repostsPath + "\n" +
		"reposted:\n  path: " + e.repostedPath + "\n"
	writeTestFile(t, filepath.Join(e.dir, config.DefaultConfigFile), content)
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
