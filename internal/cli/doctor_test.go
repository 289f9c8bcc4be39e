package cli

import (
	"path/filepath"
	"testing"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/item"
)

func TestDoctorAction(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("WALLHARVEST_TEST_TOKEN", "test-token")
	env.writeConfig(t, "", "")
	writeTestFile(t, env.groupsPath, "group_id\tlast_download_date\n1\t2024-03-10\n2\t\n")
	if err := corpus.Save(env.postsPath, []item.Item{{"owner_id": -1, "id": 1}}); err != nil {
		t.Fatalf("write posts: %v", err)
	}

	out, err := captureStdout(t, func() error {
		return doctorAction(newTestCommand(), nil)
	})
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "access token from WALLHARVEST_TEST_TOKEN")
	requireContains(t, out, "(2 groups)")
	requireContains(t, out, "posts.json (1 items)")
	requireContains(t, out, "[INFO] "+env.repostsPath+" does not exist yet")
	requireContains(t, out, "All checks passed.")
}

func TestDoctorActionFailures(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("WALLHARVEST_TEST_TOKEN", "")
	env.writeConfig(t, "", "")
	writeTestFile(t, env.postsPath, "{not json")

	out, err := captureStdout(t, func() error {
		return doctorAction(newTestCommand(), nil)
	})
	if err == nil {
		t.Fatalf("expected failure, got:\n%s", out)
	}
	requireContains(t, out, "[FAIL] access token: WALLHARVEST_TEST_TOKEN is not set")
	requireContains(t, out, "[FAIL] watermarks")
	requireContains(t, out, "[FAIL] "+env.postsPath)
}

func TestDoctorActionReplayWithExplicitGroups(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("WALLHARVEST_TEST_TOKEN", "")
	replayPath := filepath.Join(env.dir, "dump.json")
	writeReplay(t, replayPath)
	env.writeConfig(t, "", "  posts_input_file: "+replayPath+"\n  groups: [\"1\"]\n")

	out, err := captureStdout(t, func() error {
		return doctorAction(newTestCommand(), nil)
	})
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "(replay mode)")
	requireContains(t, out, "will be created from explicit groups")
}

func TestDoctorActionInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	writeTestFile(t, filepath.Join(env.dir, "config.yaml"), "api:\n  page_size: 500\n")

	out, err := captureStdout(t, func() error {
		return doctorAction(newTestCommand(), nil)
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	requireContains(t, out, "[FAIL] config.yaml")
}
