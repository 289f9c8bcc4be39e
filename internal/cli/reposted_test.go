package cli

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/item"
)

func TestRepostedAction(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("WALLHARVEST_TEST_TOKEN", "test-token")

	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotIDs = r.PostForm.Get("group_ids")
		_, _ = w.Write([]byte(`{"response":[{"id":10,"name":"Alpha"},{"id":20,"name":"Beta"}]}`))
	}))
	t.Cleanup(srv.Close)

	env.writeConfig(t, "  base_url: "+srv.URL+"\n  attempts: 1\n", "")

	chain := func(owner, id int) []any { return []any{map[string]any{"owner_id": owner, "id": id}} }
	if err := corpus.Save(env.repostsPath, []item.Item{
		{"owner_id": -1, "id": 1, "copy_history": chain(-10, 100)},
		{"owner_id": -1, "id": 2, "copy_history": chain(-20, 200)},
		{"owner_id": -1, "id": 3, "copy_history": chain(-10, 101)},
		{"owner_id": -1, "id": 4, "copy_history": chain(5, 1)},
	}); err != nil {
		t.Fatalf("write reposts: %v", err)
	}
	writeTestFile(t, env.repostedPath, "status\tgroup_id\tcounts\tname\nadded\t20\t1\tBeta\n")

	out, err := captureStdout(t, func() error {
		return repostedAction(newTestCommand(), nil)
	})
	if err != nil {
		t.Fatalf("reposted: %v", err)
	}

	newPath := filepath.Join(env.dir, "new_reposted_groups.tsv")
	requireContains(t, out, "Found 2 reposted groups in 4 reposts, report written to "+newPath)
	if gotIDs != "10,20" {
		t.Errorf("group_ids = %q, want 10,20", gotIDs)
	}

	report := readTestFile(t, newPath)
	requireContains(t, report, "status\tgroup_id\tcounts\tname\tgroup_domain\tgroup_link\tpost_link\tsource_repost_link\n")
	requireContains(t, report, "\t10\t2\tAlpha\tclub10\thttps://vk.com/club10\thttps://vk.com/feed?w=wall-10_100\thttps://vk.com/feed?w=wall-1_1\n")
	requireContains(t, report, "added\t20\t1\tBeta\t")

	// The reviewed report stays untouched.
	if got := readTestFile(t, env.repostedPath); got != "status\tgroup_id\tcounts\tname\nadded\t20\t1\tBeta\n" {
		t.Errorf("previous report modified:\n%s", got)
	}
}

func TestRepostedActionMissingReposts(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(t, "", "")

	_, err := captureStdout(t, func() error {
		return repostedAction(newTestCommand(), nil)
	})
	if err == nil {
		t.Fatal("expected error for missing reposts file")
	}
	requireContains(t, err.Error(), "open reposts")
}
