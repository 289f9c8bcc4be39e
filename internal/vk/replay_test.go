package vk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/wallharvest/internal/item"
)

func TestReplayIter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	data := `[
  {"id": 1, "owner_id": -7, "date": 100},
  {"id": 3, "owner_id": -7, "date": 300},
  {"id": 9, "owner_id": -8, "date": 900},
  {"id": 2, "owner_id": -7, "date": 200}
]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReplay(path)
	if err != nil {
		t.Fatalf("new replay: %v", err)
	}

	var pages int
	req := PageRequest{
		Method:   "wall.get",
		PageSize: 2,
		Params:   map[string]string{"owner_id": "-7"},
		Stop: func([]item.Item) bool {
			pages++
			return false
		},
	}

	var ids []int64
	for it, err := range r.Iter(context.Background(), req) {
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		id, _ := it.ID()
		ids = append(ids, id)
	}

	if diff := cmp.Diff([]int64{3, 2, 1}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}
}

func TestReplayUnknownOwner(t *testing.T) {
	r := NewReplayItems([]item.Item{{"id": 1, "owner_id": -7, "date": 1}})

	for _, err := range r.Iter(context.Background(), PageRequest{PageSize: 20, Params: map[string]string{"domain": "apiclub"}}) {
		if err != nil {
			t.Fatalf("iter: %v", err)
		}
		t.Fatal("expected no items for a domain request")
	}
}

func TestNewReplayMissingFile(t *testing.T) {
	if _, err := NewReplay(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error")
	}
}
