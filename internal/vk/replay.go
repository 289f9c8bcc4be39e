package vk

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/item"
)

// Replay serves wall pages from a previously saved JSON array of items
// instead of the network. Items are grouped by owner_id and returned newest
// first, like wall.get does.
type Replay struct {
	byOwner map[int64][]item.Item
}

// NewReplay loads items from path.
func NewReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer func() { _ = f.Close() }()

	items, err := corpus.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	return NewReplayItems(items), nil
}

// NewReplayItems builds a Replay over items already in memory.
func NewReplayItems(items []item.Item) *Replay {
	r := &Replay{byOwner: make(map[int64][]item.Item)}
	for _, it := range items {
		owner, _ := it.OwnerID()
		r.byOwner[owner] = append(r.byOwner[owner], it)
	}
	for _, wall := range r.byOwner {
		sort.SliceStable(wall, func(i, j int) bool {
			di, _ := wall[i].Date()
			dj, _ := wall[j].Date()
			return di.After(dj)
		})
	}
	return r
}

// Iter pages through the saved wall selected by the owner_id parameter.
// Requests by domain match nothing, as saved items carry no domain.
func (r *Replay) Iter(ctx context.Context, req PageRequest) iter.Seq2[item.Item, error] {
	var wall []item.Item
	if owner, ok := item.Int(req.Params["owner_id"]); ok {
		wall = r.byOwner[owner]
	}

	return paginate(ctx, req, func(_ context.Context, offset, count int) (page, error) {
		if offset >= len(wall) {
			return page{Count: len(wall)}, nil
		}
		end := min(offset+count, len(wall))
		return page{Count: len(wall), Items: wall[offset:end]}, nil
	})
}
