// Package dedupe merges batches of feed items into a duplicate-free collection.
package dedupe

import (
	"unicode/utf8"

	"github.com/ppiankov/wallharvest/internal/item"
)

// DefaultMinTextLength is the shortest text, in characters, that ByText keeps.
const DefaultMinTextLength = 10

// ByID collapses items sharing the same identity. A later item replaces an
// earlier one but keeps the position where the identity first appeared, so
// applying ByID to its own output returns it unchanged. Items without an id
// are dropped.
func ByID(items []item.Item) []item.Item {
	return collapse(items, func(it item.Item) (string, bool) {
		return it.Key()
	})
}

// ByText drops items whose text is shorter than minLen characters and then
// collapses items with exactly equal text, last one wins. It returns the kept
// items and the number of items dropped for being too short.
//
// Distinct posts that share boilerplate text collapse into one.
func ByText(items []item.Item, minLen int) ([]item.Item, int) {
	short := 0
	long := make([]item.Item, 0, len(items))
	for _, it := range items {
		if utf8.RuneCountInString(it.Text()) < minLen {
			short++
			continue
		}
		long = append(long, it)
	}

	kept := collapse(long, func(it item.Item) (string, bool) {
		return it.Text(), true
	})
	return kept, short
}

func collapse(items []item.Item, key func(item.Item) (string, bool)) []item.Item {
	index := make(map[string]int, len(items))
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		k, ok := key(it)
		if !ok {
			continue
		}
		if i, seen := index[k]; seen {
			out[i] = it
			continue
		}
		index[k] = len(out)
		out = append(out, it)
	}
	return out
}
