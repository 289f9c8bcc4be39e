// Package item defines the feed item model shared by the fetcher, walker,
// deduplicator and corpus.
package item

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Well-known attribute names of a wall item.
const (
	FieldID          = "id"
	FieldOwnerID     = "owner_id"
	FieldDate        = "date"
	FieldText        = "text"
	FieldCopyHistory = "copy_history"
)

// Item is a single wall entry. Upstream attributes are not exhaustively
// known, so the item keeps every field it was decoded with.
type Item map[string]any

// ID returns the per-source item identifier.
func (it Item) ID() (int64, bool) {
	return Int(it[FieldID])
}

// OwnerID returns the identifier of the wall the item was published on.
func (it Item) OwnerID() (int64, bool) {
	return Int(it[FieldOwnerID])
}

// Date returns the publication time.
func (it Item) Date() (time.Time, bool) {
	ts, ok := Int(it[FieldDate])
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}

// Text returns the item text, or "" when absent or not a string.
func (it Item) Text() string {
	s, _ := it[FieldText].(string)
	return s
}

// CopyHistory returns the repost chain, oldest source last.
func (it Item) CopyHistory() []Item {
	raw, ok := it[FieldCopyHistory].([]any)
	if !ok {
		return nil
	}
	chain := make([]Item, 0, len(raw))
	for _, v := range raw {
		switch m := v.(type) {
		case map[string]any:
			chain = append(chain, Item(m))
		case Item:
			chain = append(chain, m)
		}
	}
	return chain
}

// IsRepost reports whether the item carries a non-null copy_history.
func (it Item) IsRepost() bool {
	v, ok := it[FieldCopyHistory]
	return ok && v != nil
}

// Key returns the identity used for deduplication: "<owner_id>_<id>", or
// just the id when the owner is unknown. ok is false for items without an id.
func (it Item) Key() (string, bool) {
	raw, present := it[FieldID]
	if !present || raw == nil {
		return "", false
	}
	id := formatScalar(raw)
	if owner, ok := it.OwnerID(); ok {
		return strconv.FormatInt(owner, 10) + "_" + id, true
	}
	return id, true
}

// Filter returns a copy of the item restricted to the allowed attribute
// names. The identity attributes id and owner_id are always kept so that Key
// does not depend on the allow-list. An empty allow set keeps the item
// unchanged.
func (it Item) Filter(allow map[string]struct{}) Item {
	if len(allow) == 0 {
		return it
	}
	out := make(Item, len(allow)+2)
	for k, v := range it {
		if _, ok := allow[k]; ok || isIdentity(k) {
			out[k] = v
		}
	}
	return out
}

func isIdentity(field string) bool {
	return field == FieldID || field == FieldOwnerID
}

// AllowSet builds the set form of an attribute allow-list.
func AllowSet(fields []string) map[string]struct{} {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Int converts a decoded JSON number to int64. It accepts json.Number as
// produced by a decoder with UseNumber, plain Go numbers, and numeric strings.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func formatScalar(v any) string {
	if i, ok := Int(v); ok {
		return strconv.FormatInt(i, 10)
	}
	return fmt.Sprint(v)
}
