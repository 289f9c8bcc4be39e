// Package vk talks to the VK API: an authenticated method caller, a paging
// iterator over list methods, and an offline replay of saved items.
package vk

import (
	"context"
	"iter"

	"github.com/ppiankov/wallharvest/internal/item"
)

// PageRequest describes a paginated list call.
type PageRequest struct {
	Method   string
	PageSize int
	Params   map[string]string

	// Limit caps the number of yielded items. Zero means unbounded.
	Limit int

	// Stop is evaluated after every page has been yielded in full; returning
	// true ends the sequence.
	Stop func(items []item.Item) bool
}

// page is one batch of a list call: the items at the requested offset and
// the total the server reports for the whole list.
type page struct {
	Count int         `json:"count"`
	Items []item.Item `json:"items"`
}

type pageFunc func(ctx context.Context, offset, count int) (page, error)

// paginate turns an offset-based page source into a lazy item sequence.
// An error is yielded once and ends the sequence.
func paginate(ctx context.Context, req PageRequest, fetch pageFunc) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		size := req.PageSize
		if size <= 0 {
			size = DefaultPageSize
		}

		offset, yielded := 0, 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			p, err := fetch(ctx, offset, size)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, it := range p.Items {
				if !yield(it, nil) {
					return
				}
				yielded++
				if req.Limit > 0 && yielded >= req.Limit {
					return
				}
			}

			if req.Stop != nil && req.Stop(p.Items) {
				return
			}
			offset += len(p.Items)
			if len(p.Items) == 0 || offset >= p.Count {
				return
			}
		}
	}
}
