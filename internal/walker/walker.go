// Package walker walks a community wall backwards in time, from the newest
// post down to a watermark, and splits what it finds into posts and reposts.
package walker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/ppiankov/wallharvest/internal/item"
	"github.com/ppiankov/wallharvest/internal/vk"
)

const wallMethod = "wall.get"

// Fetcher produces the items of a paginated list call, newest first.
type Fetcher interface {
	Iter(ctx context.Context, req vk.PageRequest) iter.Seq2[item.Item, error]
}

// Config controls a walk.
type Config struct {
	PageSize int

	// MaxItems caps the number of items fetched per source. Zero means
	// unbounded.
	MaxItems int

	// MaxDaysAgo limits how far back from the run date a walk may reach.
	// Zero disables the limit, leaving only the watermark.
	MaxDaysAgo int

	// AllowFields restricts the attributes kept on posts. Reposts are kept
	// whole. Empty keeps everything.
	AllowFields []string
}

// Result is the outcome of walking one source. Err is set when fetching
// failed part-way; Posts and Reposts then hold what was collected before the
// failure.
type Result struct {
	Posts   []item.Item
	Reposts []item.Item
	Skipped bool
	Err     error
}

// Walker drives a Fetcher over community walls.
type Walker struct {
	fetcher Fetcher
	cfg     Config
	allow   map[string]struct{}
	log     *slog.Logger
}

// New creates a Walker.
func New(fetcher Fetcher, cfg Config, log *slog.Logger) *Walker {
	if cfg.PageSize <= 0 {
		cfg.PageSize = vk.DefaultPageSize
	}
	return &Walker{
		fetcher: fetcher,
		cfg:     cfg,
		allow:   item.AllowSet(cfg.AllowFields),
		log:     log,
	}
}

// DownloadFrom returns the oldest date a walk needs to reach: the later of
// the last watermark and runTS minus maxDaysAgo days.
func DownloadFrom(runTS, last time.Time, maxDaysAgo int) time.Time {
	if maxDaysAgo <= 0 {
		return last
	}
	window := runTS.AddDate(0, 0, -maxDaysAgo)
	if window.After(last) {
		return window
	}
	return last
}

// Walk fetches the wall of src from the newest item back to the download
// boundary derived from last and runTS.
//
// The fetch stops after the first page containing any item older than the
// boundary, so items of that page past the boundary are kept as well.
//
// The returned error is non-nil only when ctx was canceled; the caller must
// then abort the whole run. Any other failure is logged and reported in
// Result.Err together with the items fetched so far.
func (w *Walker) Walk(ctx context.Context, src Source, last, runTS time.Time) (Result, error) {
	if last.Equal(runTS) {
		w.log.Info("already downloaded for this run date", "group", src.Key, "date", runTS.Format(time.DateOnly))
		return Result{Skipped: true}, nil
	}

	from := DownloadFrom(runTS, last, w.cfg.MaxDaysAgo)
	stop := func(page []item.Item) bool {
		for _, it := range page {
			if d, ok := it.Date(); ok && d.Before(from) {
				return true
			}
		}
		return false
	}

	w.log.Info("downloading posts", "url", src.URL(), "from", from.Format(time.DateOnly))

	req := vk.PageRequest{
		Method:   wallMethod,
		PageSize: w.cfg.PageSize,
		Params:   src.Params(),
		Limit:    w.cfg.MaxItems,
		Stop:     stop,
	}

	var res Result
	for it, err := range w.fetcher.Iter(ctx, req) {
		if err != nil {
			if canceled(ctx, err) {
				return res, fmt.Errorf("walk %s: %w", src.Key, context.Canceled)
			}
			w.log.Error("download failed", "group", src.Key, "url", src.URL(), "error", err)
			res.Err = err
			break
		}

		if it.IsRepost() {
			res.Reposts = append(res.Reposts, it)
		} else {
			res.Posts = append(res.Posts, it.Filter(w.allow))
		}
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("walk %s: %w", src.Key, context.Canceled)
	}

	w.log.Info("downloading done", "group", src.Key, "posts", len(res.Posts), "reposts", len(res.Reposts))
	return res, nil
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
