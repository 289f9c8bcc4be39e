// Package harvest runs one incremental pass over every tracked community
// wall and merges the results into the saved corpora.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/dedupe"
	"github.com/ppiankov/wallharvest/internal/item"
	"github.com/ppiankov/wallharvest/internal/walker"
	"github.com/ppiankov/wallharvest/internal/watermark"
)

// ErrNoSources is returned when there is nothing to harvest: the watermark
// table is unreadable or empty and no source was given explicitly.
var ErrNoSources = errors.New("no sources to harvest")

// Walker walks a single source.
type Walker interface {
	Walk(ctx context.Context, src walker.Source, last, runTS time.Time) (walker.Result, error)
}

// Options configures a Runner.
type Options struct {
	// Sources are added to the watermark table before the run with the
	// seed watermark, unless already tracked.
	Sources []string

	PostsPath   string
	RepostsPath string

	DeduplicateByText bool
	MinTextLength     int

	// Location defines the calendar day of a run. Defaults to UTC.
	Location *time.Location
}

// Summary describes a finished run.
type Summary struct {
	Sources int
	Skipped int
	Failed  []string

	FetchedPosts   int
	FetchedReposts int

	// Totals after deduplication, as saved.
	Posts   int
	Reposts int

	DuplicatePosts   int
	DuplicateReposts int
	ShortText        int
	DuplicateText    int
}

// Runner executes harvest runs.
type Runner struct {
	walker Walker
	marks  watermark.Backend
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Runner.
func New(w Walker, marks watermark.Backend, opts Options, log *slog.Logger) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = dedupe.DefaultMinTextLength
	}
	return &Runner{walker: w, marks: marks, opts: opts, log: log, now: time.Now}
}

// RunDate returns the start of the calendar day containing t in loc.
func RunDate(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Run harvests every source in table order. Nothing is written if ctx is
// canceled before the run completes.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	posts := corpus.Load(r.opts.PostsPath, r.log)
	reposts := corpus.Load(r.opts.RepostsPath, r.log)

	table, err := r.loadTable(ctx)
	if err != nil {
		return sum, err
	}

	runTS := RunDate(r.now(), r.opts.Location)
	sources := table.Sources()
	sum.Sources = len(sources)

	for _, key := range sources {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("harvest: %w", err)
		}

		res, err := r.walker.Walk(ctx, walker.ParseSource(key), table.Get(key), runTS)
		if err != nil {
			return sum, fmt.Errorf("harvest: %w", err)
		}
		if res.Skipped {
			sum.Skipped++
			continue
		}

		sum.FetchedPosts += len(res.Posts)
		sum.FetchedReposts += len(res.Reposts)
		posts = append(posts, res.Posts...)
		reposts = append(reposts, res.Reposts...)

		if res.Err != nil {
			sum.Failed = append(sum.Failed, key)
			continue
		}
		table.Advance(key, runTS)
	}

	posts, sum.DuplicatePosts = r.dedupeByID(posts, "post")
	reposts, sum.DuplicateReposts = r.dedupeByID(reposts, "repost")

	if r.opts.DeduplicateByText {
		before := len(posts)
		posts, sum.ShortText = dedupe.ByText(posts, r.opts.MinTextLength)
		sum.DuplicateText = before - len(posts) - sum.ShortText
		r.log.Info("removed short text posts", "count", sum.ShortText)
		r.log.Info("removed duplicated by text posts", "count", sum.DuplicateText)
	}

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("harvest: %w", err)
	}

	sum.Posts = len(posts)
	sum.Reposts = len(reposts)

	if err := r.persist(ctx, posts, reposts, table); err != nil {
		return sum, err
	}
	return sum, nil
}

// persist writes both corpora and the watermarks. Once started it runs to
// completion even if ctx is canceled, so that a run is saved whole or not
// at all.
func (r *Runner) persist(ctx context.Context, posts, reposts []item.Item, table *watermark.Table) error {
	ctx = context.WithoutCancel(ctx)

	if err := r.save(r.opts.PostsPath, posts); err != nil {
		return err
	}
	if err := r.save(r.opts.RepostsPath, reposts); err != nil {
		return err
	}
	if err := r.marks.Save(ctx, table); err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}
	return nil
}

func (r *Runner) loadTable(ctx context.Context) (*watermark.Table, error) {
	table, err := r.marks.Load(ctx)
	if err != nil {
		if len(r.opts.Sources) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoSources, err)
		}
		r.log.Warn("watermarks unavailable, starting with explicit sources only", "error", err)
		table = watermark.NewTable()
	}

	for _, src := range r.opts.Sources {
		if table.Add(src) {
			r.log.Debug("tracking new source", "group", src)
		}
	}
	if table.Len() == 0 {
		return nil, ErrNoSources
	}
	return table, nil
}

func (r *Runner) dedupeByID(items []item.Item, kind string) ([]item.Item, int) {
	kept := dedupe.ByID(items)
	removed := len(items) - len(kept)
	r.log.Info("removed duplicated by id", "kind", kind, "count", removed)
	return kept, removed
}

func (r *Runner) save(path string, items []item.Item) error {
	r.log.Info("saving items", "path", path, "count", len(items))
	if err := corpus.Save(path, items); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
