package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/wallharvest/internal/corpus"
	"github.com/ppiankov/wallharvest/internal/item"
	"github.com/ppiankov/wallharvest/internal/walker"
	"github.com/ppiankov/wallharvest/internal/watermark"
	"github.com/spf13/cobra"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-group corpus counts and watermarks",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

const staleDays = 7

// groupStats summarizes one wall across both corpora.
type groupStats struct {
	Group     string     `json:"group"`
	Tracked   bool       `json:"tracked"`
	Posts     int        `json:"posts"`
	Reposts   int        `json:"reposts"`
	Newest    *time.Time `json:"newest,omitempty"`
	Watermark *time.Time `json:"watermark,omitempty"`

	// Unmatched is set for short-address sources whose numeric id is
	// unknown; their items are counted under the numeric id instead.
	Unmatched bool `json:"unmatched,omitempty"`
}

// numericDomainPrefixes are the short-address forms that embed the
// community id.
var numericDomainPrefixes = []string{"club", "public", "event"}

// domainOwner resolves short addresses like club123 to the wall owner id.
func domainOwner(domain string) (int64, bool) {
	for _, prefix := range numericDomainPrefixes {
		rest, ok := strings.CutPrefix(domain, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(rest, 10, 64); err == nil && n > 0 {
			return -n, true
		}
	}
	return 0, false
}

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log.Level)

	marks, closeMarks, err := openWatermarks(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeMarks() }()

	table, err := marks.Load(cmd.Context())
	if err != nil && !errors.Is(err, watermark.ErrNotFound) {
		return fmt.Errorf("load watermarks: %w", err)
	}

	posts := corpus.Load(cfg.Output.PostsPath, log)
	reposts := corpus.Load(cfg.Output.RepostsPath, log)
	stats := collectStats(posts, reposts, table)

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats)
	case "terminal", "":
		if len(stats) == 0 {
			fmt.Fprintln(os.Stdout, "No groups found. Run 'wallharvest harvest' first.")
			return nil
		}
		printStats(os.Stdout, stats, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

// collectStats groups corpus items by wall. Tracked groups come first in
// table order; walls seen only in the corpora follow, sorted by id.
func collectStats(posts, reposts []item.Item, table *watermark.Table) []groupStats {
	byOwner := make(map[int64]*groupStats)
	var order []*groupStats

	if table != nil {
		for _, key := range table.Sources() {
			gs := &groupStats{Group: key, Tracked: true}
			if wm := table.Get(key); !wm.Equal(watermark.Seed) {
				gs.Watermark = &wm
			}
			order = append(order, gs)
			src := walker.ParseSource(key)
			owner, ok := src.OwnerID, src.Domain == ""
			if !ok {
				owner, ok = domainOwner(src.Domain)
			}
			if ok {
				byOwner[owner] = gs
			} else {
				gs.Unmatched = true
			}
		}
	}

	var extra []*groupStats
	lookup := func(it item.Item) *groupStats {
		owner, ok := it.OwnerID()
		if !ok {
			return nil
		}
		if gs, ok := byOwner[owner]; ok {
			return gs
		}
		id := owner
		if id < 0 {
			id = -id
		}
		gs := &groupStats{Group: strconv.FormatInt(id, 10)}
		byOwner[owner] = gs
		extra = append(extra, gs)
		return gs
	}
	count := func(items []item.Item, repost bool) {
		for _, it := range items {
			gs := lookup(it)
			if gs == nil {
				continue
			}
			if repost {
				gs.Reposts++
			} else {
				gs.Posts++
			}
			if d, ok := it.Date(); ok && (gs.Newest == nil || d.After(*gs.Newest)) {
				gs.Newest = &d
			}
		}
	}
	count(posts, false)
	count(reposts, true)

	sort.Slice(extra, func(i, j int) bool {
		a, _ := strconv.ParseInt(extra[i].Group, 10, 64)
		b, _ := strconv.ParseInt(extra[j].Group, 10, 64)
		return a < b
	})

	out := make([]groupStats, 0, len(order)+len(extra))
	for _, gs := range append(order, extra...) {
		out = append(out, *gs)
	}
	return out
}

type jsonStatsOutput struct {
	Groups  []groupStats `json:"groups"`
	Posts   int          `json:"posts"`
	Reposts int          `json:"reposts"`
}

func printStatsJSON(w io.Writer, stats []groupStats) error {
	out := jsonStatsOutput{Groups: stats}
	if out.Groups == nil {
		out.Groups = []groupStats{}
	}
	for _, gs := range stats {
		out.Posts += gs.Posts
		out.Reposts += gs.Reposts
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats []groupStats, now time.Time) {
	totalPosts, totalReposts := 0, 0
	for _, gs := range stats {
		totalPosts += gs.Posts
		totalReposts += gs.Reposts
	}
	fmt.Fprintf(w, "wallharvest stats: %d posts and %d reposts from %d groups\n\n", totalPosts, totalReposts, len(stats))

	maxGroup := 5 // minimum "Group"
	for _, gs := range stats {
		if len(gs.Group) > maxGroup {
			maxGroup = len(gs.Group)
		}
	}
	if maxGroup > 40 {
		maxGroup = 40
	}

	untracked, unmatched := false, false
	fmt.Fprintf(w, "  %-*s  %6s  %7s  %-10s  %-10s\n", maxGroup, "Group", "Posts", "Reposts", "Newest", "Watermark")
	for _, gs := range stats {
		name := gs.Group
		if len(name) > maxGroup {
			name = name[:maxGroup-1] + "~"
		}
		if !gs.Tracked {
			name += "*"
			untracked = true
		}
		if gs.Unmatched {
			unmatched = true
			fmt.Fprintf(w, "  %-*s  %6s  %7s  %-10s  %-10s\n",
				maxGroup, name+"?", "?", "?", "?", formatDay(gs.Watermark))
			continue
		}
		fmt.Fprintf(w, "  %-*s  %6d  %7d  %-10s  %-10s\n",
			maxGroup, name, gs.Posts, gs.Reposts, formatDay(gs.Newest), formatDay(gs.Watermark))
	}
	if untracked || unmatched {
		fmt.Fprintln(w)
	}
	if untracked {
		fmt.Fprintln(w, "  * not in the watermark table")
	}
	if unmatched {
		fmt.Fprintln(w, "  ? short address without a numeric id; its items are counted under the group id")
	}
	fmt.Fprintln(w)

	staleThreshold := now.AddDate(0, 0, -staleDays)
	var stale []groupStats
	for _, gs := range stats {
		if gs.Tracked && gs.Newest != nil && gs.Newest.Before(staleThreshold) {
			stale = append(stale, gs)
		}
	}
	if len(stale) > 0 {
		fmt.Fprintf(w, "--- Quiet Groups (no posts in %d+ days) ---\n\n", staleDays)
		for _, gs := range stale {
			daysAgo := int(now.Sub(*gs.Newest).Hours() / 24)
			fmt.Fprintf(w, "  %s: last post %d days ago\n", gs.Group, daysAgo)
		}
		fmt.Fprintln(w)
	}
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}
