// Package reposted builds the report of communities whose posts were
// reposted by the harvested walls, a list of candidate sources to track.
package reposted

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ppiankov/wallharvest/internal/item"
	"github.com/ppiankov/wallharvest/internal/vk"
)

const siteURL = "https://vk.com/"

// Columns of the report, in file order.
var Columns = []string{
	"status", "group_id", "counts", "name",
	"group_domain", "group_link", "post_link", "source_repost_link",
}

// GroupLookup resolves community ids to their public details.
type GroupLookup interface {
	GroupsByID(ctx context.Context, ids []string) ([]vk.Group, error)
}

// Origin is the community post a repost was made from.
type Origin struct {
	GroupID          int64 // positive community id
	PostLink         string
	SourceRepostLink string
}

// Row is one community of the report.
type Row struct {
	Status           string
	GroupID          string
	Counts           int
	Name             string
	GroupDomain      string
	GroupLink        string
	PostLink         string
	SourceRepostLink string
}

// GroupLink returns the public address of the community with the given
// positive id.
func GroupLink(groupID int64) string {
	return fmt.Sprintf("%sclub%d", siteURL, groupID)
}

// PostLink returns the address opening a wall post in the feed viewer.
func PostLink(ownerID, postID int64) string {
	return fmt.Sprintf("%sfeed?w=wall%d_%d", siteURL, ownerID, postID)
}

// OriginOf returns the community post at the root of the repost chain. ok
// is false for items that are not reposts and for reposts of user posts.
func OriginOf(repost item.Item) (Origin, bool) {
	chain := repost.CopyHistory()
	if len(chain) == 0 {
		return Origin{}, false
	}
	root := chain[len(chain)-1]

	owner, ok := root.OwnerID()
	if !ok || owner >= 0 {
		return Origin{}, false
	}
	postID, ok := root.ID()
	if !ok {
		return Origin{}, false
	}

	o := Origin{GroupID: -owner, PostLink: PostLink(owner, postID)}
	repostOwner, ownerOK := repost.OwnerID()
	repostID, idOK := repost.ID()
	if ownerOK && idOK {
		o.SourceRepostLink = PostLink(repostOwner, repostID)
	}
	return o, true
}

// Collect groups reposts by originating community and resolves community
// names through lookup. Each row keeps the links of the first repost seen
// for its community. Rows are ordered by repost count, then by name, both
// descending; unnamed communities come last within a count.
func Collect(ctx context.Context, reposts []item.Item, lookup GroupLookup) ([]Row, error) {
	var rows []Row
	index := make(map[int64]int)
	for _, rp := range reposts {
		o, ok := OriginOf(rp)
		if !ok {
			continue
		}
		if i, seen := index[o.GroupID]; seen {
			rows[i].Counts++
			continue
		}
		index[o.GroupID] = len(rows)
		rows = append(rows, Row{
			GroupID:          strconv.FormatInt(o.GroupID, 10),
			Counts:           1,
			GroupDomain:      fmt.Sprintf("club%d", o.GroupID),
			GroupLink:        GroupLink(o.GroupID),
			PostLink:         o.PostLink,
			SourceRepostLink: o.SourceRepostLink,
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.GroupID
	}
	groups, err := lookup.GroupsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve groups: %w", err)
	}

	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.ID.String()] = g.Name
	}
	for i := range rows {
		rows[i].Name = names[rows[i].GroupID]
	}

	Sort(rows)
	return rows, nil
}

// Sort orders rows by count and name, descending, with the numeric group id
// ascending as the final tie-break.
func Sort(rows []Row) {
	col := collate.New(language.Russian)
	slices.SortStableFunc(rows, func(a, b Row) int {
		if a.Counts != b.Counts {
			return b.Counts - a.Counts
		}
		switch {
		case a.Name == "" && b.Name != "":
			return 1
		case a.Name != "" && b.Name == "":
			return -1
		}
		if c := col.CompareString(b.Name, a.Name); c != 0 {
			return c
		}
		ai, _ := strconv.ParseInt(a.GroupID, 10, 64)
		bi, _ := strconv.ParseInt(b.GroupID, 10, 64)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})
}

// ApplyStatuses copies the review status of every already known community
// onto rows.
func ApplyStatuses(rows []Row, statuses map[string]string) {
	for i := range rows {
		rows[i].Status = statuses[rows[i].GroupID]
	}
}

// LoadStatuses reads the status column of a previous report. A missing file
// yields no statuses.
func LoadStatuses(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	statuses, err := ReadStatuses(f)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return statuses, nil
}

// ReadStatuses reads group_id to status pairs from a report.
func ReadStatuses(r io.Reader) (map[string]string, error) {
	cr := newReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idCol, statusCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "group_id":
			idCol = i
		case "status":
			statusCol = i
		}
	}
	if idCol < 0 {
		return nil, errors.New("header has no group_id column")
	}

	statuses := make(map[string]string)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(rec) || statusCol < 0 || statusCol >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[idCol])
		if status := strings.TrimSpace(rec[statusCol]); id != "" && status != "" {
			statuses[id] = status
		}
	}
	return statuses, nil
}

// WriteTSV writes rows with a header line.
func WriteTSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Status, r.GroupID, strconv.Itoa(r.Counts), r.Name,
			r.GroupDomain, r.GroupLink, r.PostLink, r.SourceRepostLink,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// OutputPath returns where a fresh report is written so that the previous
// report at path, and the statuses reviewed in it, stay untouched.
func OutputPath(path string) string {
	return filepath.Join(filepath.Dir(path), "new_"+filepath.Base(path))
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
