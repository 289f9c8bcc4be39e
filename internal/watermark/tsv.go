package watermark

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/wallharvest/internal/corpus"
)

const (
	columnSource = "group_id"
	columnDate   = "last_download_date"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// TSV stores the table as a tab-separated file with a
// "group_id<TAB>last_download_date" header and one row per source.
type TSV struct {
	path string
	loc  *time.Location
}

// NewTSV returns a TSV backend for path. Dates are read and written in loc.
func NewTSV(path string, loc *time.Location) *TSV {
	if loc == nil {
		loc = time.UTC
	}
	return &TSV{path: path, loc: loc}
}

// Load reads the table. It returns ErrNotFound if the file does not exist.
func (b *TSV) Load(_ context.Context) (*Table, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, b.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open watermarks: %w", err)
	}
	defer func() { _ = f.Close() }()

	return b.decode(f)
}

func (b *TSV) decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read watermarks %s: missing header", b.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read watermarks header: %w", err)
	}

	srcCol, dateCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case columnSource:
			srcCol = i
		case columnDate:
			dateCol = i
		}
	}
	if srcCol < 0 || dateCol < 0 {
		return nil, fmt.Errorf("read watermarks %s: header must contain %s and %s", b.path, columnSource, columnDate)
	}

	t := NewTable()
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read watermarks line %d: %w", line, err)
		}
		if srcCol >= len(rec) {
			return nil, fmt.Errorf("read watermarks line %d: missing %s", line, columnSource)
		}
		source := strings.TrimSpace(rec[srcCol])
		if source == "" {
			continue
		}

		ts := Seed
		if dateCol < len(rec) && strings.TrimSpace(rec[dateCol]) != "" {
			ts, err = b.parseDate(rec[dateCol])
			if err != nil {
				return nil, fmt.Errorf("read watermarks line %d: %w", line, err)
			}
		}
		t.put(source, ts)
	}
	return t, nil
}

// Save rewrites the whole file.
func (b *TSV) Save(_ context.Context, t *Table) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = '\t'

	if err := cw.Write([]string{columnSource, columnDate}); err != nil {
		return fmt.Errorf("write watermarks header: %w", err)
	}
	for _, source := range t.Sources() {
		if err := cw.Write([]string{source, b.formatDate(t.Get(source))}); err != nil {
			return fmt.Errorf("write watermark %s: %w", source, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush watermarks: %w", err)
	}

	if err := corpus.WriteFileAtomic(b.path, buf.Bytes()); err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}
	return nil
}

func (b *TSV) parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{dateLayout, dateTimeLayout, time.RFC3339} {
		if ts, err := time.ParseInLocation(layout, value, b.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid %s %q", columnDate, value)
}

func (b *TSV) formatDate(ts time.Time) string {
	if ts.Equal(Seed) {
		return Seed.Format(dateLayout)
	}
	ts = ts.In(b.loc)
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
		return ts.Format(dateLayout)
	}
	return ts.Format(dateTimeLayout)
}
