// Package corpus reads and writes harvested item collections as JSON arrays.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ppiankov/wallharvest/internal/item"
)

// Load reads a collection from path. A missing or unreadable file yields an
// empty collection and a warning; it never fails the run.
func Load(path string, logger *slog.Logger) []item.Item {
	logger.Info("reading saved items", "path", path)

	items, err := read(path)
	if err != nil {
		logger.Warn("failed reading saved items, file will be reset on save", "path", path, "error", err)
		return []item.Item{}
	}
	return items
}

func read(path string) ([]item.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode parses a JSON array of items, keeping numbers as json.Number.
func Decode(r io.Reader) ([]item.Item, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []item.Item
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if items == nil {
		items = []item.Item{}
	}
	return items, nil
}

// Encode writes items as an indented JSON array. Object keys are sorted and
// non-ASCII text is written as is, so equal collections encode to equal bytes.
func Encode(w io.Writer, items []item.Item) error {
	if items == nil {
		items = []item.Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	return nil
}

// Save replaces the file at path with the encoded collection. The previous
// file stays intact if encoding or writing fails.
func Save(path string, items []item.Item) error {
	var buf bytes.Buffer
	if err := Encode(&buf, items); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
