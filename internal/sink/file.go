package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/juanlucasumali/webscraper/internal/listing"
)

// RunDirLayout is the timestamp layout of run directory names.
const RunDirLayout = "20060102_150405"

// NewRunDir creates base/<timestamp> and returns its path.
func NewRunDir(base string, now time.Time) (string, error) {
	dir := filepath.Join(base, now.Format(RunDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// CSV appends one row per record and flushes after each, so the file is
// complete up to the last record at any point.
type CSV struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// NewCSV creates path and writes the header row.
func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(listing.Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSV{path: path, f: f, w: w}, nil
}

// Path returns the file path.
func (c *CSV) Path() string { return c.path }

func (c *CSV) OnRecord(_ context.Context, rec listing.Record) error {
	if err := c.w.Write(rec.Row().Values()); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func (c *CSV) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// JSON keeps path a valid JSON array of rows after every record by
// rewriting it through a temporary file.
type JSON struct {
	path string
	rows []listing.Row
}

// NewJSON creates path holding an empty array.
func NewJSON(path string) (*JSON, error) {
	j := &JSON{path: path, rows: []listing.Row{}}
	if err := j.flush(); err != nil {
		return nil, err
	}
	return j, nil
}

// Path returns the file path.
func (j *JSON) Path() string { return j.path }

func (j *JSON) OnRecord(_ context.Context, rec listing.Record) error {
	j.rows = append(j.rows, rec.Row())
	return j.flush()
}

func (j *JSON) flush() error {
	data, err := json.MarshalIndent(j.rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace json: %w", err)
	}
	return nil
}

func (j *JSON) Close() error { return nil }
