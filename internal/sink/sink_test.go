package sink

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juanlucasumali/webscraper/internal/classify"
	"github.com/juanlucasumali/webscraper/internal/listing"
)

func sampleRecord(url string) listing.Record {
	rec := listing.New()
	rec.URL = url
	rec.Name = "Old Mill House"
	rec.Rating = listing.Num(4.86)
	rec.ReviewCount = listing.Num(23)
	rec.TotalPrice = listing.Num(450)
	rec.Nights = listing.Num(3)
	rec.NightlyPrice = listing.Num(150)
	rec.SetAmenities(classify.Classify("Hot tub and a smart TV", classify.DefaultLexicon()))
	rec.Page, rec.Position = 1, 1
	rec.ScrapedAt = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	return rec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCSV_HeaderThenIncrementalRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	c, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	defer c.Close()

	read := func() [][]string {
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		if err != nil {
			t.Fatalf("read csv: %v", err)
		}
		return rows
	}

	if rows := read(); len(rows) != 1 || rows[0][0] != "Link" {
		t.Fatalf("header: got %v", rows)
	}

	ctx := context.Background()
	if err := c.OnRecord(ctx, sampleRecord("https://example.test/rooms/1")); err != nil {
		t.Fatalf("OnRecord: %v", err)
	}
	rows := read()
	if len(rows) != 2 {
		t.Fatalf("rows after first record: got %d, want 2", len(rows))
	}
	row := rows[1]
	if row[0] != "https://example.test/rooms/1" || row[7] != "150" || row[9] != listing.Source {
		t.Errorf("row: got %v", row)
	}
	if row[2] != listing.Unknown {
		t.Errorf("unknown bedrooms: got %q", row[2])
	}
	if row[11] != "TRUE" || row[12] != "FALSE" || row[13] != "TRUE" {
		t.Errorf("TV/Pool/Jacuzzi: got %v", row[11:14])
	}

	if err := c.OnRecord(ctx, sampleRecord("https://example.test/rooms/2")); err != nil {
		t.Fatalf("OnRecord: %v", err)
	}
	if rows := read(); len(rows) != 3 {
		t.Errorf("rows after second record: got %d, want 3", len(rows))
	}
}

func TestJSON_ValidArrayAfterEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	j, err := NewJSON(path)
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}

	decode := func() []map[string]string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var rows []map[string]string
		if err := json.Unmarshal(data, &rows); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return rows
	}

	if rows := decode(); len(rows) != 0 {
		t.Fatalf("initial rows: got %d, want 0", len(rows))
	}
	for i := 1; i <= 2; i++ {
		if err := j.OnRecord(context.Background(), sampleRecord(fmt.Sprintf("https://example.test/rooms/%d", i))); err != nil {
			t.Fatalf("OnRecord: %v", err)
		}
		rows := decode()
		if len(rows) != i {
			t.Fatalf("rows: got %d, want %d", len(rows), i)
		}
		if rows[i-1]["Guest Favorite Status"] != "FALSE" || rows[i-1]["Stars"] != "4.86" {
			t.Errorf("row %d: got %v", i, rows[i-1])
		}
	}
}

func TestStore_SQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:", "run-1")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	rec := sampleRecord("https://example.test/rooms/1")
	if err := s.OnRecord(ctx, rec); err != nil {
		t.Fatalf("OnRecord: %v", err)
	}
	rec.Name = "Old Mill House (renamed)"
	if err := s.OnRecord(ctx, rec); err != nil {
		t.Fatalf("OnRecord again: %v", err)
	}
	if err := s.OnRecord(ctx, sampleRecord("https://example.test/rooms/2")); err != nil {
		t.Fatalf("OnRecord second: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count: got %d, want 2", n)
	}

	var (
		name     string
		stars    sql.NullFloat64
		bedrooms sql.NullFloat64
		jacuzzi  bool
		evidence string
	)
	err = s.DB().QueryRowContext(ctx,
		`SELECT name, stars, bedrooms, jacuzzi, amenity_evidence FROM listings WHERE run_id = ? AND url = ?`,
		"run-1", "https://example.test/rooms/1").Scan(&name, &stars, &bedrooms, &jacuzzi, &evidence)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "Old Mill House (renamed)" {
		t.Errorf("name: got %q, want the upserted value", name)
	}
	if !stars.Valid || stars.Float64 != 4.86 {
		t.Errorf("stars: got %+v", stars)
	}
	if bedrooms.Valid {
		t.Errorf("unknown bedrooms should be NULL, got %v", bedrooms.Float64)
	}
	if !jacuzzi {
		t.Error("jacuzzi: got false, want true")
	}
	if !strings.Contains(evidence, "hot tub") {
		t.Errorf("evidence: got %s", evidence)
	}
}

func TestUpsertSQL_Postgres(t *testing.T) {
	q := upsertSQL(Postgres)
	if !strings.Contains(q, "$28") || strings.Contains(q, "?") {
		t.Errorf("postgres placeholders: %s", q)
	}
	if !strings.Contains(q, "ON CONFLICT (run_id, url) DO UPDATE SET name = excluded.name") {
		t.Errorf("conflict clause: %s", q)
	}
}

func TestMulti_OneFailureDoesNotBlockOthers(t *testing.T) {
	boom := errors.New("disk full")
	var calls []string
	m := NewMulti(quietLogger(),
		Func(func(context.Context, listing.Record) error { calls = append(calls, "a"); return boom }),
		nil,
		Func(func(context.Context, listing.Record) error { calls = append(calls, "b"); return nil }),
	)
	if m.Len() != 2 {
		t.Fatalf("len: got %d, want 2", m.Len())
	}

	err := m.OnRecord(context.Background(), sampleRecord("https://example.test/rooms/1"))
	if !errors.Is(err, boom) {
		t.Errorf("err: got %v, want %v", err, boom)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Errorf("calls: got %v, want a,b", calls)
	}
}

func TestStatusHandler(t *testing.T) {
	var got []string
	logger := slog.New(NewStatusHandler(func(s string) { got = append(got, s) }, nil))

	logger.Info("walker: loading page", "page", 1)
	logger.With("item", 2).Warn("walker: listing failed")
	logger.Debug("hidden")

	want := []string{
		`level=INFO msg="walker: loading page" page=1`,
		`level=WARN msg="walker: listing failed" item=2`,
	}
	if len(got) != len(want) {
		t.Fatalf("messages: got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewRunDir(t *testing.T) {
	base := t.TempDir()
	dir, err := NewRunDir(base, time.Date(2025, 4, 1, 9, 5, 7, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRunDir: %v", err)
	}
	if want := filepath.Join(base, "20250401_090507"); dir != want {
		t.Errorf("dir: got %s, want %s", dir, want)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("stat: %v", err)
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if err := c.OnRecord(context.Background(), sampleRecord("https://example.test/rooms/1")); err != nil {
		t.Fatalf("OnRecord: %v", err)
	}
	if len(c.Records) != 1 || c.Records[0].Name != "Old Mill House" {
		t.Errorf("records: got %+v", c.Records)
	}
}
