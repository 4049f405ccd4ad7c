package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/juanlucasumali/webscraper/internal/listing"
)

// Dialect selects placeholder syntax and driver.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) placeholder(i int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

const schema = `CREATE TABLE IF NOT EXISTS listings (
	run_id              TEXT NOT NULL,
	url                 TEXT NOT NULL,
	name                TEXT NOT NULL,
	guest_limit         DOUBLE PRECISION,
	bedrooms            DOUBLE PRECISION,
	beds                DOUBLE PRECISION,
	bathrooms           DOUBLE PRECISION,
	stars               DOUBLE PRECISION,
	review_count        DOUBLE PRECISION,
	location_rating     DOUBLE PRECISION,
	total_price         DOUBLE PRECISION,
	price_per_night     DOUBLE PRECISION,
	nights              DOUBLE PRECISION,
	tv                  BOOLEAN NOT NULL,
	pool                BOOLEAN NOT NULL,
	jacuzzi             BOOLEAN NOT NULL,
	billiards           BOOLEAN NOT NULL,
	large_yard          BOOLEAN NOT NULL,
	balcony             BOOLEAN NOT NULL,
	laundry             BOOLEAN NOT NULL,
	home_gym            BOOLEAN NOT NULL,
	historical          BOOLEAN NOT NULL,
	historical_evidence TEXT NOT NULL,
	amenity_evidence    TEXT NOT NULL,
	guest_favorite      BOOLEAN NOT NULL,
	page                INTEGER NOT NULL,
	item_index          INTEGER NOT NULL,
	scraped_at          TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, url)
)`

var storeColumns = []string{
	"run_id", "url", "name",
	"guest_limit", "bedrooms", "beds", "bathrooms",
	"stars", "review_count", "location_rating",
	"total_price", "price_per_night", "nights",
	"tv", "pool", "jacuzzi", "billiards", "large_yard", "balcony", "laundry", "home_gym",
	"historical", "historical_evidence", "amenity_evidence", "guest_favorite",
	"page", "item_index", "scraped_at",
}

// Store upserts records into a listings table keyed by run id and URL.
type Store struct {
	db      *sql.DB
	dialect Dialect
	runID   string
	upsert  string
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" in
// tests.
func OpenSQLite(ctx context.Context, path, runID string) (*Store, error) {
	db, err := sql.Open(SQLite.driver(), path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 10000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	return newStore(ctx, db, SQLite, runID)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(ctx context.Context, dsn, runID string) (*Store, error) {
	db, err := sql.Open(Postgres.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newStore(ctx, db, Postgres, runID)
}

func newStore(ctx context.Context, db *sql.DB, d Dialect, runID string) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create listings table: %w", err)
	}
	return &Store{db: db, dialect: d, runID: runID, upsert: upsertSQL(d)}, nil
}

func upsertSQL(d Dialect) string {
	ph := make([]string, len(storeColumns))
	var set []string
	for i, c := range storeColumns {
		ph[i] = d.placeholder(i + 1)
		if c != "run_id" && c != "url" {
			set = append(set, c+" = excluded."+c)
		}
	}
	return "INSERT INTO listings (" + strings.Join(storeColumns, ", ") + ")\n" +
		"VALUES (" + strings.Join(ph, ", ") + ")\n" +
		"ON CONFLICT (run_id, url) DO UPDATE SET " + strings.Join(set, ", ")
}

// RunID returns the run the store writes under.
func (s *Store) RunID() string { return s.runID }

// DB exposes the handle for queries.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) OnRecord(ctx context.Context, rec listing.Record) error {
	evidence, err := json.Marshal(rec.AmenityEvidence)
	if err != nil {
		return fmt.Errorf("encode amenity evidence: %w", err)
	}
	a := rec.Amenities
	_, err = s.db.ExecContext(ctx, s.upsert,
		s.runID, rec.URL, rec.Name,
		nullable(rec.GuestLimit), nullable(rec.Bedrooms), nullable(rec.Beds), nullable(rec.Bathrooms),
		nullable(rec.Rating), nullable(rec.ReviewCount), nullable(rec.LocationRating),
		nullable(rec.TotalPrice), nullable(rec.NightlyPrice), nullable(rec.Nights),
		a.TV, a.Pool, a.Jacuzzi, a.Billiards, a.LargeYard, a.Balcony, a.Laundry, a.HomeGym,
		rec.Historical, rec.HistoricalEvidence, string(evidence), rec.GuestFavorite,
		rec.Page, rec.Position, rec.ScrapedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert listing %q: %w", rec.URL, err)
	}
	return nil
}

// Count returns how many rows the current run has written.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM listings WHERE run_id = " + s.dialect.placeholder(1)
	if err := s.db.QueryRowContext(ctx, q, s.runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error { return s.db.Close() }

func nullable(n listing.Number) any {
	if !n.Known {
		return nil
	}
	return n.Value
}
