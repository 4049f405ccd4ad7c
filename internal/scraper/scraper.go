package scraper

import (
	"context"
	"log/slog"
	"time"
)

type Scraper interface {
	Name() string
	Scrape(ctx context.Context, target string, opts Options) (Content, error)
}

type Content interface {
	ToHTML() (string, error)
	ToText() (string, error)
	ToMarkdown() (string, error)
	ToJSON() ([]byte, error)
	ToCSV() (string, error)
}

type Options struct {
	Pages       int           // page budget, at least 1
	Timeout     time.Duration // whole-run deadline, zero for none
	ShowUI      bool
	ProxyURL    string  // --proxy flag or WEBSCRAPER_PROXY env var
	Rate        float64 // detail opens per second, zero keeps the config value
	ConfigPath  string  // YAML overrides, empty for built-in defaults
	RunsDir     string  // parent of the per-run CSV/JSON directory
	NoFiles     bool
	SQLitePath  string
	PostgresDSN string // --postgres flag or WEBSCRAPER_POSTGRES_DSN env var
	Logger      *slog.Logger
}
