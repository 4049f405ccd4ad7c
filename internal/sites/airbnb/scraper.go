// Package airbnb wires the scraper core to a live browser for Airbnb search
// results: config, browser, sinks and the pagination walker.
package airbnb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/juanlucasumali/webscraper/internal/browser"
	"github.com/juanlucasumali/webscraper/internal/config"
	"github.com/juanlucasumali/webscraper/internal/dom"
	"github.com/juanlucasumali/webscraper/internal/extractor"
	"github.com/juanlucasumali/webscraper/internal/locator"
	"github.com/juanlucasumali/webscraper/internal/scraper"
	"github.com/juanlucasumali/webscraper/internal/sink"
	"github.com/juanlucasumali/webscraper/internal/walker"
)

func init() {
	scraper.Register(&Scraper{})
}

// Scraper scrapes Airbnb search results.
type Scraper struct{}

func (s *Scraper) Name() string {
	return "airbnb"
}

// Scrape walks up to opts.Pages result pages starting at target. Records are
// written to the configured sinks as they are produced; the returned content
// holds every record of the run. A page error ends the walk early but is not
// returned as an error.
func (s *Scraper) Scrape(ctx context.Context, target string, opts scraper.Options) (scraper.Content, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	run := Run{ID: uuid.NewString(), Started: time.Now()}
	logger = logger.With("run", run.ID)

	out, err := openSinks(ctx, opts, run, logger)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	b, err := browser.New(browser.Config{
		Headless:      !opts.ShowUI,
		ProxyURL:      opts.ProxyURL,
		UserAgent:     cfg.UserAgent,
		Stealth:       true,
		ActionTimeout: cfg.Timeouts.Action,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("airbnb: browser shutdown failed", "error", err)
		}
	}()

	tab, err := b.NewTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	res := Walk(ctx, tab, target, opts.Pages, cfg, out.Sink, logger)

	run.Finished = time.Now()
	run.Files = out.Files
	return NewContent(target, run, res), nil
}

func loadConfig(opts scraper.Options) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if opts.Rate > 0 {
		cfg.Rate = opts.Rate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Walk runs one traversal on tab with the given configuration. It never
// fails; errors end up in the result.
func Walk(ctx context.Context, tab dom.Tab, target string, pages int, cfg *config.Config, out sink.Sink, logger *slog.Logger) walker.Result {
	resolver := locator.New(cfg.Timeouts.Attempt, logger)
	x := extractor.New(extractor.Config{
		Selectors:       cfg.ExtractorSelectors(),
		Resolver:        resolver,
		Lexicon:         cfg.Lexicon,
		HistoricalTerms: cfg.HistoricalTerms,
		DefaultNights:   cfg.DefaultNights,
		OpenTimeout:     cfg.Timeouts.Open,
		AmenityScroll:   cfg.AmenityScroll,
		Limiter:         cfg.Limiter(),
		Sink:            out,
		Logger:          logger,
	})
	w := walker.New(walker.Config{
		Selectors:   cfg.WalkerSelectors(),
		Extractor:   x,
		Resolver:    resolver,
		LoadTimeout: cfg.Timeouts.Load,
		Logger:      logger,
	})

	return w.Walk(ctx, tab, target, pages)
}
