// Package extractor turns one result card into one listing record: it reads
// the card summary, opens the listing's detail tab, reads the detail fields,
// classifies amenities and history, and hands the record to a sink.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/juanlucasumali/webscraper/internal/classify"
	"github.com/juanlucasumali/webscraper/internal/dom"
	"github.com/juanlucasumali/webscraper/internal/listing"
	"github.com/juanlucasumali/webscraper/internal/locator"
	"github.com/juanlucasumali/webscraper/internal/sink"
)

// Defaults applied by New.
const (
	DefaultOpenTimeout   = 5 * time.Second
	DefaultAmenityScroll = 500
)

// Selectors holds every field chain the extractor resolves. Rating and Price
// are evaluated inside a result card; DateRange against the results page;
// everything else against the detail tab.
type Selectors struct {
	Rating    locator.FieldSpec
	Price     locator.FieldSpec
	DateRange locator.FieldSpec

	Name          locator.FieldSpec
	Guests        locator.FieldSpec
	Bedrooms      locator.FieldSpec
	Beds          locator.FieldSpec
	Baths         locator.FieldSpec
	Location      locator.FieldSpec
	GuestFavorite locator.FieldSpec
	Content       locator.FieldSpec
	Description   locator.FieldSpec

	AmenitiesButton  locator.FieldSpec
	AmenitiesPanel   locator.FieldSpec
	AmenitiesSection locator.FieldSpec
}

// Config configures an Extractor.
type Config struct {
	Selectors       Selectors
	Resolver        *locator.Resolver
	Lexicon         classify.Lexicon
	HistoricalTerms []string
	DefaultNights   int
	// OpenTimeout bounds the wait for a detail tab to appear.
	OpenTimeout time.Duration
	// AmenityScroll is how far the detail page is scrolled before looking
	// for the amenities control.
	AmenityScroll int
	// Limiter throttles detail-tab opens. Nil disables throttling.
	Limiter *rate.Limiter
	Sink    sink.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Extractor processes result cards one at a time. It is not safe for
// concurrent use.
type Extractor struct {
	sel             Selectors
	resolver        *locator.Resolver
	lexicon         classify.Lexicon
	historicalTerms []string
	defaultNights   int
	openTimeout     time.Duration
	amenityScroll   int
	limiter         *rate.Limiter
	sink            sink.Sink
	logger          *slog.Logger
	now             func() time.Time
}

// New returns an Extractor with defaults applied to unset fields.
func New(cfg Config) *Extractor {
	x := &Extractor{
		sel:             cfg.Selectors,
		resolver:        cfg.Resolver,
		lexicon:         cfg.Lexicon,
		historicalTerms: cfg.HistoricalTerms,
		defaultNights:   cfg.DefaultNights,
		openTimeout:     cfg.OpenTimeout,
		amenityScroll:   cfg.AmenityScroll,
		limiter:         cfg.Limiter,
		sink:            cfg.Sink,
		logger:          cfg.Logger,
		now:             cfg.Now,
	}
	if x.logger == nil {
		x.logger = slog.Default()
	}
	if x.resolver == nil {
		x.resolver = locator.New(0, x.logger)
	}
	if x.lexicon == nil {
		x.lexicon = classify.DefaultLexicon()
	}
	if x.historicalTerms == nil {
		x.historicalTerms = classify.DefaultHistoricalTerms()
	}
	if x.defaultNights <= 0 {
		x.defaultNights = DefaultNights
	}
	if x.openTimeout <= 0 {
		x.openTimeout = DefaultOpenTimeout
	}
	if x.amenityScroll == 0 {
		x.amenityScroll = DefaultAmenityScroll
	}
	if x.sink == nil {
		x.sink = sink.Discard
	}
	if x.now == nil {
		x.now = time.Now
	}
	return x
}

// Position locates a card in the traversal. Both fields are 1-based.
type Position struct {
	Page  int
	Index int
}

// Extract builds the record for one result card and emits it to the sink.
// Whatever happens, including a panic from the browser driver, the detail
// tab is closed and the results tab is active again when Extract returns.
// A non-nil error means the item failed and nothing was emitted.
func (x *Extractor) Extract(ctx context.Context, nav *Navigation, card dom.Element, at Position, nights listing.Number) (rec listing.Record, err error) {
	logger := x.logger.With("page", at.Page, "item", at.Index)

	rec = listing.New()
	rec.Page = at.Page
	rec.Position = at.Index
	rec.Nights = nights

	defer func() {
		if r := recover(); r != nil {
			logger.Debug("extractor: recovered panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("extractor: item %d on page %d panicked: %v", at.Index, at.Page, r)
		}
		if rerr := nav.Restore(); rerr != nil {
			logger.Warn("extractor: restore results tab", "error", rerr)
		} else {
			logger.Debug("extractor: returned to results tab")
		}
	}()

	x.summary(ctx, card, &rec, logger)

	if x.limiter != nil {
		if err := x.limiter.Wait(ctx); err != nil {
			return rec, fmt.Errorf("extractor: throttle: %w", err)
		}
	}

	logger.Info("extractor: opening listing")
	tab, err := nav.Open(ctx, card, x.openTimeout)
	if err != nil {
		return rec, err
	}

	content := x.detail(ctx, tab, &rec, logger)
	amenities := x.amenitiesText(ctx, tab, content, logger)
	rec.SetAmenities(classify.Classify(amenities, x.lexicon))
	rec.ScrapedAt = x.now()

	if err := x.sink.OnRecord(ctx, rec); err != nil {
		logger.Warn("extractor: sink rejected record", "url", rec.URL, "error", err)
	}
	logger.Info("extractor: listing done", "url", rec.URL, "name", rec.Name)
	return rec, nil
}

// detail fills the fields read from the detail tab and returns the broad
// content text.
func (x *Extractor) detail(ctx context.Context, tab dom.Tab, rec *listing.Record, logger *slog.Logger) string {
	if u, err := tab.URL(); err != nil {
		logger.Info("extractor: detail url unavailable", "error", err)
	} else if u != "" {
		rec.URL = u
	}

	if res, ok := x.resolver.Resolve(ctx, x.sel.Name, tab); ok && res.Text != "" {
		rec.Name = res.Text
	}
	rec.GuestLimit = x.number(ctx, x.sel.Guests, tab)
	rec.Bedrooms = x.number(ctx, x.sel.Bedrooms, tab)
	rec.Beds = x.number(ctx, x.sel.Beds, tab)
	rec.Bathrooms = x.number(ctx, x.sel.Baths, tab)
	rec.LocationRating = x.number(ctx, x.sel.Location, tab)
	rec.GuestFavorite = x.resolver.Visible(ctx, x.sel.GuestFavorite, tab)

	var content string
	if res, ok := x.resolver.Resolve(ctx, x.sel.Content, tab); ok {
		content = res.Text
	}

	text := content
	if res, ok := x.resolver.Resolve(ctx, x.sel.Description, tab); ok && res.Text != "" {
		text = strings.TrimSpace(text + "\n" + res.Text)
		logger.Debug("extractor: added description to historical text")
	}
	rec.SetHistorical(classify.DetectHistorical(text, x.historicalTerms))
	logger.Info("extractor: historical", "present", rec.Historical, "evidence", rec.HistoricalEvidence)

	return content
}

func (x *Extractor) number(ctx context.Context, spec locator.FieldSpec, scope dom.Scope) listing.Number {
	n, ok := x.resolver.Number(ctx, spec, scope)
	if !ok {
		return listing.Number{}
	}
	return listing.Num(n)
}

// amenitiesText returns the best available amenities text: the expanded
// amenities panel, then the inline amenities section, then content.
func (x *Extractor) amenitiesText(ctx context.Context, tab dom.Tab, content string, logger *slog.Logger) string {
	if err := tab.ScrollBy(x.amenityScroll); err != nil {
		logger.Debug("extractor: scroll before amenities failed", "error", err)
	}

	if text, ok := x.amenitiesPanel(ctx, tab, logger); ok {
		logger.Info("extractor: amenities from panel")
		return text
	}
	if res, ok := x.resolver.Resolve(ctx, x.sel.AmenitiesSection, tab); ok && res.Text != "" {
		logger.Info("extractor: amenities from page section")
		return res.Text
	}
	logger.Info("extractor: amenities from page content")
	return content
}

func (x *Extractor) amenitiesPanel(ctx context.Context, tab dom.Tab, logger *slog.Logger) (string, bool) {
	btn, ok := x.resolver.Element(ctx, x.sel.AmenitiesButton, tab)
	if !ok {
		return "", false
	}
	if err := btn.Element.ScrollIntoView(); err != nil {
		logger.Debug("extractor: scroll to amenities button failed", "error", err)
	}
	if err := btn.Element.Click(); err != nil {
		logger.Info("extractor: amenities button click failed", "error", err)
		return "", false
	}
	res, ok := x.resolver.Resolve(ctx, x.sel.AmenitiesPanel, tab)
	if !ok || res.Text == "" {
		return "", false
	}
	return res.Text, true
}
