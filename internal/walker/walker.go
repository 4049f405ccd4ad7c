// Package walker drives the results-list traversal: load a page, discover
// result cards, extract each one, then follow the "next page" control until
// the page budget or the results run out.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/juanlucasumali/webscraper/internal/dom"
	"github.com/juanlucasumali/webscraper/internal/extractor"
	"github.com/juanlucasumali/webscraper/internal/listing"
	"github.com/juanlucasumali/webscraper/internal/locator"
)

var (
	// ErrNoItems ends a traversal when a page shows no result cards.
	ErrNoItems = errors.New("walker: no result cards found")
	// ErrBudget is reported for a non-positive page budget.
	ErrBudget = errors.New("walker: page budget must be positive")
)

// DefaultLoadTimeout bounds one page navigation.
const DefaultLoadTimeout = 30 * time.Second

// State is a traversal step.
type State int

const (
	LoadPage State = iota
	DiscoverItems
	ProcessItems
	FindNext
	Done
)

func (s State) String() string {
	switch s {
	case LoadPage:
		return "load_page"
	case DiscoverItems:
		return "discover_items"
	case ProcessItems:
		return "process_items"
	case FindNext:
		return "find_next"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome tells how a traversal ended.
type Outcome int

const (
	// OutcomeDone covers budget exhaustion and running out of next pages.
	OutcomeDone Outcome = iota
	// OutcomePageError means a page could not be loaded or showed no cards.
	OutcomePageError
)

func (o Outcome) String() string {
	if o == OutcomePageError {
		return "page_error"
	}
	return "done"
}

// Cursor is the traversal position. It lives for one Walk call.
type Cursor struct {
	Page  int
	URL   string
	Count int
}

// Result is everything a traversal produced, even when it ended early.
type Result struct {
	Records []listing.Record
	// Pages is the number of pages whose cards were processed.
	Pages int
	// Failed counts items that produced no record.
	Failed  int
	Outcome Outcome
	// Err is set for OutcomePageError.
	Err error
}

// Selectors holds the page-level chains.
type Selectors struct {
	Overlay locator.FieldSpec
	Items   locator.FieldSpec
	Next    locator.FieldSpec
}

// Config configures a Walker.
type Config struct {
	Selectors   Selectors
	Extractor   *extractor.Extractor
	Resolver    *locator.Resolver
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

// Walker runs traversals. It is not safe for concurrent use.
type Walker struct {
	sel         Selectors
	x           *extractor.Extractor
	resolver    *locator.Resolver
	loadTimeout time.Duration
	logger      *slog.Logger
}

// New returns a Walker with defaults applied to unset fields.
func New(cfg Config) *Walker {
	w := &Walker{
		sel:         cfg.Selectors,
		x:           cfg.Extractor,
		resolver:    cfg.Resolver,
		loadTimeout: cfg.LoadTimeout,
		logger:      cfg.Logger,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.resolver == nil {
		w.resolver = locator.New(0, w.logger)
	}
	if w.x == nil {
		w.x = extractor.New(extractor.Config{Resolver: w.resolver, Logger: w.logger})
	}
	if w.loadTimeout <= 0 {
		w.loadTimeout = DefaultLoadTimeout
	}
	return w
}

// NormalizeStartURL adds page=1 when the address has no page parameter.
func NormalizeStartURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if strings.Contains(raw, "page=") {
			return raw
		}
		if strings.Contains(raw, "?") {
			return raw + "&page=1"
		}
		return raw + "?page=1"
	}
	q := u.Query()
	if q.Has("page") {
		return raw
	}
	if u.RawQuery == "" {
		u.RawQuery = "page=1"
	} else {
		u.RawQuery += "&page=1"
	}
	return u.String()
}

// Walk traverses at most budget pages starting at startURL in tab. It never
// panics and never returns an error directly; Result carries the records
// collected so far and how the traversal ended.
func (w *Walker) Walk(ctx context.Context, tab dom.Tab, startURL string, budget int) (res Result) {
	if budget < 1 {
		w.logger.Error("walker: invalid page budget", "budget", budget)
		return Result{Outcome: OutcomePageError, Err: ErrBudget}
	}

	cur := Cursor{Page: 1, URL: NormalizeStartURL(startURL)}
	nav := extractor.NewNavigation(tab, w.logger)
	state := LoadPage
	var (
		cards  []dom.Element
		nights listing.Number
	)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("walker: traversal panicked", "page", cur.Page, "panic", r,
				"stack", string(debug.Stack()))
			res.Outcome = OutcomePageError
			res.Err = fmt.Errorf("walker: page %d: panic: %v", cur.Page, r)
		}
		w.logger.Info("walker: finished", "outcome", res.Outcome.String(), "pages", res.Pages,
			"records", len(res.Records), "failed", res.Failed)
	}()

	for {
		w.logger.Debug("walker: state", "state", state.String(), "page", cur.Page)
		switch state {
		case LoadPage:
			w.logger.Info("walker: loading page", "page", cur.Page, "budget", budget, "url", cur.URL)
			if err := w.load(ctx, tab, cur.URL); err != nil {
				return w.pageError(res, cur, err)
			}
			w.dismissOverlay(ctx, tab)
			nights = w.x.PageNights(ctx, tab)
			state = DiscoverItems

		case DiscoverItems:
			var err error
			cards, err = w.discover(ctx, tab)
			if err != nil {
				return w.pageError(res, cur, err)
			}
			w.logger.Info("walker: found listings", "page", cur.Page, "count", len(cards))
			state = ProcessItems

		case ProcessItems:
			for i, card := range cards {
				if err := ctx.Err(); err != nil {
					return w.pageError(res, cur, err)
				}
				w.logger.Info("walker: processing listing", "page", cur.Page, "item", i+1, "of", len(cards))
				rec, err := w.x.Extract(ctx, nav, card, extractor.Position{Page: cur.Page, Index: i + 1}, nights)
				if err != nil {
					res.Failed++
					w.logger.Warn("walker: listing failed", "page", cur.Page, "item", i+1, "error", err)
					continue
				}
				res.Records = append(res.Records, rec)
				cur.Count++
			}
			res.Pages++
			w.logger.Info("walker: page done", "page", cur.Page, "records", cur.Count)
			state = FindNext

		case FindNext:
			if cur.Page >= budget {
				w.logger.Info("walker: page budget reached", "budget", budget)
				state = Done
				continue
			}
			next, ok := w.findNext(ctx, tab, cur.URL)
			if !ok {
				w.logger.Info("walker: no more pages")
				state = Done
				continue
			}
			cur.Page++
			cur.URL = next
			state = LoadPage

		case Done:
			res.Outcome = OutcomeDone
			return res
		}
	}
}

func (w *Walker) pageError(res Result, cur Cursor, err error) Result {
	w.logger.Error("walker: page failed, ending traversal", "page", cur.Page, "url", cur.URL, "error", err)
	res.Outcome = OutcomePageError
	res.Err = fmt.Errorf("walker: page %d: %w", cur.Page, err)
	return res
}

func (w *Walker) load(ctx context.Context, tab dom.Tab, target string) error {
	loadCtx, cancel := context.WithTimeout(ctx, w.loadTimeout)
	defer cancel()
	if err := tab.Navigate(loadCtx, target); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := tab.Activate(); err != nil {
		w.logger.Debug("walker: activate results tab failed", "error", err)
	}
	return nil
}

// dismissOverlay clicks the introductory overlay away. Absence is normal.
func (w *Walker) dismissOverlay(ctx context.Context, tab dom.Tab) {
	btn, ok := w.resolver.Element(ctx, w.sel.Overlay, tab)
	if !ok {
		return
	}
	if err := btn.Element.Click(); err != nil {
		w.logger.Info("walker: overlay dismiss failed", "error", err)
		return
	}
	w.logger.Info("walker: dismissed overlay")
}

// discover returns the cards of the first strategy that finds any.
func (w *Walker) discover(ctx context.Context, tab dom.Tab) ([]dom.Element, error) {
	timeout := w.sel.Items.Timeout
	if timeout <= 0 {
		timeout = w.resolver.Timeout
	}
	var errs []error
	for _, sel := range w.sel.Items.Strategies {
		findCtx, cancel := context.WithTimeout(ctx, timeout)
		cards, err := tab.Elements(findCtx, sel)
		cancel()
		if err == nil && len(cards) > 0 {
			return cards, nil
		}
		if err != nil {
			w.logger.Debug("walker: card strategy failed", "selector", sel.String(), "error", err)
			errs = append(errs, err)
		}
	}
	return nil, errors.Join(append([]error{ErrNoItems}, errs...)...)
}

// findNext returns the absolute address of the next results page, or false
// when there is none.
func (w *Walker) findNext(ctx context.Context, tab dom.Tab, current string) (string, bool) {
	res, ok := w.resolver.Element(ctx, w.sel.Next, tab)
	if !ok {
		return "", false
	}
	el := res.Element
	label, _, _ := el.Attribute("aria-label")
	w.logger.Info("walker: found next control", "label", label)

	if disabled, ok, _ := el.Attribute("aria-disabled"); ok && disabled == "true" {
		w.logger.Info("walker: next control disabled")
		return "", false
	}
	if !strings.Contains(label, "Next") {
		w.logger.Info("walker: control is not a next control", "label", label)
		return "", false
	}
	href, ok, err := el.Attribute("href")
	if err != nil || !ok || strings.TrimSpace(href) == "" {
		w.logger.Info("walker: next control has no target")
		return "", false
	}
	next, err := resolveRef(current, href)
	if err != nil {
		w.logger.Warn("walker: bad next target", "href", href, "error", err)
		return "", false
	}
	return next, true
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
