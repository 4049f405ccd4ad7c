package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juanlucasumali/webscraper/internal/dom"
)

// ErrNoDetailTab is returned when activating a result card does not open a
// detail tab in time.
var ErrNoDetailTab = errors.New("extractor: detail tab did not open")

// Navigation tracks which tab the extractor is working in. The results tab
// is fixed for the whole walk; the active tab is either the results tab or
// the one detail tab opened for the current item.
type Navigation struct {
	results dom.Tab
	active  dom.Tab
	logger  *slog.Logger
}

// NewNavigation starts with the results tab active.
func NewNavigation(results dom.Tab, logger *slog.Logger) *Navigation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigation{results: results, active: results, logger: logger}
}

// Results returns the results-list tab.
func (n *Navigation) Results() dom.Tab { return n.results }

// Active returns the tab currently worked in.
func (n *Navigation) Active() dom.Tab { return n.active }

// Open activates item and switches to the tab it opens, waiting at most
// timeout for it to appear.
func (n *Navigation) Open(ctx context.Context, item dom.Element, timeout time.Duration) (dom.Tab, error) {
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tab, err := n.results.OpenFrom(openCtx, item)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDetailTab, err)
	}
	n.active = tab
	if err := tab.Activate(); err != nil {
		n.logger.Debug("extractor: activate detail tab failed", "tab", tab.ID(), "error", err)
	}
	n.logger.Info("extractor: switched to detail tab", "tab", tab.ID())
	return tab, nil
}

// Restore closes the detail tab, if any, and re-activates the results tab.
// It is safe to call more than once.
func (n *Navigation) Restore() error {
	var errs []error
	if n.active != nil && n.active != n.results {
		if err := n.active.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detail tab %s: %w", n.active.ID(), err))
		}
	}
	n.active = n.results
	if err := n.results.Activate(); err != nil {
		errs = append(errs, fmt.Errorf("activate results tab: %w", err))
	}
	return errors.Join(errs...)
}
