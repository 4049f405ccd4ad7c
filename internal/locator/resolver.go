// Package locator resolves one logical field against a page by trying an
// ordered chain of selectors. A field that no strategy can satisfy is
// reported as unavailable; it is never an error.
package locator

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juanlucasumali/webscraper/internal/dom"
)

// DefaultAttemptTimeout bounds a single strategy lookup.
const DefaultAttemptTimeout = 3 * time.Second

// FieldSpec names a logical field and the strategies that may locate it.
type FieldSpec struct {
	Name       string
	Strategies []dom.Selector
	// Attr reads an attribute instead of the element text.
	Attr string
	// Timeout overrides the resolver's per-attempt timeout.
	Timeout time.Duration
	// Scroll brings the located element into the viewport before reading it.
	Scroll bool
}

// Spec builds a FieldSpec from raw selector expressions.
func Spec(name string, exprs ...string) FieldSpec {
	return FieldSpec{Name: name, Strategies: dom.ParseSelectors(exprs)}
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	Text     string
	Element  dom.Element
	Strategy dom.Selector
	// Index is the zero-based position of Strategy in the chain.
	Index int
}

// Resolver evaluates FieldSpecs.
type Resolver struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// New returns a Resolver. A zero timeout means DefaultAttemptTimeout and a
// nil logger means slog.Default().
func New(timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Timeout: timeout, Logger: logger}
}

// Element returns the first element located by the chain. Strategies after
// the first one that finds an element are never tried.
func (r *Resolver) Element(ctx context.Context, spec FieldSpec, scope dom.Scope) (Resolution, bool) {
	return r.walk(ctx, spec, scope, false)
}

// Resolve returns the text (or attribute) of the first element located by the
// chain.
func (r *Resolver) Resolve(ctx context.Context, spec FieldSpec, scope dom.Scope) (Resolution, bool) {
	return r.walk(ctx, spec, scope, true)
}

// Visible reports whether the field's element exists and is displayed.
// Absence is simply false.
func (r *Resolver) Visible(ctx context.Context, spec FieldSpec, scope dom.Scope) bool {
	res, ok := r.Element(ctx, spec, scope)
	if !ok {
		return false
	}
	visible, err := res.Element.Visible()
	if err != nil {
		r.Logger.Debug("locator: visibility check failed", "field", spec.Name, "error", err)
		return false
	}
	return visible
}

// Number resolves the field and extracts its first numeric token.
func (r *Resolver) Number(ctx context.Context, spec FieldSpec, scope dom.Scope) (float64, bool) {
	res, ok := r.Resolve(ctx, spec, scope)
	if !ok {
		return 0, false
	}
	n, ok := ExtractNumber(res.Text)
	if !ok {
		r.Logger.Info("locator: no number in text", "field", spec.Name, "text", res.Text)
	}
	return n, ok
}

func (r *Resolver) walk(ctx context.Context, spec FieldSpec, scope dom.Scope, read bool) (Resolution, bool) {
	timeout := r.Timeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}

	for i, sel := range spec.Strategies {
		el, err := r.lookup(ctx, scope, sel, timeout)
		if err != nil {
			r.Logger.Debug("locator: strategy failed",
				"field", spec.Name, "strategy", i+1, "selector", sel.String(), "error", err)
			continue
		}

		if spec.Scroll {
			if err := el.ScrollIntoView(); err != nil {
				r.Logger.Debug("locator: scroll into view failed", "field", spec.Name, "error", err)
			}
		}

		res := Resolution{Element: el, Strategy: sel, Index: i}
		if read {
			text, err := readValue(el, spec.Attr)
			if err != nil {
				r.Logger.Debug("locator: read failed",
					"field", spec.Name, "strategy", i+1, "selector", sel.String(), "error", err)
				continue
			}
			res.Text = text
		}

		r.Logger.Info("locator: resolved", "field", spec.Name, "strategy", i+1, "selector", sel.String())
		return res, true
	}

	r.Logger.Info("locator: unavailable", "field", spec.Name, "tried", len(spec.Strategies))
	return Resolution{}, false
}

func (r *Resolver) lookup(ctx context.Context, scope dom.Scope, sel dom.Selector, timeout time.Duration) (dom.Element, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return scope.Element(attemptCtx, sel)
}

func readValue(el dom.Element, attr string) (string, error) {
	if attr == "" {
		text, err := el.Text()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}
	v, ok, err := el.Attribute(attr)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errMissingAttr(attr)
	}
	return strings.TrimSpace(v), nil
}

type errMissingAttr string

func (e errMissingAttr) Error() string { return "attribute " + string(e) + " not present" }

var numberRe = regexp.MustCompile(`\d*\.?\d+`)

// ExtractNumber returns the first integer-or-decimal token in text:
// "3.5 bathrooms" is 3.5, "2 beds · king" is 2, "Studio" has none.
func ExtractNumber(text string) (float64, bool) {
	tok := numberRe.FindString(text)
	if tok == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Digits keeps only the ASCII digits of s, so "$1,234 total" becomes "1234".
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
