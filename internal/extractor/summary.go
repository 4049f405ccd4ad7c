package extractor

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juanlucasumali/webscraper/internal/dom"
	"github.com/juanlucasumali/webscraper/internal/listing"
	"github.com/juanlucasumali/webscraper/internal/locator"
)

// DefaultNights is the stay length used when the date range cannot be read.
const DefaultNights = 2

var ratingRe = regexp.MustCompile(`([\d.]+)\s*\((\d+)\)`)

// ParseRating reads a "4.86 (23)" style string. Both values are unknown when
// the pattern does not match.
func ParseRating(text string) (rating, reviews listing.Number) {
	m := ratingRe.FindStringSubmatch(text)
	if m == nil {
		return listing.Number{}, listing.Number{}
	}
	r, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return listing.Number{}, listing.Number{}
	}
	c, err := strconv.Atoi(m[2])
	if err != nil {
		return listing.Number{}, listing.Number{}
	}
	return listing.Num(r), listing.Num(float64(c))
}

// ParsePrice keeps the digits of a price string, so "$1,234 total" is 1234.
func ParsePrice(text string) (listing.Number, bool) {
	digits := locator.Digits(text)
	if digits == "" {
		return listing.Number{}, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return listing.Number{}, false
	}
	return listing.Num(float64(n)), true
}

// NightlyPrice divides total by nights with integer division. When nights is
// unknown or zero the total is returned unmodified.
func NightlyPrice(total, nights listing.Number) listing.Number {
	if !total.Known {
		return listing.Number{}
	}
	n, ok := nights.Int()
	if !ok || n <= 0 {
		return total
	}
	t, _ := total.Int()
	return listing.Num(float64(t / n))
}

var (
	intRe   = regexp.MustCompile(`\d+`)
	monthRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseNights reads a stay length from a header date range. "May 2 – 4" is
// 2 nights. When both ends name a month ("Apr 30 – May 2") the difference is
// taken between calendar dates in year; otherwise the first two integers are
// subtracted. A non-positive result is treated as unparsable.
func ParseNights(text string, year int) (int, bool) {
	if m := monthRe.FindAllStringSubmatch(text, 2); len(m) == 2 {
		from, ok1 := calendarDay(m[0], year)
		to, ok2 := calendarDay(m[1], year)
		if ok1 && ok2 {
			if to.Before(from) {
				to = to.AddDate(1, 0, 0)
			}
			n := int(to.Sub(from).Hours() / 24)
			return n, n > 0
		}
	}

	ints := intRe.FindAllString(text, 2)
	if len(ints) < 2 {
		return 0, false
	}
	a, err1 := strconv.Atoi(ints[0])
	b, err2 := strconv.Atoi(ints[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	n := b - a
	return n, n > 0
}

func calendarDay(m []string, year int) (time.Time, bool) {
	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

// PageNights reads the stay length once for the current results page,
// falling back to the configured default.
func (x *Extractor) PageNights(ctx context.Context, tab dom.Tab) listing.Number {
	res, ok := x.resolver.Resolve(ctx, x.sel.DateRange, tab)
	if !ok {
		x.logger.Info("extractor: date range unavailable, using default nights", "nights", x.defaultNights)
		return listing.Num(float64(x.defaultNights))
	}
	n, ok := ParseNights(res.Text, x.now().Year())
	if !ok {
		x.logger.Info("extractor: could not parse date range, using default nights",
			"text", res.Text, "nights", x.defaultNights)
		return listing.Num(float64(x.defaultNights))
	}
	x.logger.Info("extractor: nights from date range", "text", res.Text, "nights", n)
	return listing.Num(float64(n))
}

// summary fills the fields read from the result card.
func (x *Extractor) summary(ctx context.Context, card dom.Scope, rec *listing.Record, logger *slog.Logger) {
	if res, ok := x.resolver.Resolve(ctx, x.sel.Rating, card); ok {
		rec.Rating, rec.ReviewCount = ParseRating(res.Text)
		if rec.Rating.Known {
			logger.Info("extractor: rating", "stars", rec.Rating.String(), "reviews", rec.ReviewCount.String())
		} else {
			logger.Info("extractor: could not parse rating", "text", res.Text)
		}
	}

	res, ok := x.resolver.Resolve(ctx, x.sel.Price, card)
	if !ok {
		return
	}
	total, ok := ParsePrice(res.Text)
	if !ok {
		logger.Info("extractor: no digits in price", "text", res.Text)
		return
	}
	rec.TotalPrice = total
	rec.NightlyPrice = NightlyPrice(total, rec.Nights)
	logger.Info("extractor: price", "total", total.String(), "nights", rec.Nights.String(),
		"per_night", rec.NightlyPrice.String())
}
