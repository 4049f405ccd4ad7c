// Package sink receives listing records as they are produced and persists or
// forwards them.
package sink

import (
	"context"
	"log/slog"

	"github.com/juanlucasumali/webscraper/internal/listing"
)

// Sink receives each record once, in discovery order, before the next item
// is processed. Implementations must not block indefinitely.
type Sink interface {
	OnRecord(ctx context.Context, rec listing.Record) error
}

// Func adapts a plain callback into a Sink.
type Func func(ctx context.Context, rec listing.Record) error

func (f Func) OnRecord(ctx context.Context, rec listing.Record) error {
	return f(ctx, rec)
}

// Discard drops every record.
var Discard Sink = Func(func(context.Context, listing.Record) error { return nil })

// Multi fans a record out to several sinks. A failing sink does not stop the
// others; the first error is returned after all have been called.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti builds a fan-out sink. Nil sinks are skipped.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) OnRecord(ctx context.Context, rec listing.Record) error {
	var first error
	for i, s := range m.sinks {
		if err := s.OnRecord(ctx, rec); err != nil {
			m.logger.Error("sink: record failed", "sink", i, "url", rec.URL, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Collector keeps every record in memory.
type Collector struct {
	Records []listing.Record
}

func (c *Collector) OnRecord(_ context.Context, rec listing.Record) error {
	c.Records = append(c.Records, rec)
	return nil
}
