package airbnb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/juanlucasumali/webscraper/internal/scraper"
	"github.com/juanlucasumali/webscraper/internal/sink"
)

// Run identifies one scrape and where its output went.
type Run struct {
	ID       string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Files    []string  `json:"files,omitempty"`
}

// outputs is the fan-out sink of a run plus everything that must be closed
// when the run ends.
type outputs struct {
	Sink   *sink.Multi
	Files  []string
	closer []io.Closer
	logger *slog.Logger
}

// openSinks opens every sink the options ask for. A sink that fails to open
// is fatal: the user asked for that output and would otherwise lose it.
func openSinks(ctx context.Context, opts scraper.Options, run Run, logger *slog.Logger) (*outputs, error) {
	out := &outputs{Sink: sink.NewMulti(logger), logger: logger}

	if !opts.NoFiles {
		base := opts.RunsDir
		if base == "" {
			base = "runs"
		}
		dir, err := sink.NewRunDir(base, run.Started)
		if err != nil {
			return nil, err
		}
		c, err := sink.NewCSV(filepath.Join(dir, "listings.csv"))
		if err != nil {
			return nil, err
		}
		out.add(c, c.Path())

		j, err := sink.NewJSON(filepath.Join(dir, "listings.json"))
		if err != nil {
			out.Close()
			return nil, err
		}
		out.add(j, j.Path())
		logger.Info("airbnb: writing run files", "dir", dir)
	}

	if opts.SQLitePath != "" {
		s, err := sink.OpenSQLite(ctx, opts.SQLitePath, run.ID)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.add(s, "")
		logger.Info("airbnb: writing to sqlite", "path", opts.SQLitePath)
	}

	if opts.PostgresDSN != "" {
		s, err := sink.OpenPostgres(ctx, opts.PostgresDSN, run.ID)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.add(s, "")
		logger.Info("airbnb: writing to postgres")
	}

	return out, nil
}

type closingSink interface {
	sink.Sink
	io.Closer
}

func (o *outputs) add(s closingSink, path string) {
	o.Sink.Add(s)
	o.closer = append(o.closer, s)
	if path != "" {
		o.Files = append(o.Files, path)
	}
}

// Close closes every sink, logging failures.
func (o *outputs) Close() error {
	var errs []error
	for _, c := range o.closer {
		if err := c.Close(); err != nil {
			o.logger.Warn("airbnb: closing sink failed", "error", err)
			errs = append(errs, err)
		}
	}
	o.closer = nil
	return errors.Join(errs...)
}
