package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/juanlucasumali/webscraper/internal/config"
	"github.com/juanlucasumali/webscraper/internal/formatter"
	"github.com/juanlucasumali/webscraper/internal/scraper"
	_ "github.com/juanlucasumali/webscraper/internal/sites/airbnb"
	"github.com/juanlucasumali/webscraper/internal/sink"
)

var version = "dev"

type flags struct {
	site         string
	pages        int
	outputFormat string
	outputFile   string
	runsDir      string
	noFiles      bool
	configPath   string
	sqlitePath   string
	postgresDSN  string
	showUI       bool
	proxyURL     string
	rate         float64
	timeout      time.Duration
	logLevel     string
	logFormat    string
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var f flags
	if err := newRootCmd(&f).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command bound to f. Proxy, Postgres DSN and rate
// default to their environment variables.
func newRootCmd(f *flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "webscraper [SEARCH_URL]",
		Short:   "Scrape Airbnb search results into CSV, JSON and SQL",
		Version: version,
		Long: `webscraper walks Airbnb search result pages in a real browser, opens
every listing, and records its rating, price, room counts, amenities,
historical-house evidence and guest favorite status. Rows are written
as they are scraped, so an interrupted run keeps everything so far.`,
		Example: `  # Scrape the first three result pages into runs/<timestamp>/
  webscraper -n 3 "https://www.airbnb.com/s/Asheville/homes"

  # Also upsert into SQLite and print a Markdown table
  webscraper --sqlite listings.db -f markdown "https://www.airbnb.com/s/Asheville/homes"

  # Override locator chains and the amenity lexicon, watch the browser
  webscraper -c scraper.yaml --showui "https://www.airbnb.com/s/Asheville/homes"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				os.Exit(0)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], f)
		},
		SilenceUsage: true,
	}

	fl := rootCmd.Flags()
	fl.StringVar(&f.site, "site", "airbnb", "Site scraper to use")
	fl.IntVarP(&f.pages, "pages", "n", 1, "Number of result pages to walk")
	fl.StringVarP(&f.outputFormat, "format", "f", "text", "Output format (html, text, markdown, json, csv)")
	fl.StringVarP(&f.outputFile, "output", "o", "", "Output file path (format inferred from extension if -f not specified)")
	fl.StringVar(&f.runsDir, "runs-dir", "runs", "Directory receiving one timestamped folder of CSV/JSON per run")
	fl.BoolVar(&f.noFiles, "no-files", false, "Do not write the per-run CSV/JSON files")
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML file overriding locator chains, lexicon and timeouts")
	fl.StringVar(&f.sqlitePath, "sqlite", "", "Also upsert listings into this SQLite database")
	fl.StringVar(&f.postgresDSN, "postgres", config.Env(config.EnvPostgresDSN, ""), "Also upsert listings into Postgres, defaults to "+config.EnvPostgresDSN)
	fl.BoolVar(&f.showUI, "showui", false, "Show browser UI (disable headless mode)")
	fl.StringVarP(&f.proxyURL, "proxy", "p", config.Env(config.EnvProxy, ""), "Proxy URL (e.g. http://127.0.0.1:7890), defaults to "+config.EnvProxy)
	fl.Float64Var(&f.rate, "rate", config.EnvFloat(config.EnvRate, 0), "Maximum listing pages opened per second (0 keeps the config value), defaults to "+config.EnvRate)
	fl.DurationVarP(&f.timeout, "timeout", "t", 0, "Deadline for the whole run (0 for none)")
	fl.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "text", "Log format on stderr: text or json")
	return rootCmd
}

func run(cmd *cobra.Command, target string, f *flags) error {
	// If output file is specified but format is not, infer format from file extension
	if f.outputFile != "" && !cmd.Flags().Changed("format") {
		if inferred := formatter.FromExtension(f.outputFile); inferred != "" {
			f.outputFormat = inferred
		}
	}

	if err := validateFlags(f); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, f.logLevel, f.logFormat)
	slog.SetDefault(logger)

	s, ok := scraper.Get(f.site)
	if !ok {
		return fmt.Errorf("unknown site: %s (available: %s)", f.site, strings.Join(scraper.Names(), ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	content, err := s.Scrape(ctx, normalizeURL(target), scraper.Options{
		Pages:       f.pages,
		Timeout:     f.timeout,
		ShowUI:      f.showUI,
		ProxyURL:    f.proxyURL,
		Rate:        f.rate,
		ConfigPath:  f.configPath,
		RunsDir:     f.runsDir,
		NoFiles:     f.noFiles,
		SQLitePath:  f.sqlitePath,
		PostgresDSN: f.postgresDSN,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to scrape: %w", err)
	}

	outputContent, err := formatter.Format(content, f.outputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if f.outputFile != "" {
		if err := os.WriteFile(f.outputFile, []byte(outputContent), 0644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", f.outputFile)
	} else {
		fmt.Println(outputContent)
	}
	return nil
}

func validateFlags(f *flags) error {
	if !formatter.Valid(f.outputFormat) {
		return fmt.Errorf("invalid output format: %s", f.outputFormat)
	}
	if f.pages < 1 {
		return fmt.Errorf("--pages must be at least 1, got %d", f.pages)
	}
	if f.rate < 0 {
		return fmt.Errorf("--rate must not be negative, got %v", f.rate)
	}
	if f.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %v", f.timeout)
	}
	if _, ok := parseLevel(f.logLevel); !ok {
		return fmt.Errorf("invalid log level: %s", f.logLevel)
	}
	if f.logFormat != "text" && f.logFormat != "json" {
		return fmt.Errorf("invalid log format: %s", f.logFormat)
	}
	return nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// newLogger builds the stderr logger. The text format prints one status line
// per record without timestamps.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := parseLevel(level)
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(sink.NewStatusHandler(func(line string) {
		fmt.Fprintln(w, line)
	}, &slog.HandlerOptions{Level: lvl, ReplaceAttr: sink.DropTime}))
}

// normalizeURL normalizes URL, adds https:// if no protocol prefix
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + rawURL
	}
	return rawURL
}
