package sink

import (
	"log/slog"
	"strings"
)

// NewStatusHandler turns every log record into one status line passed to
// onStatus, e.g. `level=INFO msg="walker: loading page" page=1`. A nil opts
// drops the time attribute.
func NewStatusHandler(onStatus func(string), opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{ReplaceAttr: DropTime}
	}
	return slog.NewTextHandler(statusWriter(onStatus), opts)
}

type statusWriter func(string)

// Write receives exactly one formatted record per call.
func (w statusWriter) Write(p []byte) (int, error) {
	w(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// DropTime is a ReplaceAttr function removing the top-level time attribute.
func DropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
