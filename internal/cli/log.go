// Package cli implements the cyclegc command-line interface.
//
// The CLI drives a collector from scenario scripts: it runs them, renders
// the resulting heap topology and offers an interactive REPL. It is built
// with cobra and logs through charmbracelet/log.
//
// # Commands
//
//   - run: execute scenario scripts and check their expectations
//   - dot: render the heap after a script as DOT or SVG
//   - repl: feed scenario forms one at a time
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// turns on the collector's per-pass summaries. Loggers are passed through
// context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"cyclegc/pkg/memory"
)

// newLogger creates the CLI logger. Timestamps are "HH:MM:SS.ms"; at debug
// level each line also carries its call site.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    level <= log.DebugLevel,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress times work done against one collector.
type progress struct {
	logger *log.Logger
	c      *memory.Collector
	base   memory.Stats
	start  time.Time
}

func newProgress(l *log.Logger, c *memory.Collector) *progress {
	return &progress{
		logger: l.With("collector", c.Name()),
		c:      c,
		base:   c.Stats(),
		start:  time.Now(),
	}
}

// done logs msg with the passes run and nodes reclaimed since newProgress.
func (p *progress) done(msg string) {
	s := p.c.Stats()
	p.logger.Info(msg,
		"passes", s.Passes-p.base.Passes,
		"reclaimed", s.NodesReclaimed-p.base.NodesReclaimed,
		"elapsed", time.Since(p.start).Round(time.Millisecond),
	)
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	configKey
)

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx, or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
