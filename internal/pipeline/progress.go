package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives page-level progress while a document is processed.
// ProcessDocument serializes calls, so implementations need no locking of
// their own unless they are shared between documents.
type ProgressCallback interface {
	// OnStart is called once with the number of pages.
	OnStart(total int)
	// OnProgress is called after each finished page.
	OnProgress(current, total int)
	// OnComplete is called when every page finished successfully.
	OnComplete()
	// OnError is called when a page is aborted.
	OnError(current int, err error)
}

// NoOpProgressCallback ignores all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)        {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()        {}
func (NoOpProgressCallback) OnError(int, error) {}

// ProgressFunc reports progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

func (f ProgressFunc) OnStart(int) { f(0) }

func (f ProgressFunc) OnProgress(current, total int) {
	if total > 0 {
		f(current * 100 / total)
	}
}

func (f ProgressFunc) OnComplete()        { f(100) }
func (f ProgressFunc) OnError(int, error) {}

// ConsoleProgressCallback draws a page progress bar.
type ConsoleProgressCallback struct {
	writer    io.Writer
	prefix    string
	width     int
	startTime time.Time
	mutex     sync.Mutex
}

// NewConsoleProgressCallback creates a console progress reporter writing to w
// (stderr when nil).
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{writer: w, prefix: prefix, width: 30}
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.startTime = time.Now()
	_, _ = fmt.Fprintf(c.writer, "%sprocessing %d page(s)\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if total <= 0 {
		return
	}
	filled := c.width * current / total
	bar := strings.Repeat("#", filled) + strings.Repeat(".", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %d/%d pages", c.prefix, bar, current, total)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sdone in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%spage %d failed: %v\n", c.prefix, current, err)
}

// LogProgressCallback logs progress with slog.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	attrs     []any
	startTime time.Time
}

// NewLogProgressCallback creates a log-based progress reporter. attrs are
// added to every record, e.g. "job_id", id.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, attrs ...any) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, attrs: attrs}
}

func (l *LogProgressCallback) log(level slog.Level, msg string, args ...any) {
	l.logger.Log(context.Background(), level, msg, append(append([]any{}, l.attrs...), args...)...)
}

func (l *LogProgressCallback) OnStart(total int) {
	l.startTime = time.Now()
	l.log(l.level, "Starting document", "pages", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.log(l.level, "Page finished", "current", current, "total", total,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnComplete() {
	l.log(l.level, "Document pages complete", "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.log(slog.LevelError, "Page failed", "current", current, "error", err)
}

// MultiProgressCallback fans progress out to several callbacks.
type MultiProgressCallback []ProgressCallback

func (m MultiProgressCallback) OnStart(total int) {
	for _, cb := range m {
		cb.OnStart(total)
	}
}

func (m MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m {
		cb.OnProgress(current, total)
	}
}

func (m MultiProgressCallback) OnComplete() {
	for _, cb := range m {
		cb.OnComplete()
	}
}

func (m MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m {
		cb.OnError(current, err)
	}
}
