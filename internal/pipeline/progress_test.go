package pipeline

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpProgressCallback(t *testing.T) {
	callback := NoOpProgressCallback{}
	callback.OnStart(10)
	callback.OnProgress(5, 10)
	callback.OnComplete()
	callback.OnError(3, assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	callback := NewConsoleProgressCallback(&buf, "Test: ")

	callback.OnStart(10)
	assert.Contains(t, buf.String(), "Test: processing 10 page(s)")

	buf.Reset()
	callback.OnProgress(5, 10)
	out := buf.String()
	assert.Contains(t, out, "5/10 pages")
	assert.Contains(t, out, "["+"###############"+"...............]")

	buf.Reset()
	callback.OnProgress(1, 0)
	assert.Empty(t, buf.String())

	callback.OnComplete()
	assert.Contains(t, buf.String(), "Test: done in")

	buf.Reset()
	callback.OnError(3, assert.AnError)
	assert.Contains(t, buf.String(), "Test: page 3 failed")
}

func TestProgressFunc(t *testing.T) {
	var got []int
	f := ProgressFunc(func(p int) { got = append(got, p) })
	f.OnStart(4)
	f.OnProgress(1, 4)
	f.OnProgress(3, 4)
	f.OnProgress(1, 0)
	f.OnError(2, assert.AnError)
	f.OnComplete()
	assert.Equal(t, []int{0, 25, 75, 100}, got)
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	callback := NewLogProgressCallback(logger, slog.LevelInfo, "job_id", "job-1")

	callback.OnStart(2)
	callback.OnProgress(1, 2)
	callback.OnComplete()
	callback.OnError(2, assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "Starting document")
	assert.Contains(t, out, "pages=2")
	assert.Contains(t, out, "current=1 total=2")
	assert.Contains(t, out, "job_id=job-1")
	assert.Contains(t, out, "level=ERROR")
}

type recordingProgress struct {
	starts    []int
	progress  [][2]int
	completes int
	errors    []int
}

func (r *recordingProgress) OnStart(total int) { r.starts = append(r.starts, total) }
func (r *recordingProgress) OnProgress(current, total int) {
	r.progress = append(r.progress, [2]int{current, total})
}
func (r *recordingProgress) OnComplete()                 { r.completes++ }
func (r *recordingProgress) OnError(current int, _ error) { r.errors = append(r.errors, current) }

func TestMultiProgressCallback(t *testing.T) {
	a, b := &recordingProgress{}, &recordingProgress{}
	m := MultiProgressCallback{a, b}
	m.OnStart(3)
	m.OnProgress(1, 3)
	m.OnError(2, assert.AnError)
	m.OnComplete()

	for _, r := range []*recordingProgress{a, b} {
		assert.Equal(t, []int{3}, r.starts)
		assert.Equal(t, [][2]int{{1, 3}}, r.progress)
		assert.Equal(t, []int{2}, r.errors)
		assert.Equal(t, 1, r.completes)
	}
}
