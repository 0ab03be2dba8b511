package storage

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	jobs     map[string]Job
	watchers map[string][]chan Job
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]Job),
		watchers: make(map[string][]chan Job),
		now:      time.Now,
	}
}

func (m *Memory) CreateJob(_ context.Context, pdfName string) (Job, error) {
	job, err := newJob(pdfName, m.now())
	if err != nil {
		return Job{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[pdfName]; ok {
		return Job{}, ErrExists
	}
	m.jobs[pdfName] = job
	return job, nil
}

func (m *Memory) UpdateStatus(_ context.Context, pdfName string, status Status, message string) error {
	if err := checkStatus(status); err != nil {
		return err
	}
	return m.update(pdfName, func(j *Job) {
		j.Status = status
		j.Message = message
	})
}

func (m *Memory) SaveResult(_ context.Context, pdfName string, doc *pipeline.DocumentResult) error {
	res := classifier.EmptyResult()
	if doc != nil {
		res = doc.Classification
	}
	return m.update(pdfName, func(j *Job) {
		j.Status = StatusComplete
		j.Result = &res
		j.Message = ""
	})
}

func (m *Memory) update(pdfName string, apply func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[pdfName]
	if !ok {
		return ErrNotFound
	}
	apply(&job)
	job.UpdatedAt = m.now()
	m.jobs[pdfName] = job
	for _, ch := range m.watchers[pdfName] {
		select {
		case ch <- job:
		default:
		}
	}
	return nil
}

func (m *Memory) Job(_ context.Context, pdfName string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[pdfName]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// Watch streams updates of the job for pdfName until ctx ends. Updates are
// dropped for a watcher that is not keeping up.
func (m *Memory) Watch(ctx context.Context, pdfName string) (<-chan Job, error) {
	ch := make(chan Job, 8)
	m.mu.Lock()
	if _, ok := m.jobs[pdfName]; !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	m.watchers[pdfName] = append(m.watchers[pdfName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[pdfName]
		for i, c := range list {
			if c == ch {
				m.watchers[pdfName] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(m.watchers[pdfName]) == 0 {
			delete(m.watchers, pdfName)
		}
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) Close() error { return nil }
