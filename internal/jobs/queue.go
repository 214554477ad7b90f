// Package jobs runs ingestion tasks on a fixed worker pool and tracks their
// status so HTTP clients can poll for completion.
package jobs

import (
	"context"
	"log/slog"
	"sync"

	papyrus "github.com/fzimmer/papyrus"
)

// Status values for a task's lifecycle.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// TaskFunc is the unit of work a task executes. The returned report becomes
// the task's final result.
type TaskFunc func(ctx context.Context) papyrus.IngestReport

// Task is a point-in-time snapshot of a submitted task.
type Task struct {
	ID     string                `json:"task_id"`
	Status string                `json:"status"`
	Report *papyrus.IngestReport `json:"result,omitempty"`
}

type job struct {
	id string
	fn TaskFunc
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// Queue is a fixed-size worker pool with an in-memory status registry.
// Statuses live for the lifetime of the process; restarting the server
// forgets past tasks, matching the at-most-once delivery of the whole
// ingestion path.
type Queue struct {
	jobs   chan job
	logger *slog.Logger

	mu     sync.RWMutex
	status map[string]*Task

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Queue and starts workers goroutines draining it. Close stops
// intake and waits for in-flight tasks.
func New(workers int, opts ...Option) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:   make(chan job, 64),
		status: make(map[string]*Task),
		logger: slog.New(discardHandler{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(q)
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues fn and returns its task ID immediately. The task reports
// status "pending" until a worker picks it up.
func (q *Queue) Submit(fn TaskFunc) string {
	id := papyrus.NewID()

	q.mu.Lock()
	q.status[id] = &Task{ID: id, Status: StatusPending}
	q.mu.Unlock()

	q.jobs <- job{id: id, fn: fn}
	q.logger.Debug("task submitted", "task_id", id)
	return id
}

// Status returns a snapshot of the task with the given ID.
func (q *Queue) Status(id string) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.status[id]
	if !ok {
		return Task{}, false
	}
	snap := *t
	if t.Report != nil {
		r := *t.Report
		snap.Report = &r
	}
	return snap, true
}

// Close stops the workers and waits for in-flight tasks to finish.
// Queued tasks that no worker picked up are abandoned in status "pending".
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case j := <-q.jobs:
			q.setStatus(j.id, StatusRunning, nil)
			q.logger.Debug("task started", "task_id", j.id)

			report := j.fn(q.ctx)

			final := StatusSuccess
			if report.Status == papyrus.StatusError {
				final = StatusError
			}
			q.setStatus(j.id, final, &report)
			q.logger.Info("task finished", "task_id", j.id, "status", final)
		}
	}
}

func (q *Queue) setStatus(id, status string, report *papyrus.IngestReport) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.status[id]; ok {
		t.Status = status
		t.Report = report
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
