// Package dispatch runs user actions on a bounded pool, at most one task per key.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/brojonat/ultraswap/service/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrBusy is returned by Submit with Reject while a task for the key is still running.
	ErrBusy = errors.New("a task for this key is already running")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("dispatcher is closed")
)

// Policy decides what Submit does when the key already has a task.
type Policy int

const (
	// Reject refuses the new task.
	Reject Policy = iota
	// Replace cancels the running task and starts the new one once it has exited.
	Replace
)

// TaskFunc is the body of a task. It should return promptly once ctx is done.
type TaskFunc func(ctx context.Context)

type task struct {
	id     string
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatcher owns every background task started on behalf of a caller.
type Dispatcher struct {
	sem    *semaphore.Weighted
	base   context.Context
	stop   context.CancelFunc
	logger *slog.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// New creates a dispatcher running at most size tasks at once.
func New(size int, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		sem:    semaphore.NewWeighted(int64(size)),
		base:   base,
		stop:   stop,
		logger: logger,
		m:      m,
		tasks:  make(map[string]*task),
	}
}

// Submit starts fn in the background under key and returns the task id.
// Tasks outlive the caller's request; they stop on Cancel, Replace or Close.
func (d *Dispatcher) Submit(key string, policy Policy, fn TaskFunc) (string, error) {
	kind := kindOf(key)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}

	prev, running := d.tasks[key]
	if running && policy == Reject {
		d.mu.Unlock()
		d.m.RecordDispatch(kind, "rejected")
		return "", fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if running {
		prev.cancel()
		d.m.RecordDispatch(kind, "replaced")
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.WithValue(d.base, taskIDKey{}, id))
	t := &task{
		id:     id,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.tasks[key] = t
	d.wg.Add(1)
	d.mu.Unlock()

	d.m.RecordDispatch(kind, "started")
	go d.run(ctx, t, prev, kind, fn)

	return t.id, nil
}

func (d *Dispatcher) run(ctx context.Context, t *task, prev *task, kind string, fn TaskFunc) {
	defer d.wg.Done()
	defer d.finish(t)

	if prev != nil {
		<-prev.done
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Debug("task cancelled before start", "key", t.key, "task_id", t.id)
		return
	}
	defer d.sem.Release(1)

	d.m.RecordActiveTask(kind, 1)
	defer d.m.RecordActiveTask(kind, -1)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", "key", t.key, "task_id", t.id, "panic", r)
		}
	}()

	d.logger.Debug("task started", "key", t.key, "task_id", t.id)
	fn(ctx)
}

func (d *Dispatcher) finish(t *task) {
	t.cancel()
	d.mu.Lock()
	if d.tasks[t.key] == t {
		delete(d.tasks, t.key)
	}
	d.mu.Unlock()
	close(t.done)
}

// Cancel stops the task running under key. It reports whether there was one.
func (d *Dispatcher) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[key]
	if ok {
		t.cancel()
	}
	return ok
}

// Running reports whether key has a task that has not finished.
func (d *Dispatcher) Running(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tasks[key]
	return ok
}

// Wait blocks until every submitted task has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels every task, refuses new ones and waits for the running ones to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.stop()
	d.wg.Wait()
}

type taskIDKey struct{}

// TaskID returns the id of the task running with ctx, or "" outside a task.
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey{}).(string)
	return id
}

// kindOf returns the key prefix before the first colon, used as a metric label.
func kindOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
