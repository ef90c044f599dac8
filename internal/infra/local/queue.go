package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

// service processes a dequeued task.
type service interface {
	ProcessTask(ctx context.Context, task model.Task) error
}

// Queue is an in-process bounded worker pool. Enqueue blocks while the
// buffer is full, which bounds memory and concurrent downloads.
type Queue struct {
	service service
	workers int
	timeout time.Duration

	ch   chan model.Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets the buffer size.
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan model.Task, n)
		}
	}
}

// WithProcessTimeout bounds the processing time of one task.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// New creates a Queue and starts its workers.
func New(s service, opts ...Option) *Queue {
	q := &Queue{
		service: s,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan model.Task, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work(i + 1)
		}
	})
}

func (q *Queue) work(workerID int) {
	defer q.wg.Done()

	for task := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.service.ProcessTask(ctx, task)
		cancel()

		if err != nil {
			zlog.Logger.Err(err).
				Int("worker_id", workerID).
				Str("request_id", task.RequestID.String()).
				Msg("processing failed")
		}
	}
}

// Enqueue hands the task to a worker, waiting for buffer space until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, task model.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- task:
		return nil
	default:
	}

	zlog.Logger.Warn().Str("request_id", task.RequestID.String()).Msg("queue full, applying backpressure")

	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		zlog.Logger.Warn().Msg("queue shutdown interrupted")
	case <-done:
		zlog.Logger.Info().Msg("queue drained")
	}
}
