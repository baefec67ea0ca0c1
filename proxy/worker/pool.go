// Package worker provides an asynchronous worker pool that publishes injection
// events using the provided eventstream.Publisher.
//
// The pool decouples event publishing from the proxy's HTTP hot path so that a
// slow or unavailable broker never delays a document stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/splice/pkg/eventstream"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.InjectionEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every enqueued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds each publish call (defaults to 10s).
	PublishTimeout time.Duration

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool publishes events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Event == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"event_id", job.Event.EventID,
			"path", job.Event.Request.Path,
		)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Error("job not queued, queue full, job dropped",
			"event_id", job.Event.EventID,
			"path", job.Event.Request.Path,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
// Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats reports how many events were published, failed to publish, or were
// dropped without being queued.
func (p *Pool) Stats() (published, failed, dropped int64) {
	return p.published.Load(), p.failed.Load(), p.dropped.Load()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

// processJob publishes a single event. Errors are logged and counted but
// never retried.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishInjection(ctx, job.Event); err != nil {
		p.failed.Add(1)
		p.logger.Error("publishing injection event failed",
			"event_id", job.Event.EventID,
			"error", err,
		)
		return
	}

	p.published.Add(1)
	p.logger.Debug("injection event published",
		"event_id", job.Event.EventID,
		"injections", job.Event.Stream.Injections,
	)
}
