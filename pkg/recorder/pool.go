// Package recorder persists finished transcripts and announces them on the
// event stream from a pool of background workers.
//
// The pool keeps storage and publishing off the streaming path so a slow
// database or broker never stalls rendering.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/deltas/pkg/eventstream"
	"github.com/papercomputeco/deltas/pkg/logger"
	"github.com/papercomputeco/deltas/pkg/storage"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64
	defaultJobTimeout        = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Transcript *storage.Transcript
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for transcripts. Optional.
	Driver storage.Driver

	// Publisher announces stored transcripts. Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 64).
	QueueSize uint

	// JobTimeout bounds the storage and publish calls of one job.
	JobTimeout time.Duration

	// Logger defaults to a nop logger.
	Logger *slog.Logger
}

// Pool processes recording jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once

	mu     sync.Mutex
	stored int
	failed int
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil && c.Publisher == nil {
		return nil, errors.New("recorder needs a storage driver or a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: log.With("component", "recorder"),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Transcript == nil {
		p.logger.Error("job not queued, nil transcript")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"transcript", job.Transcript.ID,
			"provider", job.Transcript.Provider,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"transcript", job.Transcript.ID,
			"provider", job.Transcript.Provider,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Enqueue must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

// Stats reports how many jobs were stored and how many failed.
func (p *Pool) Stats() (stored, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stored, p.failed
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the transcript and then publishes it. A failed store
// skips publishing; a failed publish still counts the transcript as stored.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	t := job.Transcript

	if p.config.Driver != nil {
		if err := p.config.Driver.Put(ctx, t); err != nil {
			p.logger.Error("transcript storage failed",
				"transcript", t.ID,
				"provider", t.Provider,
				"error", err,
			)
			p.record(false)
			return
		}

		p.logger.Info("transcript stored",
			"transcript", t.ID,
			"provider", t.Provider,
			"units", len(t.Chunks),
		)
	}

	if p.config.Publisher != nil {
		if err := p.config.Publisher.PublishTranscript(ctx, eventstream.NewTranscriptEvent(t)); err != nil {
			p.logger.Warn("transcript publish failed",
				"transcript", t.ID,
				"error", err,
			)
		}
	}

	p.record(true)
}

func (p *Pool) record(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.stored++
	} else {
		p.failed++
	}
}
