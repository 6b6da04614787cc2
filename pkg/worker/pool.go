// Package worker runs the side effects of an applied batch off the write
// path: appending entries to the storage log, re-indexing touched nodes for
// similarity search and publishing a change event.
//
// Failures here are logged and counted, never returned to the writer. The
// in-memory state stays authoritative.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/eventstream"
	"github.com/papercomputeco/memstate/pkg/metrics"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

// Indexer keeps a similarity index in step with a state.
type Indexer interface {
	Sync(ctx context.Context, st *state.State, ids []string) error
}

// Job is the work produced by one applied batch.
type Job struct {
	// Session names the state the batch was applied to. Jobs of one
	// session are processed in enqueue order.
	Session string

	Entries []state.Entry

	// State is the post-batch snapshot. It is read, never modified.
	State *state.State

	// Touched lists the node ids addressed by the entries.
	Touched []string

	// Gate is the CanExecute outcome per kind after the batch.
	Gate map[state.Kind]bool
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Storage receives log appends. Optional.
	Storage storage.Driver

	// Index is re-synced for touched nodes. Optional.
	Index Indexer

	// Publisher receives one event per job. Optional.
	Publisher eventstream.Publisher

	Metrics *metrics.Recorder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's job channel (defaults to 256).
	QueueSize uint

	Logger *zap.Logger
}

// Pool processes batch side effects asynchronously. Each session is pinned
// to one worker so its log stays in batch order.
type Pool struct {
	config *Config
	queues []chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queues: make([]chan Job, c.NumWorkers),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		wp.queues[i] = make(chan Job, c.QueueSize)
		go wp.worker(i, wp.queues[i])
	}

	return wp, nil
}

func (p *Pool) queueFor(session string) chan Job {
	h := fnv.New32a()
	_, _ = h.Write([]byte(session))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", zap.String("session", job.Session))
		return false
	}

	select {
	case p.queueFor(job.Session) <- job:
		p.logger.Debug("job queued",
			zap.String("session", job.Session),
			zap.Int("entries", len(job.Entries)),
		)
		return true
	default:
		p.config.Metrics.ObserveDroppedJob()
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("session", job.Session),
			zap.Int("entries", len(job.Entries)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Further Enqueue calls return false.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off its queue
func (p *Pool) worker(id uint, queue <-chan Job) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// processJob runs each configured side effect. A failing step does not
// prevent the later ones.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if p.config.Storage != nil && len(job.Entries) > 0 {
		if err := p.config.Storage.AppendToLog(ctx, job.Entries); err != nil {
			p.config.Metrics.ObserveLogAppendError()
			p.logger.Error("log append failed",
				zap.String("session", job.Session),
				zap.Int("first_seq", job.Entries[0].Seq),
				zap.Error(err),
			)
		} else {
			p.logger.Debug("entries appended to log",
				zap.String("session", job.Session),
				zap.Int("count", len(job.Entries)),
			)
		}
	}

	if p.config.Index != nil && job.State != nil && len(job.Touched) > 0 {
		if err := p.config.Index.Sync(ctx, job.State, job.Touched); err != nil {
			p.logger.Warn("failed to sync similarity index",
				zap.String("session", job.Session),
				zap.Strings("ids", job.Touched),
				zap.Error(err),
			)
		}
	}

	if p.config.Publisher != nil {
		event := eventstream.NewBatchAppliedEvent(job.Session, job.Entries, job.Touched, job.Gate)
		if err := p.config.Publisher.PublishBatch(ctx, event); err != nil {
			p.logger.Warn("failed to publish batch event",
				zap.String("session", job.Session),
				zap.Int("batch", event.Batch),
				zap.Error(err),
			)
		}
	}
}
