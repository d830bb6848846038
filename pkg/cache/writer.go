package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// DefaultWriteWorkers is the number of goroutines persisting entries.
	DefaultWriteWorkers = 4

	// DefaultWriteQueueSize is the number of pending writes held before new
	// writes are dropped.
	DefaultWriteQueueSize = 256
)

// WriteQueueConfig configures a WriteQueue.
type WriteQueueConfig struct {
	Workers int
	Size    int
}

type writeJob struct {
	key     string
	headers map[string]string
	body    []byte
}

// WriteQueue persists entries to a Disk in the background.
//
// Enqueue never blocks: when the queue is full or closed the write is
// dropped and counted. Failed writes are sent to an error channel that is
// drained by a logging goroutine; nobody waits on them.
type WriteQueue struct {
	disk   *Disk
	jobs   chan writeJob
	errs   chan error
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool

	workers  sync.WaitGroup
	reporter sync.WaitGroup
}

// NewWriteQueue starts the workers for disk.
func NewWriteQueue(disk *Disk, cfg WriteQueueConfig, logger zerolog.Logger) *WriteQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWriteWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = DefaultWriteQueueSize
	}

	q := &WriteQueue{
		disk:   disk,
		jobs:   make(chan writeJob, cfg.Size),
		errs:   make(chan error, cfg.Workers),
		logger: logger,
	}

	q.reporter.Add(1)
	go q.report()

	q.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.work()
	}

	return q
}

// Enqueue schedules a disk write. It returns false if the write was dropped.
func (q *WriteQueue) Enqueue(key string, headers map[string]string, body []byte) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		WriteQueueDropped.Inc()
		return false
	}

	select {
	case q.jobs <- writeJob{key: key, headers: headers, body: body}:
		return true
	default:
		WriteQueueDropped.Inc()
		q.logger.Warn().Str("key", key).Msg("Disk write queue full, dropping write")
		return false
	}
}

// Close stops accepting writes and waits for pending ones to finish.
func (q *WriteQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.workers.Wait()
	close(q.errs)
	q.reporter.Wait()
}

func (q *WriteQueue) work() {
	defer q.workers.Done()

	for job := range q.jobs {
		if err := q.disk.Write(job.key, job.headers, job.body); err != nil {
			q.errs <- fmt.Errorf("persist %s: %w", job.key, err)
		}
	}
}

func (q *WriteQueue) report() {
	defer q.reporter.Done()

	for err := range q.errs {
		q.logger.Warn().Err(err).Msg("Disk cache write failed")
	}
}
