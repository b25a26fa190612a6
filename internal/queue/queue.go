package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("refresh queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("refresh queue is closed")

	// ErrAlreadyQueued is returned when the category already has a pending job
	ErrAlreadyQueued = errors.New("category already queued for refresh")
)

// Job is one pending refresh request. An empty Category means a full
// refresh of every catalog category.
type Job struct {
	ID         string
	Category   string
	Manual     bool
	EnqueuedAt time.Time
}

// NewJob builds a job with a fresh ID.
func NewJob(category string, manual bool) Job {
	return Job{
		ID:         uuid.NewString(),
		Category:   category,
		Manual:     manual,
		EnqueuedAt: time.Now(),
	}
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	TotalDeduped  int64
	ManualCount   int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// Queue is a bounded two-lane job queue. Manual jobs dequeue before
// scheduled ones; each lane is FIFO. Enqueue never blocks: a full queue
// drops the job with ErrQueueFull, since refreshes are periodic and a
// dropped request is retried by the next cadence tick.
type Queue struct {
	maxSize int

	mu       sync.Mutex
	notEmpty *sync.Cond

	manual    []Job
	scheduled []Job
	pending   map[string]bool

	closed bool
	stats  Stats
}

// New creates a queue holding at most maxSize jobs.
func New(maxSize int) *Queue {
	q := &Queue{
		maxSize: maxSize,
		pending: make(map[string]bool),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a job unless its category is already waiting.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.pending[job.Category] {
		q.stats.TotalDeduped++
		return ErrAlreadyQueued
	}
	if len(q.manual)+len(q.scheduled) >= q.maxSize {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	if job.Manual {
		q.manual = append(q.manual, job)
		q.stats.ManualCount++
	} else {
		q.scheduled = append(q.scheduled, job)
	}
	q.pending[job.Category] = true

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if size := len(q.manual) + len(q.scheduled); size > q.stats.PeakSize {
		q.stats.PeakSize = size
	}

	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks until a job is available or the queue closes.
func (q *Queue) Dequeue() (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.manual) == 0 && len(q.scheduled) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return Job{}, ErrQueueClosed
	}

	var job Job
	if len(q.manual) > 0 {
		job = q.manual[0]
		q.manual = q.manual[1:]
	} else {
		job = q.scheduled[0]
		q.scheduled = q.scheduled[1:]
	}
	delete(q.pending, job.Category)

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	return job, nil
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.manual) + len(q.scheduled)
}

// GetStats returns current queue statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.manual) + len(q.scheduled)
	return stats
}

// Close shuts the queue down and wakes all blocked consumers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	return nil
}
