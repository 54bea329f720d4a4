package store

import "sync"

// writeQueue is a thread-safe FIFO of pending background writes.
//
// The queue is unbounded so that Write never blocks its caller; the single
// writer goroutine drains it in order.
//
// The queue uses a channel for signaling so the writer can sleep until a
// job arrives or the queue is closed.
type writeQueue struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		jobs:   make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *writeQueue) Enqueue(job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, job)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Dequeue removes and returns the front job.
// Blocks until a job is available or the queue is closed and empty.
func (q *writeQueue) Dequeue() (func(), bool) {
	for {
		if job, ok := q.TryDequeue(); ok {
			return job, true
		}

		q.mu.Lock()
		if q.closed && len(q.jobs) == 0 {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

// TryDequeue removes the front job without blocking.
func (q *writeQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	job := q.jobs[0]
	q.jobs[0] = nil // release the closure for GC

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return job, true
}

// Len returns the number of queued jobs.
func (q *writeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close refuses further jobs. Jobs already queued are still handed out.
func (q *writeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes the writer
}
