package ingestion

import (
	"context"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/observability"
)

// DefaultQueueSize bounds the number of candidates waiting for the engine.
const DefaultQueueSize = 256

// Queue joins the push and poll producers to the single engine consumer.
type Queue struct {
	ch chan *domain.TransactionCandidate
}

// NewQueue creates a Queue holding at most size candidates.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan *domain.TransactionCandidate, size)}
}

// C returns the consumer side.
func (q *Queue) C() <-chan *domain.TransactionCandidate {
	return q.ch
}

// Len returns the number of queued candidates.
func (q *Queue) Len() int {
	return len(q.ch)
}

// TryEnqueue adds c without blocking. It reports false and drops c when
// the queue is full; the next poll re-observes anything still pending.
func (q *Queue) TryEnqueue(c *domain.TransactionCandidate) bool {
	select {
	case q.ch <- c:
		observability.RecordCandidateEnqueued(c.Source.String(), len(q.ch))
		return true
	default:
		observability.RecordCandidateDropped()
		return false
	}
}

// Enqueue adds c, waiting for room until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, c *domain.TransactionCandidate) error {
	select {
	case q.ch <- c:
		observability.RecordCandidateEnqueued(c.Source.String(), len(q.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
