package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nem-cosigner/internal/domain"
)

func TestQueue_TryEnqueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	c := &domain.TransactionCandidate{Hash: "a", Source: domain.SourcePush}

	assert.True(t, q.TryEnqueue(c))
	assert.True(t, q.TryEnqueue(c))
	assert.False(t, q.TryEnqueue(c))
	assert.Equal(t, 2, q.Len())

	<-q.C()
	assert.True(t, q.TryEnqueue(c))
}

func TestQueue_EnqueueWaitsForRoom(t *testing.T) {
	q := NewQueue(1)
	c := &domain.TransactionCandidate{Hash: "a", Source: domain.SourcePoll}
	require.NoError(t, q.Enqueue(context.Background(), c))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, c), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), c) }()
	<-q.C()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume")
	}
}

func TestQueue_DefaultSize(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, DefaultQueueSize, cap(q.ch))
}
