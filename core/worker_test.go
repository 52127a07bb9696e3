package core

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_RunTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4, 16, zap.NewNop().Sugar())
	require.NoError(t, pool.Start())
	defer pool.Stop()

	var counter int64
	tasks := make([]func(), 100)
	for i := range tasks {
		tasks[i] = func() { atomic.AddInt64(&counter, 1) }
	}
	require.NoError(t, pool.RunTasks(tasks))
	assert.Equal(t, int64(100), atomic.LoadInt64(&counter))
}

func TestWorkerPool_DisjointOutputs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 8, 8, zap.NewNop().Sugar())
	require.NoError(t, pool.Start())
	defer pool.Stop()

	out := make([]int, 50)
	tasks := make([]func(), 50)
	for i := range tasks {
		i := i
		tasks[i] = func() { out[i] = i * 2 }
	}
	require.NoError(t, pool.RunTasks(tasks))
	for i, v := range out {
		assert.Equal(t, i*2, v)
	}
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, 1, zap.NewNop().Sugar())
	require.NoError(t, pool.Start())
	pool.Stop()

	err := pool.Submit(func() {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_StopTwice(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, 2, zap.NewNop().Sugar())
	require.NoError(t, pool.Start())
	pool.Stop()
	pool.Stop() // must not panic or deadlock
}
