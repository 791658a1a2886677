package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolKeepsInputOrder(t *testing.T) {
	pool := NewPool(4, func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("three")
		}
		return n * n, nil
	})

	jobs := pool.Execute(context.Background(), []int{1, 2, 3, 4, 5})
	require.Len(t, jobs, 5)
	for i, job := range jobs {
		assert.Equal(t, i+1, job.Input)
		if job.Input == 3 {
			assert.EqualError(t, job.Err, "three")
			continue
		}
		assert.NoError(t, job.Err)
		assert.Equal(t, job.Input*job.Input, job.Result)
	}
}

func TestPoolEmptyInput(t *testing.T) {
	pool := NewPool(0, func(_ context.Context, s string) (string, error) { return s, nil })
	assert.Empty(t, pool.Execute(context.Background(), nil))
}

func TestPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	pool := NewPool(2, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	})

	jobs := pool.Execute(ctx, []int{1, 2, 3})
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		if job.Err != nil {
			assert.ErrorIs(t, job.Err, context.Canceled)
			assert.NotZero(t, job.Input)
		}
	}
	assert.LessOrEqual(t, int(calls.Load()), 3)
}

func TestBatch(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Batch([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1}, {2}}, Batch([]int{1, 2}, 0))
	assert.Nil(t, Batch([]int{}, 3))
}
