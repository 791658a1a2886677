package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one input together with what processing it produced.
type Job[T any, R any] struct {
	Input    T
	Result   R
	Err      error
	Duration time.Duration
}

// ProcessFunc processes a single input.
type ProcessFunc[T any, R any] func(ctx context.Context, input T) (R, error)

// Pool runs a ProcessFunc over a slice of inputs with bounded concurrency.
type Pool[T any, R any] struct {
	workers int
	process ProcessFunc[T, R]
}

// NewPool creates a pool with the given number of workers (at least one).
func NewPool[T any, R any](workers int, fn ProcessFunc[T, R]) *Pool[T, R] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T, R]{
		workers: workers,
		process: fn,
	}
}

// Execute processes every input and returns one Job per input, in input
// order. Once ctx is done no further inputs are started; the jobs that never
// ran carry ctx.Err().
func (p *Pool[T, R]) Execute(ctx context.Context, inputs []T) []Job[T, R] {
	jobs := make([]Job[T, R], len(inputs))
	started := make([]bool, len(inputs))
	indexCh := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(p.workers, len(inputs)); w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range indexCh {
				start := time.Now()
				result, err := p.process(ctx, inputs[idx])
				jobs[idx] = Job[T, R]{
					Input:    inputs[idx],
					Result:   result,
					Err:      err,
					Duration: time.Since(start),
				}
				if err != nil {
					log.Debug().Err(err).Int("worker", workerID).Int("index", idx).Msg("Job failed")
				}
			}
		}(w)
	}

dispatch:
	for i := range inputs {
		select {
		case <-ctx.Done():
			break dispatch
		case indexCh <- i:
			started[i] = true
		}
	}
	close(indexCh)
	wg.Wait()

	for i, ok := range started {
		if !ok {
			jobs[i] = Job[T, R]{Input: inputs[i], Err: ctx.Err()}
		}
	}
	return jobs
}

// Batch splits items into consecutive slices of at most batchSize.
func Batch[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]T
	for i := 0; i < len(items); i += batchSize {
		batches = append(batches, items[i:min(i+batchSize, len(items))])
	}
	return batches
}
