package worker

import (
	"context"
	"sync"
)

// Next pulls and processes one unit of work. It returns false when the
// queue is drained; an error counts as a failure whether or not a unit
// was claimed, and does not stop the pool's other workers.
type Next func(ctx context.Context) (bool, error)

// Pool runs a fixed number of workers over a claim-based queue. Workers
// do not share an in-memory job channel: each one claims its next unit
// directly from the store, so two pools on two machines drain the same
// queue safely.
type Pool struct {
	workers int
}

// NewPool creates a pool with the specified number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Stats reports what a pool run did.
type Stats struct {
	// Processed counts units that completed
	Processed int `json:"processed"`

	// Failed counts units whose processing returned an error
	Failed int `json:"failed"`
}

// Run starts the workers and blocks until every worker finds the queue
// drained or ctx is cancelled. Errors from individual units are counted,
// not propagated: one bad unit must not stop the batch.
func (p *Pool) Run(ctx context.Context, next Next) Stats {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats Stats
	)

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				worked, err := next(ctx)
				// A failed claim is still a failure: the worker stops,
				// but the caller must see that the run was not clean.
				mu.Lock()
				if err != nil {
					stats.Failed++
				} else if worked {
					stats.Processed++
				}
				mu.Unlock()
				if !worked {
					return
				}
			}
		}()
	}

	wg.Wait()
	return stats
}
