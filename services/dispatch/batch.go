package dispatch

import (
	"context"
	"sync"

	"github.com/model-relay/model-relay/services/providers"
	"go.uber.org/zap"
)

// BatchResult holds the outcome of one request in a batch, in input order.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// DispatchBatch runs each request through Dispatch in a bounded worker
// pool. Results come back indexed in input order; one failed request never
// affects the others.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []*providers.Request) []BatchResult {
	results := make([]BatchResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	workers := d.config.BatchWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result, err := d.Dispatch(ctx, reqs[idx])
				results[idx] = BatchResult{Index: idx, Result: result, Err: err}
			}
		}()
	}

	for idx := range reqs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	d.logger.Debug("batch dispatch completed",
		zap.Int("requests", len(reqs)),
		zap.Int("workers", workers))

	return results
}
