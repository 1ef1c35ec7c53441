package search

import (
	"context"
	"fmt"
	"sync"
)

// Outcome is the settled result of one batched invocation: either a value or
// the error (including recovered panics) that produced it.
type Outcome[R any] struct {
	Value R
	Err   error
}

func (o Outcome[R]) Rejected() bool { return o.Err != nil }

// RunInBatches applies fn to items in contiguous groups of at most batchSize,
// running each group concurrently and waiting for the whole group to settle
// before starting the next. At no point are more than batchSize invocations in
// flight. The returned slice is index-aligned with items regardless of
// completion order, and one failing invocation never aborts its siblings.
func RunInBatches[T, R any](ctx context.Context, items []T, batchSize int, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if batchSize < 1 {
		batchSize = 1
	}

	outcomes := make([]Outcome[R], len(items))
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				defer func() {
					if recovered := recover(); recovered != nil {
						outcomes[index] = Outcome[R]{Err: fmt.Errorf("batch task panic: %v", recovered)}
					}
				}()
				value, err := fn(ctx, items[index])
				outcomes[index] = Outcome[R]{Value: value, Err: err}
			}(i)
		}
		wg.Wait()
	}
	return outcomes
}
