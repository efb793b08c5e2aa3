package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds RunBatch when no limit is given.
const DefaultBatchConcurrency = 4

// BatchItem is the outcome of one input of a batch.
type BatchItem struct {
	Index  int
	Result *Result
	Err    error
}

// RunBatch runs each input through Run with at most concurrency invocations in
// flight. Items are returned in input order. A failing item does not stop the
// others; the returned error is only set for an invalid config or a cancelled
// context.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []map[string]any, cfg Config, concurrency int) ([]BatchItem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	items := make([]BatchItem, len(inputs))
	var group errgroup.Group
	group.SetLimit(concurrency)

	for i, input := range inputs {
		items[i].Index = i
		if ctx.Err() != nil {
			items[i].Err = ctx.Err()
			continue
		}
		group.Go(func() error {
			result, err := p.Run(ctx, input, cfg)
			if err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result = &result
			return nil
		})
	}
	_ = group.Wait()

	return items, ctx.Err()
}
