package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revred/odte/internal/marketdata"
)

// maxPrefetch bounds concurrent snapshot requests during warmup.
const maxPrefetch = 4

// RunCycles evaluates a sequence of weekly cycles in order. The shared
// ladder couples consecutive periods (a breach steps the next cycle's cap
// down), so cycle evaluation is serial; only the provider warmup fans out.
func (e *Engine) RunCycles(ctx context.Context, mondays []time.Time) ([]*CycleResult, error) {
	if err := e.prefetch(ctx, mondays); err != nil {
		return nil, err
	}

	results := make([]*CycleResult, 0, len(mondays))
	for _, monday := range mondays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.RunCycle(ctx, CycleOptions{Monday: monday})
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// prefetch warms the provider for every checkpoint timestamp concurrently.
// Unavailable data is not an error here; the checkpoint itself decides how
// to handle a missing snapshot.
func (e *Engine) prefetch(ctx context.Context, mondays []time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPrefetch)

	for _, monday := range mondays {
		checkpoints := []time.Time{
			e.checkpointAt(monday, 0, e.cfg.Strategy.EntryTime),
			e.checkpointAt(monday, 2, e.cfg.Strategy.ManagementTime),
			e.checkpointAt(monday, 4, e.cfg.Strategy.ForcedExitTime),
		}
		for _, ts := range checkpoints {
			g.Go(func() error {
				_, err := e.provider.GetSnapshot(ctx, e.cfg.Strategy.Symbol, ts)
				if errors.Is(err, marketdata.ErrDataUnavailable) {
					return nil
				}
				return err
			})
		}
	}
	return g.Wait()
}
