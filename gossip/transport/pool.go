package transport

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner executes one simulated node's round-step. gossip.Engine.Step
// satisfies Runner.
type Runner interface {
	Step(now time.Time)
}

// Pool cooperatively services a large population of runners with a small
// fixed set of workers. Runners are partitioned statically across workers
// by stride, so at most one step executes per runner at any instant while
// distinct runners execute fully concurrently across workers.
//
// Each tick a worker steps its assigned runners one after another; a
// round-step is bounded work, so no runner holds a worker indefinitely.
type Pool struct {
	workers  int
	interval time.Duration
	runners  []Runner
}

func NewPool(workers int, interval time.Duration, runners []Runner) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workers must be positive: %d", workers)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("missing interval")
	}
	if len(runners) == 0 {
		return nil, fmt.Errorf("no runners")
	}
	return &Pool{
		workers:  workers,
		interval: interval,
		runners:  runners,
	}, nil
}

// Run services the runners until ctx is cancelled. In-flight round-steps
// complete before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.workers; w++ {
		w := w
		g.Go(func() error {
			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				now := time.Now()
				for i := w; i < len(p.runners); i += p.workers {
					p.runners[i].Step(now)
				}
			}
		})
	}
	return g.Wait()
}
