package scan

import (
	"context"
	"log/slog"
	"sync"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/trace"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/lmittmann/tint"
)

// Follow evaluates rules against every flow and queues a batch for each
// kind they decide on. It returns when flows is closed or ctx is done, after
// every queued batch has finished.
func (c *Coordinator) Follow(ctx context.Context, flows <-chan traffic.Flow, rules *rule.Set) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-flows:
			if !ok {
				return nil
			}

			c.Metrics.observeFlow()

			for _, j := range c.decide(ctx, f, rules) {
				if err := c.Limiter.Wait(ctx); err != nil {
					return err
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					err := <-c.Submit(ctx, j)
					switch {
					case err == nil, errors.Is(err, errors.ErrNoTargets), errors.Is(err, context.Canceled):
					default:
						slog.Error("Auto-run scan failed",
							"kind", j.Kind,
							tint.Err(err),
						)
					}
				}()
			}
		}
	}
}

// decide returns the batches the rules ask for on f.
func (c *Coordinator) decide(ctx context.Context, f traffic.Flow, rules *rule.Set) []Job {
	if f.Request == nil || !traffic.IsWeb(f.Request.URL) {
		return nil
	}

	ctx = trace.With(ctx, "target", f.Request.URL)

	d, err := rules.Evaluate(ctx, f)
	if err != nil {
		slog.Error("Failed to evaluate rules",
			"url", f.Request.URL,
			tint.Err(err),
		)
		return nil
	}

	if d.Drop || len(d.Kinds) == 0 {
		slog.Debug("scan: skip flow",
			"url", f.Request.URL,
			"matched", d.Matched,
		)
		return nil
	}

	if !c.Scope.InScope(f.Request.URL) {
		slog.Debug("scan: flow out of scope", "url", f.Request.URL)
		return nil
	}

	headers := rule.Decision{Strip: d.Strip, Set: d.Set}

	jobs := make([]Job, 0, len(d.Kinds))
	for _, k := range d.Kinds {
		j := Job{Kind: k, Targets: Collect(k, nil, f), Headers: headers}
		if j.Targets.Empty(k) {
			continue
		}

		slog.Info("Auto-run queued",
			"kind", k,
			"url", f.Request.URL,
			"rules", d.Matched,
		)

		jobs = append(jobs, j)
	}

	return jobs
}
