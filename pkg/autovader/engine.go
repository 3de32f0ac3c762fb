// Package autovader runs scan plans.
package autovader // import "autovader.dev/cmd/pkg/autovader"

import (
	"context"
	"log/slog"
	"os"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/plugin/builtin"
	"autovader.dev/cmd/pkg/proto"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	p *proto.P
}

func New(opts ...func(*Engine)) *Engine {
	ngn := &Engine{
		p: proto.New(
			proto.WithPlugins(builtin.Plugins()...),
		),
	}
	for _, opt := range opts {
		opt(ngn)
	}
	return ngn
}

// Run parses the plan in file and runs all of its steps concurrently. The
// returned tally is that of the scan coordinator.
func (e *Engine) Run(ctx context.Context, file string) (*check.S, error) {
	p, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.New("failed to read file: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := e.p.Parse(ctx, p)
	if err != nil {
		return nil, errors.New("failed to parse file: %w", err)
	}

	c := e.p.Coordinator()
	c.Start(ctx)

	var g errgroup.Group

	for _, job := range w.Jobs {
		for _, step := range job.Steps {
			g.Go(func() error {
				r, ok := step.With.(proto.Runner)
				if !ok {
					return errors.New("step %q does not implement proto.Runner", step.ID)
				}

				defer r.Stop()

				ctx := ctx
				if step.Timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, step.Timeout)
					defer cancel()
				}

				if err := r.Run(ctx, c.Tally); err != nil {
					slog.Error("Step failed",
						"job", job.ID,
						"step", step.ID,
						"desc", step.Desc,
						"at", errors.Caller(err),
						tint.Err(err),
					)

					return errors.New("%s/%s: %w", job.ID, step.ID, err)
				}

				slog.Info("Step done",
					"job", job.ID,
					"step", step.ID,
					"desc", step.Desc,
				)

				return nil
			})
		}
	}

	err = g.Wait()
	c.Close()

	return c.Tally, err
}
