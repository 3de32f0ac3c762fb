// Package har replays the entries of a HAR export.
package har // import "autovader.dev/cmd/pkg/plugin/builtin/har"

import (
	"context"
	"log/slog"
	"os"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/plugin/builtin/har/wire"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/traffic"
)

type Plugin struct {
	wire.Config

	p       *proto.P
	entries []traffic.Flow
}

func (p *Plugin) Name() string {
	return "har"
}

func New(opts ...func(*Plugin)) *Plugin {
	p := &Plugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Plugin(_ context.Context, q *proto.P) any {
	return &Plugin{p: q}
}

func (*Plugin) Step(context.Context, *proto.P) any {
	return nil
}

func (p *Plugin) Init(_ context.Context, _ *proto.Job) error {
	if p.Config.File == "" {
		return errors.New("file is empty")
	}

	if err := p.Config.Scope.Validate(); err != nil {
		return err
	}

	file, err := p.p.Evaluate(p.Config.File, nil)
	if err != nil {
		return err
	}

	f, err := os.Open(string(file))
	if err != nil {
		return err
	}
	defer f.Close()

	all, err := traffic.ReadHAR(f)
	if err != nil {
		return errors.New("%s: %w", file, err)
	}

	for _, e := range all {
		if p.Config.Scope.InScope(e.Request.URL) {
			p.entries = append(p.entries, e)
		}
	}

	slog.Debug("har: loaded",
		"file", string(file),
		"entries", len(all),
		"kept", len(p.entries),
	)

	return nil
}

// Subscribe replays the kept entries in export order.
func (p *Plugin) Subscribe(ctx context.Context) <-chan traffic.Flow {
	return traffic.Replay(ctx, p.entries)
}
