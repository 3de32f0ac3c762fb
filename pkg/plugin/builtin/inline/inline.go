// Package inline replays flows from a JSON lines file.
package inline // import "autovader.dev/cmd/pkg/plugin/builtin/inline"

import (
	"context"
	"log/slog"
	"os"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/plugin/builtin/inline/wire"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/traffic"
)

type Plugin struct {
	wire.Config

	p     *proto.P
	flows []traffic.Flow
}

func (p *Plugin) Name() string {
	return "inline"
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

func (p *Plugin) Step(context.Context, *proto.P) any {
	return nil
}

func (p *Plugin) Init(_ context.Context, _ *proto.Job) error {
	slog.Debug("inline: init",
		"config", p.Config,
	)

	if p.Config.File == "" {
		return errors.New("file is empty")
	}

	file, err := p.p.Evaluate(p.Config.File, nil)
	if err != nil {
		return err
	}

	slog.Debug("inline: opening file",
		"file", string(file),
	)

	f, err := os.Open(string(file))
	if err != nil {
		return err
	}
	defer f.Close()

	if p.flows, err = traffic.Decode(f); err != nil {
		return errors.New("%s: %w", file, err)
	}

	slog.Debug("inline: loaded",
		"file", string(file),
		"flows", len(p.flows),
	)

	return nil
}

// Subscribe replays every flow of the file.
func (p *Plugin) Subscribe(ctx context.Context) <-chan traffic.Flow {
	return traffic.Replay(ctx, p.flows)
}
