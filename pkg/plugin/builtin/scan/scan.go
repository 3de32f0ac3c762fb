// Package scan runs DOM Invader batches over the flows of job sources.
package scan // import "autovader.dev/cmd/pkg/plugin/builtin/scan"

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/plugin/builtin/scan/wire"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"
	"autovader.dev/cmd/pkg/trace"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/lmittmann/tint"
)

type Plugin struct{}

func (*Plugin) Name() string {
	return "scan"
}

func New() *Plugin {
	return &Plugin{}
}

// Plugin returns nil: scan only declares steps.
func (*Plugin) Plugin(context.Context, *proto.P) any {
	return nil
}

func (*Plugin) Step(_ context.Context, p *proto.P) any {
	return &Step{p: p}
}

type Step struct {
	wire.Step `json:",inline"`

	p       *proto.P
	kind    invader.Kind
	sources []proto.Subscriber
	match   rule.Pattern
	rules   *rule.Set
}

func (s *Step) Init(ctx context.Context, job *proto.Job) (err error) {
	slog.Debug("scan: init",
		"kind", s.Kind,
		"from", s.From,
		"follow", s.Follow,
	)

	switch {
	case s.Follow && s.Rules == "":
		return errors.New("follow requires rules")
	case !s.Follow && s.Kind == "":
		return errors.New("kind is empty")
	case !s.Follow:
		if s.kind, err = invader.ParseKind(s.Kind); err != nil {
			return err
		}
	}

	if s.sources, err = s.resolve(job); err != nil {
		return err
	}

	if len(s.sources) == 0 && len(s.URLs) == 0 {
		return errors.New("step has neither sources nor urls")
	}

	if len(s.Match) != 0 {
		if s.match, err = s.p.Engine().Compile(trace.With(ctx, "pattern-group", "match"), s.Match); err != nil {
			return err
		}
	}

	if s.Follow {
		file, err := s.p.Evaluate(s.Rules, nil)
		if err != nil {
			return err
		}

		p, err := os.ReadFile(string(file))
		if err != nil {
			return errors.New("failed to read rules: %w", err)
		}

		if s.rules, err = rule.LoadSet(ctx, s.p.Engine(), p); err != nil {
			return errors.New("%s: %w", file, err)
		}
	}

	return nil
}

func (s *Step) resolve(job *proto.Job) ([]proto.Subscriber, error) {
	var subs []proto.Subscriber

	if len(s.From) == 0 {
		for _, p := range job.Plugins {
			if sub, ok := p.With.(proto.Subscriber); ok && (s.Follow || !live(sub)) {
				subs = append(subs, sub)
			}
		}
		return subs, nil
	}

	for _, id := range s.From {
		p, ok := job.Plugin(id)
		if !ok {
			return nil, errors.New("source %q: not found", id)
		}

		sub, ok := p.With.(proto.Subscriber)
		if !ok {
			return nil, errors.New("source %q: plugin %q is not a source", id, p.Uses)
		}

		if !s.Follow && live(sub) {
			return nil, errors.New("source %q: live sources require follow", id)
		}

		subs = append(subs, sub)
	}

	return subs, nil
}

func live(sub proto.Subscriber) bool {
	l, ok := sub.(proto.Live)
	return ok && l.Live()
}

func (s *Step) Run(ctx context.Context, _ *check.S) error {
	if s.Follow {
		err := s.p.Coordinator().Follow(ctx, s.flows(ctx), s.rules)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}

	return s.p.Coordinator().Scan(ctx, s.kind, s.targets(ctx))
}

func (s *Step) Stop() {}

// targets collects the matching flows of every source into one batch.
func (s *Step) targets(ctx context.Context) scan.Targets {
	var flows []traffic.Flow
	for f := range s.flows(ctx) {
		flows = append(flows, f)
	}

	t := scan.Collect(s.kind, s.URLs, flows...)

	slog.Debug("scan: collected",
		"kind", s.kind,
		"flows", len(flows),
		"urls", len(t.URLs),
		"records", len(t.Records),
	)

	return t
}

// flows fans the matching flows of every source into one channel that is
// closed once all sources are.
func (s *Step) flows(ctx context.Context) <-chan traffic.Flow {
	var (
		c  = make(chan traffic.Flow)
		wg sync.WaitGroup
	)

	for _, sub := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for f := range sub.Subscribe(ctx) {
				if !s.accept(ctx, f) {
					continue
				}

				select {
				case c <- f:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(c)
	}()

	return c
}

func (s *Step) accept(ctx context.Context, f traffic.Flow) bool {
	if f.Request == nil || !traffic.IsWeb(f.Request.URL) {
		return false
	}

	if s.match == nil {
		return true
	}

	ok, err := s.match.Match(ctx, f.Object())
	if err != nil {
		slog.Error("Failed to match flow",
			"url", f.Request.URL,
			tint.Err(err),
		)
		return false
	}

	return ok
}
