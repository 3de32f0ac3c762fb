// Package proto wires scan plans: it resolves every plugin and step of a
// plan against the registered plugins.
package proto // import "autovader.dev/cmd/pkg/proto"

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/proto/wire"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"
	"autovader.dev/cmd/pkg/trace"

	"sigs.k8s.io/yaml"
)

type Plan struct {
	Jobs []Job
}

type Job struct {
	ID      string
	Plugins []Plugin
	Steps   []Step
}

// Plugin returns the plugin of j with the given id.
func (j *Job) Plugin(id string) (*Plugin, bool) {
	for i := range j.Plugins {
		if j.Plugins[i].ID == id {
			return &j.Plugins[i], true
		}
	}
	return nil, false
}

type Step struct {
	Uses    string
	ID      string
	Desc    string
	With    any
	Timeout time.Duration
}

type Plugin struct {
	Uses string
	ID   string
	With any
}

type P struct {
	e *rule.Engine
	c *scan.Coordinator
	m map[string]Interface
}

func New(opts ...func(*P)) *P {
	p := &P{
		e: rule.NewEngine(),
		m: make(map[string]Interface),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.c == nil {
		p.c = scan.New()
	}
	return p
}

// With returns a copy of p with opts applied.
func (p *P) With(opts ...func(*P)) *P {
	q := &P{
		e: p.e,
		c: p.c,
		m: make(map[string]Interface, len(p.m)),
	}
	for k, v := range p.m {
		q.m[k] = v
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (p *P) Engine() *rule.Engine { return p.e }

func (p *P) Coordinator() *scan.Coordinator { return p.c }

// Evaluate renders a plan template such as a file name.
func (p *P) Evaluate(tmpl string, data any) ([]byte, error) {
	return p.e.Evaluate(tmpl, data)
}

func (p *P) Parse(ctx context.Context, q []byte) (*Plan, error) {
	raw, err := wire.XParse(q)
	if err != nil {
		return nil, errors.New("error parsing plan: %w", err)
	}

	var w Plan

	w.Jobs = make([]Job, len(raw.Jobs))

	uniq := make(map[string]struct{})

	for i, job := range raw.Jobs {
		j := &w.Jobs[i]

		if strings.HasPrefix(job.ID, "#") {
			return nil, errors.New("#job-%d: error reading job: id cannot start with #", i)
		}

		slog.Debug("wiring jobs",
			"index", i,
			"job", job.ID,
		)

		j.ID = nonempty(job.ID, "#job-"+strconv.Itoa(i))
		j.Plugins = make([]Plugin, len(job.Plugins))

		if _, ok := uniq[j.ID]; ok {
			return nil, errors.New("#job-%d: error reading job: duplicate id %q", i, j.ID)
		}

		uniq[j.ID] = struct{}{}

		ctx := trace.With(ctx, "job", j.ID)

		plugins := make(map[string]struct{})

		for k, plugin := range job.Plugins {
			iface, ok := p.m[plugin.Uses]
			if !ok {
				return nil, errors.New("error reading plugin %q config: not found", plugin.Uses)
			}

			if strings.HasPrefix(plugin.ID, "#") {
				return nil, errors.New("error reading plugin %q config: id cannot start with #", plugin.Uses)
			}

			slog.Debug("wiring plugins",
				"index", k,
				"plugin", plugin.Uses,
				"with", string(plugin.With),
			)

			q := &j.Plugins[k]
			q.ID = nonempty(plugin.ID, plugin.Uses)
			q.Uses = plugin.Uses
			q.With = iface.Plugin(ctx, p)

			if _, ok := plugins[q.ID]; ok {
				return nil, errors.New("error reading plugin %q config: duplicate id %q", plugin.Uses, q.ID)
			}

			plugins[q.ID] = struct{}{}

			if q.With == nil {
				return nil, errors.New("error reading plugin %q config: not a source", plugin.Uses)
			}

			if err := json.Unmarshal(plugin.With, q.With); err != nil {
				return nil, errors.New("error reading plugin %q config: %w", plugin.Uses, err)
			}
		}

		j.Steps = make([]Step, len(job.Steps))

		uniq := make(map[string]struct{})

		for k, step := range job.Steps {
			iface, ok := p.m[step.Uses]
			if !ok {
				return nil, errors.New("#step-%d: error reading plugin %q step: not found", k, step.Uses)
			}

			if strings.HasPrefix(step.ID, "#") {
				return nil, errors.New("#step-%d: error reading plugin %q step: id cannot start with #", k, step.Uses)
			}

			s := &j.Steps[k]

			s.Uses = step.Uses
			s.ID = nonempty(step.ID, "#step-"+strconv.Itoa(k))
			s.Desc = step.Desc
			s.Timeout = step.GetTimeout()
			s.With = iface.Step(trace.With(ctx, "step", s.ID), p)

			if s.With == nil {
				return nil, errors.New("%s: error reading plugin %q step: plugin has no steps", s.ID, step.Uses)
			}

			if _, ok := uniq[s.ID]; ok {
				return nil, errors.New("error reading plugin %q step: duplicate id %q", step.Uses, s.ID)
			}

			uniq[s.ID] = struct{}{}

			if err := yaml.Unmarshal(step.With, s.With, yaml.DisallowUnknownFields); err != nil {
				return nil, errors.New("%s: error reading plugin %q step: %w", s.ID, step.Uses, err)
			}

			slog.Debug("wiring steps",
				"id", s.ID,
				"step", step.Uses,
				"with", string(step.With),
			)
		}

		for k := range j.Plugins {
			p := &j.Plugins[k]

			slog.Debug("initializing plugins",
				"index", k,
				"plugin", p.Uses,
			)

			init, ok := p.With.(Initializer)
			if !ok {
				return nil, errors.New("error initializing plugin %q: does not implement proto.Initializer", p.Uses)
			}

			if err := init.Init(ctx, j); err != nil {
				return nil, errors.New("error initializing plugin %q: %w", p.Uses, err)
			}
		}

		for k := range j.Steps {
			s := &j.Steps[k]

			init, ok := s.With.(Initializer)
			if !ok {
				continue
			}

			if err := init.Init(trace.With(ctx, "step", s.ID), j); err != nil {
				return nil, errors.New("%s: error initializing plugin %q step: %w", s.ID, s.Uses, err)
			}
		}
	}

	return &w, nil
}

func nonempty[T comparable](t ...T) T {
	var zero T
	for _, v := range t {
		if v != zero {
			return v
		}
	}
	return zero
}
