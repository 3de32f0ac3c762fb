package rule

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/proto/wire"
	"autovader.dev/cmd/pkg/trace"
	"autovader.dev/cmd/pkg/traffic"

	"sigs.k8s.io/yaml"
)

type ActionType string

const (
	Scan                 ActionType = "scan"
	Drop                 ActionType = "drop"
	StripResponseHeaders ActionType = "strip-response-headers"
	SetRequestHeaders    ActionType = "set-request-headers"
)

type Action struct {
	Type  ActionType
	Kinds []invader.Kind
	// Strip names response headers; Set maps request headers to templates.
	Strip []string
	Set   map[string]string
}

type Rule struct {
	Name   string
	Match  Pattern
	Action Action
}

// Matches reports whether the rule applies to obj. A rule without a match
// applies to everything.
func (r *Rule) Matches(ctx context.Context, obj any) (bool, error) {
	if len(r.Match) == 0 {
		return true, nil
	}
	return r.Match.Match(ctx, obj)
}

// Set is an ordered list of rules.
type Set struct {
	Rules []Rule

	e *Engine
}

// Decision is the accumulated outcome of evaluating a Set.
type Decision struct {
	Drop    bool
	Kinds   []invader.Kind
	Strip   []string
	Set     http.Header
	Matched []string
}

// StripCSP removes Content-Security-Policy from every rendered response.
var StripCSP = Decision{Strip: []string{"content-security-policy"}}

type wireSet struct {
	Rules []wireRule `json:"rules"`
}

type wireRule struct {
	Name   string      `json:"name"`
	Match  wire.Object `json:"match,omitempty"`
	Action struct {
		Type    ActionType      `json:"type"`
		Kinds   []invader.Kind  `json:"kinds,omitempty"`
		Headers json.RawMessage `json:"headers,omitempty"`
	} `json:"action"`
}

// LoadSet parses a rules file.
func LoadSet(ctx context.Context, e *Engine, p []byte) (*Set, error) {
	var ws wireSet

	if err := yaml.Unmarshal(p, &ws, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.New("failed to parse rules: %w", err)
	}

	s := &Set{
		Rules: make([]Rule, 0, len(ws.Rules)),
		e:     e,
	}

	uniq := make(map[string]struct{})

	for i, wr := range ws.Rules {
		name := nonempty(wr.Name, "#rule-"+strconv.Itoa(i))

		if _, ok := uniq[name]; ok {
			return nil, errors.New("%s: duplicate rule name", name)
		}
		uniq[name] = struct{}{}

		ctx := trace.With(ctx, "rule", name)

		pt, err := e.Compile(ctx, wr.Match)
		if err != nil {
			return nil, errors.New("%s: %w", name, err)
		}

		a := Action{Type: wr.Action.Type}

		switch a.Type {
		case Scan:
			if len(wr.Action.Kinds) == 0 {
				return nil, errors.New("%s: scan action needs kinds", name)
			}
			for _, k := range wr.Action.Kinds {
				if k.Interactive() {
					return nil, errors.New("%s: kind %q cannot be scanned automatically", name, k)
				}
			}
			a.Kinds = wr.Action.Kinds
		case Drop:
		case StripResponseHeaders:
			if err := json.Unmarshal(wr.Action.Headers, &a.Strip); err != nil || len(a.Strip) == 0 {
				return nil, errors.New("%s: strip-response-headers needs a list of headers", name)
			}
		case SetRequestHeaders:
			if err := json.Unmarshal(wr.Action.Headers, &a.Set); err != nil || len(a.Set) == 0 {
				return nil, errors.New("%s: set-request-headers needs a map of headers", name)
			}
		default:
			return nil, errors.New("%s: unknown action %q", name, a.Type)
		}

		slog.Debug("rule: loaded",
			"rule", name,
			"action", a.Type,
		)

		s.Rules = append(s.Rules, Rule{Name: name, Match: pt, Action: a})
	}

	return s, nil
}

// Evaluate runs the rules in order against f. A matching drop rule ends
// evaluation and discards any kinds decided so far.
func (s *Set) Evaluate(ctx context.Context, f traffic.Flow) (Decision, error) {
	var (
		d   Decision
		obj = f.Object()
		tr  = trace.ContextRule(ctx)
	)

	if s == nil {
		return d, nil
	}

	for i := range s.Rules {
		r := &s.Rules[i]
		ctx := trace.With(ctx, "rule", r.Name)

		ok, err := r.Matches(ctx, obj)
		tr.Decide(ctx, r.Name, ok)
		if err != nil {
			return Decision{}, errors.New("rule %s: %w", r.Name, err)
		}
		if !ok {
			continue
		}

		d.Matched = append(d.Matched, r.Name)

		switch r.Action.Type {
		case Drop:
			d.Drop = true
			d.Kinds = nil
			return d, nil
		case Scan:
			for _, k := range r.Action.Kinds {
				if !slices.Contains(d.Kinds, k) {
					d.Kinds = append(d.Kinds, k)
				}
			}
		case StripResponseHeaders:
			d.Strip = appendFold(d.Strip, r.Action.Strip...)
		case SetRequestHeaders:
			if d.Set == nil {
				d.Set = make(http.Header)
			}
			for k, tmpl := range r.Action.Set {
				v, err := s.e.EvaluateString(tmpl, obj)
				if err != nil {
					return Decision{}, errors.New("rule %s: header %s: %w", r.Name, k, err)
				}
				d.Set.Set(k, v)
			}
		}
	}

	return d, nil
}

// Merge combines d with other. Kinds and stripped headers are de-duplicated;
// header values set by other win.
func (d Decision) Merge(other Decision) Decision {
	d.Drop = d.Drop || other.Drop
	d.Kinds = slices.Clone(d.Kinds)
	for _, k := range other.Kinds {
		if !slices.Contains(d.Kinds, k) {
			d.Kinds = append(d.Kinds, k)
		}
	}
	d.Strip = appendFold(slices.Clone(d.Strip), other.Strip...)
	if len(other.Set) != 0 {
		set := d.Set.Clone()
		if set == nil {
			set = make(http.Header)
		}
		for k, v := range other.Set {
			set[k] = slices.Clone(v)
		}
		d.Set = set
	}
	d.Matched = append(slices.Clone(d.Matched), other.Matched...)
	return d
}

// Apply sets the decided request headers on rec.
func (d Decision) Apply(rec *traffic.Record) {
	if len(d.Set) == 0 {
		return
	}
	if rec.Header == nil {
		rec.Header = make(http.Header)
	}
	for k, v := range d.Set {
		rec.Header[k] = slices.Clone(v)
	}
}

// Rewrite removes the stripped headers from a response header map.
func (d Decision) Rewrite(_ string, header map[string]string) {
	for k := range header {
		for _, name := range d.Strip {
			if strings.EqualFold(k, name) {
				delete(header, k)
			}
		}
	}
}

// Rewrites reports whether rendered responses need rewriting at all.
func (d Decision) Rewrites() bool {
	return len(d.Strip) != 0
}

func appendFold(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.ContainsFunc(dst, func(s string) bool { return strings.EqualFold(s, n) }) {
			dst = append(dst, n)
		}
	}
	return dst
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
