// Package rule evaluates match/modify rules against captured traffic.
package rule // import "autovader.dev/cmd/pkg/rule"

import (
	"context"
	"fmt"
	"log/slog"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/proto/wire"
	"autovader.dev/cmd/pkg/trace"

	"github.com/google/go-cmp/cmp"
	"github.com/itchyny/gojq"
	"sigs.k8s.io/yaml"
)

// Pattern maps jq queries to predicates over the value each query yields.
type Pattern map[*gojq.Query]func(context.Context, any) (bool, error)

// Match reports whether every predicate holds for obj. An empty pattern
// matches nothing.
func (p Pattern) Match(ctx context.Context, obj any) (bool, error) {
	for q, fn := range p {
		it := q.RunWithContext(ctx, obj)

		slog.Debug("rule: pattern",
			"query", q.String(),
		)

		// first result only
		v, ok := it.Next()
		if !ok {
			return false, nil
		}
		if err, ok := v.(error); ok {
			return false, errors.New("failed to run jq %q: %w", q.String(), err)
		}

		ok, err := fn(ctx, v)
		if err != nil {
			return false, errors.New("failed to match jq %q: %w", q.String(), err)
		}
		if !ok {
			return false, nil
		}
	}

	return len(p) != 0, nil
}

// Compile builds a Pattern from raw query/value pairs. Every bad key is
// reported, not only the first.
func (e *Engine) Compile(ctx context.Context, obj wire.Object) (Pattern, error) {
	var (
		pt  = make(Pattern)
		tr  = trace.ContextRule(ctx)
		err error
	)

	for k, raw := range obj {
		ctx := trace.With(ctx, "pattern", k)

		q, e2 := gojq.Parse(k)
		tr.ParseKey(ctx, q, e2)
		if e2 != nil {
			err = errors.Join(
				err,
				errors.New("failed to parse jq %q: %w", k, e2),
			)
			continue
		}

		var want any

		e2 = yaml.Unmarshal(raw, &want)
		tr.UnmarshalValue(ctx, raw, want, e2)
		if e2 != nil {
			err = errors.Join(
				err,
				errors.New("failed to parse value for jq %q: %w", k, e2),
			)
			continue
		}

		slog.Debug("rule: compile",
			"key", k,
			"pattern", want,
		)

		switch want := want.(type) {
		case bool:
			pt[q] = func(_ context.Context, got any) (bool, error) { return want || got == nil, nil }
		case string:
			pt[q] = e.match(want)
		default:
			pt[q] = func(ctx context.Context, got any) (bool, error) {
				ok := cmpEqual(want, got)
				tr.EqualMatch(ctx, want, got, ok)
				return ok, nil
			}
		}
	}

	return pt, err
}

func cmpEqual(want, got any) bool {
	if fmt.Sprint(want) == fmt.Sprint(got) {
		return true
	}
	return cmp.Equal(want, got)
}
