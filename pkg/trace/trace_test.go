package trace_test

import (
	"context"
	"testing"

	"autovader.dev/cmd/pkg/trace"

	"github.com/google/go-cmp/cmp"
)

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()

	// nop traces must be callable without installing anything
	trace.ContextRule(ctx).Decide(ctx, "rule", true)
	trace.ContextRender(ctx).Navigate(ctx, "https://example.com", nil)
}

func TestRenderJoin(t *testing.T) {
	var got []string

	rt := trace.ContextRender(context.Background()).Join(trace.RenderTrace{
		Navigate: func(_ context.Context, url string, _ error) {
			got = append(got, "navigate "+url)
		},
		Ready: func(_ context.Context, url string, _ error) {
			got = append(got, "ready "+url)
		},
	})

	ctx := trace.WithRender(context.Background(), rt)
	ctx = trace.With(ctx, "kind", "query")

	tr := trace.ContextRender(ctx)
	tr.Navigate(ctx, "a", nil)
	tr.Bind(ctx, "a", "sink", nil)
	tr.Ready(ctx, "a", nil)

	if diff := cmp.Diff([]string{"navigate a", "ready a"}, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}

	if v := trace.Get(ctx, "kind"); v != "query" {
		t.Errorf("tag: got %q", v)
	}
}
