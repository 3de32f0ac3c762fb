package trace // import "autovader.dev/cmd/pkg/trace"

import (
	"context"
	"reflect"
)

type key struct{ string }

func makeKey[T any]() key {
	t := reflect.TypeOf((*T)(nil))
	return key{t.Elem().String()}
}

func with[T any](ctx context.Context, t *T) context.Context {
	return context.WithValue(ctx, makeKey[T](), t)
}

func from[T any](ctx context.Context) *T {
	t, _ := ctx.Value(makeKey[T]()).(*T)
	return t
}

type traceKey struct{ string }

// With tags ctx with a value reported by every Log* trace.
func With(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, traceKey{key}, value)
}

func Get(ctx context.Context, key string) string {
	value, _ := ctx.Value(traceKey{key}).(string)
	return value
}

var tags = []string{"job", "step", "kind", "target", "rule", "pattern"}

func attrs(ctx context.Context) []any {
	var attrs []any

	for _, tag := range tags {
		if v := Get(ctx, tag); v != "" {
			attrs = append(attrs, tag, v)
		}
	}

	return attrs
}
