package trace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itchyny/gojq"
	"github.com/lmittmann/tint"
)

var (
	nopRule = RuleTrace{
		ParseKey:       func(context.Context, *gojq.Query, error) {},
		UnmarshalValue: func(context.Context, []byte, any, error) {},
		TemplateMatch:  func(context.Context, []byte, error) {},
		EqualMatch:     func(context.Context, any, any, bool) {},
		Decide:         func(context.Context, string, bool) {},
	}
	nopRender = RenderTrace{
		Launch:   func(context.Context, error) {},
		Navigate: func(context.Context, string, error) {},
		Bind:     func(context.Context, string, string, error) {},
		Ready:    func(context.Context, string, error) {},
	}
)

type RuleTrace struct {
	ParseKey       func(context.Context, *gojq.Query, error)
	UnmarshalValue func(context.Context, []byte, any, error)
	TemplateMatch  func(context.Context, []byte, error)
	EqualMatch     func(context.Context, any, any, bool)
	Decide         func(ctx context.Context, rule string, matched bool)
}

type RenderTrace struct {
	Launch   func(context.Context, error)
	Navigate func(ctx context.Context, url string, err error)
	Bind     func(ctx context.Context, frame, typ string, err error)
	Ready    func(ctx context.Context, url string, err error)
}

func LogRule() RuleTrace {
	return RuleTrace{
		ParseKey: func(ctx context.Context, q *gojq.Query, err error) {
			log(ctx, "trace: ParseKey", err)
		},
		UnmarshalValue: func(ctx context.Context, p []byte, v any, err error) {
			log(ctx, "trace: UnmarshalValue", err,
				"raw", string(p),
				"value", v,
			)
		},
		TemplateMatch: func(ctx context.Context, p []byte, err error) {
			log(ctx, "trace: TemplateMatch", err,
				"raw", string(p),
			)
		},
		EqualMatch: func(ctx context.Context, want, got any, ok bool) {
			tags := append(attrs(ctx),
				slog.Group("want",
					"value", want,
					"type", fmt.Sprintf("%T", want),
				),
				slog.Group("got",
					"value", got,
					"type", fmt.Sprintf("%T", got),
				),
			)
			if !ok {
				slog.Error("trace: EqualMatch", tags...)
			} else {
				slog.Info("trace: EqualMatch", tags...)
			}
		},
		Decide: func(ctx context.Context, rule string, matched bool) {
			slog.Info("trace: Decide", append(attrs(ctx),
				"rule", rule,
				"matched", matched,
			)...)
		},
	}
}

func LogRender() RenderTrace {
	return RenderTrace{
		Launch: func(ctx context.Context, err error) {
			log(ctx, "trace: Launch", err)
		},
		Navigate: func(ctx context.Context, url string, err error) {
			log(ctx, "trace: Navigate", err, "url", url)
		},
		Bind: func(ctx context.Context, frame, typ string, err error) {
			log(ctx, "trace: Bind", err,
				"frame", frame,
				"type", typ,
			)
		},
		Ready: func(ctx context.Context, url string, err error) {
			log(ctx, "trace: Ready", err, "url", url)
		},
	}
}

func log(ctx context.Context, msg string, err error, extra ...any) {
	tags := append(attrs(ctx), extra...)
	if err != nil {
		slog.Error(msg, append(tags, tint.Err(err))...)
		return
	}
	slog.Info(msg, tags...)
}

func WithRule(ctx context.Context, trace RuleTrace) context.Context {
	return with(ctx, &trace)
}

func ContextRule(ctx context.Context) RuleTrace {
	if trace := from[RuleTrace](ctx); trace != nil {
		return *trace
	}
	return nopRule
}

func WithRender(ctx context.Context, trace RenderTrace) context.Context {
	return with(ctx, &trace)
}

func ContextRender(ctx context.Context) RenderTrace {
	if trace := from[RenderTrace](ctx); trace != nil {
		return *trace
	}
	return nopRender
}

// Join chains extra after rt for every hook extra defines.
func (rt RenderTrace) Join(extra RenderTrace) RenderTrace {
	if extra.Launch != nil {
		fn := rt.Launch
		rt.Launch = func(ctx context.Context, err error) {
			fn(ctx, err)
			extra.Launch(ctx, err)
		}
	}
	if extra.Navigate != nil {
		fn := rt.Navigate
		rt.Navigate = func(ctx context.Context, url string, err error) {
			fn(ctx, url, err)
			extra.Navigate(ctx, url, err)
		}
	}
	if extra.Bind != nil {
		fn := rt.Bind
		rt.Bind = func(ctx context.Context, frame, typ string, err error) {
			fn(ctx, frame, typ, err)
			extra.Bind(ctx, frame, typ, err)
		}
	}
	if extra.Ready != nil {
		fn := rt.Ready
		rt.Ready = func(ctx context.Context, url string, err error) {
			fn(ctx, url, err)
			extra.Ready(ctx, url, err)
		}
	}
	return rt
}
