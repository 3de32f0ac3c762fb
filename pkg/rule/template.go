package rule

import (
	"bytes"
	"context"
	"os"
	"text/template"

	"autovader.dev/cmd/pkg/async"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/id"
	"autovader.dev/cmd/pkg/trace"

	"github.com/Masterminds/sprig"
	"sigs.k8s.io/yaml"
)

type TOption func(*template.Template) *template.Template

// Engine compiles rule patterns and evaluates the templates used in rule
// values, plan files and header actions.
type Engine struct {
	Options []TOption
	Canary  string
	Vars    async.Map[string, any]
}

func NewEngine(opts ...func(*Engine)) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithCanary(canary string) func(*Engine) {
	return func(e *Engine) {
		e.Canary = canary
	}
}

func WithTOptions(opts ...TOption) func(*Engine) {
	return func(e *Engine) {
		e.Options = append(e.Options, opts...)
	}
}

func (e *Engine) Parse(name, data string) (*template.Template, error) {
	tmpl := template.New(name).
		Funcs(sprig.FuncMap()).
		Funcs(e.funcs()).
		Delims("${{", "}}").
		Option("missingkey=error")

	for _, opt := range e.Options {
		tmpl = opt(tmpl)
	}

	return tmpl.Parse(data)
}

func (e *Engine) Evaluate(tmpl string, data any) ([]byte, error) {
	var buf bytes.Buffer

	t, err := e.Parse("", tmpl)
	if err != nil {
		return nil, errors.New("failed to parse template %q: %w", tmpl, err)
	}

	if err := t.Execute(&buf, data); err != nil {
		return nil, errors.New("failed to evaluate template %q: %w", tmpl, err)
	}

	return buf.Bytes(), nil
}

// EvaluateString is Evaluate for callers that want text back.
func (e *Engine) EvaluateString(tmpl string, data any) (string, error) {
	p, err := e.Evaluate(tmpl, data)
	return string(p), err
}

func (e *Engine) funcs() template.FuncMap {
	return map[string]any{
		"xrand":  xrand,
		"setvar": e.set,
		"var":    e.get,
		"env":    os.Getenv,
		"canary": e.canary,
	}
}

// match compiles data into a predicate over a matched value. A template
// that renders to a boolean is the predicate's result; anything else is
// compared with the value.
func (e *Engine) match(data string) func(context.Context, any) (bool, error) {
	tmpl, err := e.Parse("", data)
	if err != nil {
		return func(context.Context, any) (bool, error) { return false, err }
	}
	return func(ctx context.Context, x any) (bool, error) {
		var buf bytes.Buffer

		err := tmpl.Execute(&buf, x)
		trace.ContextRule(ctx).TemplateMatch(ctx, buf.Bytes(), err)
		if err != nil {
			return false, errors.New("failed to evaluate %q: %w", data, err)
		}

		var v any

		if err := yaml.Unmarshal(buf.Bytes(), &v); err != nil {
			return false, errors.New("failed to parse result: %w", err)
		}

		switch v := v.(type) {
		case bool:
			return v, nil
		default:
			return cmpEqual(v, x), nil
		}
	}
}

func (e *Engine) set(name string, value any) any {
	e.Vars.Store(name, value)
	return value
}

func (e *Engine) get(name string) any {
	value, _ := e.Vars.Load(name)
	return value
}

func (e *Engine) canary() string {
	return e.Canary
}

// xrand replaces every run of X in s with as many random letters.
func xrand(s string) string {
	var (
		buf bytes.Buffer
		n   int
	)
	for _, r := range s {
		if r == 'X' {
			n++
			continue
		}
		if n != 0 {
			buf.WriteString(id.Gen(n))
			n = 0
		}
		buf.WriteRune(r)
	}
	if n != 0 {
		buf.WriteString(id.Gen(n))
	}
	return buf.String()
}
