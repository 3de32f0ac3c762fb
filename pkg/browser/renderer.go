package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/finding"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/trace"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/lmittmann/tint"
)

const (
	DefaultWaitTimeout = 30 * time.Second
	DefaultPoll        = 100 * time.Millisecond
)

// Renderer loads targets in a DOM Invader session and reports what the
// extension finds.
type Renderer struct {
	Driver      Driver
	Launch      LaunchOptions
	Config      invader.Config
	Report      bool
	KeepOpen    bool
	Delay       time.Duration
	Headers     rule.Decision
	WaitTimeout time.Duration
	Poll        time.Duration
	Reporter    *finding.Reporter
	Tally       *check.S
}

func NewRenderer(opts ...func(*Renderer)) *Renderer {
	r := &Renderer{
		Driver:      new(Playwright),
		Config:      invader.NewConfig(invader.DefaultProfile(), invader.Callbacks{}),
		Report:      true,
		WaitTimeout: DefaultWaitTimeout,
		Poll:        DefaultPoll,
		Tally:       new(check.S),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Reporter == nil {
		r.Reporter = finding.NewReporter(finding.WithTally(r.Tally))
	}
	return r
}

func WithDriver(d Driver) func(*Renderer) {
	return func(r *Renderer) {
		r.Driver = d
	}
}

func WithLaunch(o LaunchOptions) func(*Renderer) {
	return func(r *Renderer) {
		r.Launch = o
	}
}

func WithConfig(c invader.Config) func(*Renderer) {
	return func(r *Renderer) {
		r.Config = c
	}
}

func WithReport(report bool) func(*Renderer) {
	return func(r *Renderer) {
		r.Report = report
	}
}

func WithKeepOpen(keep bool) func(*Renderer) {
	return func(r *Renderer) {
		r.KeepOpen = keep
	}
}

func WithHeadless(headless bool) func(*Renderer) {
	return func(r *Renderer) {
		r.Launch.Headless = headless
	}
}

func WithDevtools(devtools bool) func(*Renderer) {
	return func(r *Renderer) {
		r.Launch.Devtools = r.Launch.Devtools || devtools
	}
}

func WithDelay(d time.Duration) func(*Renderer) {
	return func(r *Renderer) {
		r.Delay = d
	}
}

// WithRemoveCSP strips Content-Security-Policy from every response.
func WithRemoveCSP(remove bool) func(*Renderer) {
	return func(r *Renderer) {
		if remove {
			r.Headers = r.Headers.Merge(rule.StripCSP)
		}
	}
}

func WithHeaders(d rule.Decision) func(*Renderer) {
	return func(r *Renderer) {
		r.Headers = r.Headers.Merge(d)
	}
}

func WithWaitTimeout(d time.Duration) func(*Renderer) {
	return func(r *Renderer) {
		r.WaitTimeout = d
	}
}

func WithReporter(rep *finding.Reporter) func(*Renderer) {
	return func(r *Renderer) {
		r.Reporter = rep
	}
}

func WithTally(s *check.S) func(*Renderer) {
	return func(r *Renderer) {
		r.Tally = s
	}
}

type Result struct {
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
}

type target struct {
	url string
	rec *traffic.Record
}

// batch is one open session and the target its binding checks against.
type batch struct {
	s        Session
	mu       sync.Mutex
	current  string
	rejected atomic.Int64
}

func (b *batch) target() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *batch) setTarget(url string) {
	b.mu.Lock()
	b.current = url
	b.mu.Unlock()
}

// RenderURLs loads every url twice and waits for DOM Invader to finish.
func (r *Renderer) RenderURLs(ctx context.Context, urls []string) (Result, error) {
	ts := make([]target, 0, len(urls))
	for _, u := range urls {
		ts = append(ts, target{url: u})
	}
	return r.render(ctx, ts)
}

// RenderRecords replays every request through the session and renders the
// response it gets back.
func (r *Renderer) RenderRecords(ctx context.Context, recs []*traffic.Record) (Result, error) {
	ts := make([]target, 0, len(recs))
	for _, rec := range recs {
		ts = append(ts, target{url: rec.URL, rec: rec})
	}
	return r.render(ctx, ts)
}

func (r *Renderer) render(ctx context.Context, ts []target) (Result, error) {
	var res Result

	b, err := r.open(ctx)
	if err != nil {
		return res, err
	}

	for _, t := range ts {
		if err := ctx.Err(); err != nil {
			res.Rejected = int(b.rejected.Load())
			r.close(ctx, b)
			return res, err
		}

		if !traffic.IsWeb(t.url) {
			res.Skipped++
			r.Tally.Skipped()
			continue
		}

		ctx := trace.With(ctx, "target", t.url)

		b.setTarget(t.url)

		if err := r.visit(ctx, b.s, t); err != nil {
			slog.Error("Failed to load URL",
				"url", t.url,
				tint.Err(err),
			)
			res.Failed++
			r.Tally.Failed()
			continue
		}

		res.Rendered++
		r.Tally.Rendered()
	}

	res.Rejected = int(b.rejected.Load())

	return res, r.close(ctx, b)
}

func (r *Renderer) open(ctx context.Context) (*batch, error) {
	tr := trace.ContextRender(ctx)

	s, err := r.Driver.Launch(ctx, r.Launch)
	tr.Launch(ctx, err)
	if err != nil {
		return nil, errors.New("failed to start browser: %w", err)
	}

	b := &batch{s: s}

	s.OnConsole(func(text string) {
		slog.Debug("browser: console", "text", text)
	})

	if r.Launch.ExtensionPath != "" {
		r.configure(ctx, s)
	}

	err = s.Bind(invader.BindingName, func(frame string, args []any) error {
		err := r.bind(ctx, b, frame, args)
		tr.Bind(ctx, frame, bindingType(args), err)
		return err
	})
	if err != nil {
		return nil, r.abort(b, errors.New("failed to expose %s: %w", invader.BindingName, err))
	}

	if r.Headers.Rewrites() {
		if err := s.RewriteResponses(r.Headers.Rewrite); err != nil {
			return nil, r.abort(b, errors.New("failed to route responses: %w", err))
		}
	}

	if len(r.Headers.Set) != 0 {
		if err := s.SetRequestHeaders(r.Headers.Set); err != nil {
			return nil, r.abort(b, errors.New("failed to set request headers: %w", err))
		}
	}

	return b, nil
}

// configure stores the DOM Invader settings. The session stays usable
// without them so failures are only logged.
func (r *Renderer) configure(ctx context.Context, s Session) {
	id, err := s.ExtensionID(ctx)
	if err != nil {
		slog.Error("Could not detect extension ID, extension features will not be configured",
			tint.Err(err),
		)
		return
	}

	slog.Info("Found extension ID", "id", id)

	script, err := r.Config.SettingsScript()
	if err == nil {
		err = s.Goto(ctx, invader.SettingsPage(id))
	}
	if err == nil {
		_, err = s.Evaluate(ctx, script)
	}
	if err != nil {
		slog.Error("Error configuring extension", tint.Err(err))
		return
	}

	slog.Info("Configured extension settings")
}

func (r *Renderer) bind(ctx context.Context, b *batch, frame string, args []any) error {
	scanned := b.target()

	if !traffic.SameOrigin(frame, scanned) {
		slog.Error("Invalid source when sending to Burp",
			"source", frame,
			"scanned", scanned,
		)
		b.rejected.Add(1)
		r.Tally.Rejected()
		return errors.ErrInvalidOrigin
	}

	if len(args) != 2 {
		return errors.New("%w: got %d", errors.ErrBadBinding, len(args))
	}

	payload, err := json.Marshal(args[0])
	if err != nil {
		return errors.New("%w: %w", errors.ErrBadBinding, err)
	}

	r.Tally.Accepted()

	if !r.Report {
		return nil
	}

	return r.Reporter.Report(ctx, fmt.Sprint(args[1]), payload, scanned)
}

func (r *Renderer) visit(ctx context.Context, s Session, t target) error {
	url := t.url

	if t.rec != nil {
		req := t.rec.Clone()
		req.Header.Del("Content-Length")
		r.Headers.Apply(req)

		resp, err := s.Fetch(ctx, req)
		if err != nil {
			return err
		}

		url = resp.URL
		if err := s.Serve(url, resp); err != nil {
			return errors.New("failed to serve %s: %w", url, err)
		}
	}

	tr := trace.ContextRender(ctx)

	// settings only take effect from the second load
	for range 2 {
		err := s.Goto(ctx, url)
		tr.Navigate(ctx, url, err)
		if err != nil {
			return err
		}
		if err := sleep(ctx, r.Delay); err != nil {
			return err
		}
	}

	slog.Info("Waiting for DOM Invader to complete analysis", "url", t.url)

	err := s.WaitFor(ctx, invader.ReadyExpression, r.Poll, r.WaitTimeout)
	tr.Ready(ctx, t.url, err)
	if err != nil {
		slog.Error("DOM Invader wait failed",
			"url", t.url,
			tint.Err(err),
		)
		return nil
	}

	slog.Info("DOM Invader analysis complete", "url", t.url)

	return nil
}

func (r *Renderer) close(ctx context.Context, b *batch) error {
	if r.KeepOpen {
		slog.Info("Browser left open, close it to finish")
		select {
		case <-b.s.Done():
			return nil
		case <-ctx.Done():
		}
	}
	return b.s.Close()
}

func (r *Renderer) abort(b *batch, err error) error {
	if e := b.s.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

func bindingType(args []any) string {
	if len(args) < 2 {
		return ""
	}
	return fmt.Sprint(args[1])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
