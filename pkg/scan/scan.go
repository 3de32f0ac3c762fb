// Package scan sequences scan batches: it filters and enumerates targets,
// picks the DOM Invader profile and hands the batch to a renderer.
package scan // import "autovader.dev/cmd/pkg/scan"

import (
	"context"
	"log/slog"
	"sync"

	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/config"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/finding"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Targets are the inputs of one batch. URL kinds read URLs and the request
// URLs of Records; the post kind reads Records only.
type Targets struct {
	URLs    []string
	Records []*traffic.Record
}

func (t Targets) urls() []string {
	urls := append([]string(nil), t.URLs...)
	for _, rec := range t.Records {
		urls = append(urls, rec.URL)
	}
	return urls
}

type Job struct {
	Kind    invader.Kind
	Targets Targets
	// Headers are extra request and response header rules for the batch.
	Headers rule.Decision
}

type job struct {
	ctx  context.Context
	job  Job
	errc chan error
}

// NewRendererFunc builds the renderer of one batch.
type NewRendererFunc func(opts ...func(*browser.Renderer)) *browser.Renderer

// Coordinator runs scan batches one at a time on a single worker.
type Coordinator struct {
	Settings    config.Settings
	Canary      string
	Callbacks   invader.Callbacks
	Scope       rule.Scope
	Reporter    *finding.Reporter
	Tally       *check.S
	Limiter     *rate.Limiter
	Metrics     *Metrics
	NewRenderer NewRendererFunc

	jobs      chan job
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func New(opts ...func(*Coordinator)) *Coordinator {
	c := &Coordinator{
		Canary:      invader.DefaultCanary,
		Tally:       new(check.S),
		Limiter:     rate.NewLimiter(rate.Inf, 0),
		NewRenderer: browser.NewRenderer,
		jobs:        make(chan job),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if c.Reporter == nil {
		c.Reporter = finding.NewReporter(finding.WithTally(c.Tally))
	}

	observe := c.Reporter.Observe
	c.Reporter.Observe = func(i finding.Issue, added bool) {
		if observe != nil {
			observe(i, added)
		}
		c.Metrics.observeIssue(i, added)
	}

	return c
}

// WithSettings also adopts the settings scope.
func WithSettings(s config.Settings) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Settings = s
		c.Scope = s.Scope
		if s.Rate > 0 {
			c.Limiter = rate.NewLimiter(rate.Limit(s.Rate), 1)
		}
	}
}

func WithState(st *config.State) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Canary = st.Canary
		c.Callbacks = st.Callbacks
	}
}

func WithCanary(canary string) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Canary = canary
	}
}

func WithScope(s rule.Scope) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Scope = s
	}
}

func WithReporter(r *finding.Reporter) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Reporter = r
	}
}

func WithTally(s *check.S) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Tally = s
	}
}

func WithLimiter(l *rate.Limiter) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Limiter = l
	}
}

func WithMetrics(m *Metrics) func(*Coordinator) {
	return func(c *Coordinator) {
		c.Metrics = m
	}
}

func WithRenderer(fn NewRendererFunc) func(*Coordinator) {
	return func(c *Coordinator) {
		c.NewRenderer = fn
	}
}

// Start runs the worker until ctx is done or Close is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.work(ctx)
	})
}

func (c *Coordinator) work(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case j := <-c.jobs:
			j.errc <- c.execute(j.ctx, j.job)
		}
	}
}

// Close stops the worker after the running batch.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// Submit queues j. The returned channel yields the batch error once the
// batch has run.
func (c *Coordinator) Submit(ctx context.Context, j Job) <-chan error {
	errc := make(chan error, 1)

	select {
	case c.jobs <- job{ctx: ctx, job: j, errc: errc}:
	case <-c.done:
		errc <- errors.New("coordinator is closed")
	case <-ctx.Done():
		errc <- ctx.Err()
	}

	return errc
}

func (c *Coordinator) run(ctx context.Context, j Job) error {
	select {
	case err := <-c.Submit(ctx, j):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open loads url with DOM Invader and devtools and leaves the browser open.
func (c *Coordinator) Open(ctx context.Context, url string) error {
	return c.run(ctx, Job{Kind: invader.Open, Targets: Targets{URLs: []string{url}}})
}

// InterceptRedirect loads url with the redirect breakpoint set and leaves
// the browser open.
func (c *Coordinator) InterceptRedirect(ctx context.Context, url string) error {
	return c.run(ctx, Job{Kind: invader.Redirect, Targets: Targets{URLs: []string{url}}})
}

// QueryParams scans every query parameter of the in-scope urls.
func (c *Coordinator) QueryParams(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.Query, Targets: Targets{URLs: urls}})
}

// PostParams scans every urlencoded body parameter of recs.
func (c *Coordinator) PostParams(ctx context.Context, recs []*traffic.Record) error {
	return c.run(ctx, Job{Kind: invader.Post, Targets: Targets{Records: recs}})
}

func (c *Coordinator) WebMessages(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.WebMessage, Targets: Targets{URLs: urls}})
}

func (c *Coordinator) InjectSources(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.InjectSources, Targets: Targets{URLs: urls}})
}

func (c *Coordinator) InjectSourcesAndClick(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.InjectSourcesClick, Targets: Targets{URLs: urls}})
}

func (c *Coordinator) PrototypePollution(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.PrototypePollution, Targets: Targets{URLs: urls}})
}

func (c *Coordinator) PrototypePollutionGadgets(ctx context.Context, urls []string) error {
	return c.run(ctx, Job{Kind: invader.PrototypePollutionGadgets, Targets: Targets{URLs: urls}})
}

// Scan runs one batch of the given kind.
func (c *Coordinator) Scan(ctx context.Context, kind invader.Kind, t Targets) error {
	return c.run(ctx, Job{Kind: kind, Targets: t})
}

func (c *Coordinator) execute(ctx context.Context, j Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch j.Kind {
	case invader.Open, invader.Redirect:
		return c.interactive(ctx, j)
	case invader.Post:
		return c.scanRecords(ctx, j)
	case invader.Query, invader.WebMessage, invader.InjectSources, invader.InjectSourcesClick,
		invader.PrototypePollution, invader.PrototypePollutionGadgets:
		return c.scanURLs(ctx, j)
	default:
		return errors.New("%w: %q", errors.ErrUnknownKind, j.Kind)
	}
}

func (c *Coordinator) interactive(ctx context.Context, j Job) error {
	urls := j.Targets.urls()
	if len(urls) == 0 {
		slog.Info("No URLs to scan")
		return errors.ErrNoTargets
	}

	r := c.renderer(j,
		browser.WithKeepOpen(true),
		browser.WithReport(false),
		browser.WithHeadless(false),
		browser.WithDevtools(true),
	)

	res, err := r.RenderURLs(ctx, urls[:1])
	c.Metrics.observeResult(res)
	return err
}

func (c *Coordinator) scanURLs(ctx context.Context, j Job) error {
	urls := j.Targets.urls()
	if len(urls) == 0 {
		slog.Info("No URLs to scan")
		return errors.ErrNoTargets
	}

	in, rejected := c.Scope.Filter(urls)
	if rejected {
		slog.Warn("URL is not in scope. Skipping all URLs that are not in scope.")
	}

	if j.Kind == invader.Query {
		in = traffic.EnumerateQueryAll(in, c.Canary, c.Settings.Payload)
		if len(in) == 0 {
			slog.Info("No query parameters found to scan")
		}
	}

	if len(in) == 0 {
		return c.nothing(rejected)
	}

	slog.Info("Scanning URLs",
		"kind", j.Kind,
		"count", len(in),
		"canary", c.Canary,
	)

	res, err := c.renderer(j, c.batch()...).RenderURLs(ctx, in)
	c.Metrics.observeResult(res)
	if err != nil {
		return err
	}

	slog.Info("Completed scanning URLs",
		"kind", j.Kind,
		"rendered", res.Rendered,
		"failed", res.Failed,
	)

	return nil
}

func (c *Coordinator) scanRecords(ctx context.Context, j Job) error {
	if len(j.Targets.Records) == 0 {
		slog.Info("No request responses to scan")
		return errors.ErrNoTargets
	}

	var (
		recs     []*traffic.Record
		rejected bool
	)

	for _, rec := range j.Targets.Records {
		for _, e := range traffic.EnumerateBody(rec, c.Canary, c.Settings.Payload) {
			if c.Scope.InScope(e.URL) {
				recs = append(recs, e)
			} else {
				rejected = true
			}
		}
	}

	if rejected {
		slog.Warn("URL is not in scope. Skipping all URLs that are not in scope.")
	}

	if len(recs) == 0 {
		slog.Info("No requests with POST parameters to scan")
		return c.nothing(rejected)
	}

	slog.Info("Scanning requests",
		"count", len(recs),
		"canary", c.Canary,
	)

	res, err := c.renderer(j, c.batch()...).RenderRecords(ctx, recs)
	c.Metrics.observeResult(res)
	if err != nil {
		return err
	}

	slog.Info("Completed scanning requests",
		"rendered", res.Rendered,
		"failed", res.Failed,
	)

	return nil
}

func (c *Coordinator) nothing(rejected bool) error {
	slog.Info("No URLs to scan after processing")
	if rejected {
		return errors.New("%w: add the URLs you want to scan to the scope", errors.ErrOutOfScope)
	}
	return nil
}

func (c *Coordinator) batch() []func(*browser.Renderer) {
	return []func(*browser.Renderer){
		browser.WithKeepOpen(false),
		browser.WithReport(true),
		browser.WithHeadless(c.Settings.Headless),
	}
}

func (c *Coordinator) renderer(j Job, extra ...func(*browser.Renderer)) *browser.Renderer {
	opts := []func(*browser.Renderer){
		browser.WithLaunch(c.Settings.Launch()),
		browser.WithConfig(invader.NewConfig(invader.ProfileFor(j.Kind, c.Canary), c.Callbacks)),
		browser.WithDelay(c.Settings.Delay.Std()),
		browser.WithRemoveCSP(c.Settings.RemoveCSP),
		browser.WithHeaders(j.Headers),
		browser.WithReporter(c.Reporter),
		browser.WithTally(c.Tally),
	}
	if c.Settings.WaitTimeout > 0 {
		opts = append(opts, browser.WithWaitTimeout(c.Settings.WaitTimeout.Std()))
	}
	return c.NewRenderer(append(opts, extra...)...)
}
