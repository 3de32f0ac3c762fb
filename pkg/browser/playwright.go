package browser

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/lmittmann/tint"
	"github.com/playwright-community/playwright-go"
)

// Playwright launches Chromium through playwright-go.
type Playwright struct {
	// InstallBrowsers lets playwright download its own Chromium when no
	// executable is configured.
	InstallBrowsers bool
}

func (d *Playwright) Launch(ctx context.Context, o LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if o.UserDataDir != "" {
		if err := os.MkdirAll(o.UserDataDir, 0o755); err != nil {
			return nil, errors.New("failed to create browser profile: %w", err)
		}
	}

	pw, err := playwright.Run(&playwright.RunOptions{
		SkipInstallBrowsers: !d.InstallBrowsers || o.ExecutablePath != "",
	})
	if err != nil {
		return nil, errors.New("failed to start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Args:     o.Args(),
		Headless: playwright.Bool(o.Headless),
	}

	if o.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(o.ExecutablePath)
		slog.Info("Using Burp Chromium", "path", o.ExecutablePath)
	} else {
		slog.Warn("Burp Chromium not found, set chromium_path in the settings")
	}

	bc, err := pw.Chromium.LaunchPersistentContext(o.UserDataDir, opts)
	if err != nil {
		pw.Stop()
		return nil, errors.New("failed to launch chromium: %w", err)
	}

	var page playwright.Page
	if pages := bc.Pages(); len(pages) != 0 {
		page = pages[0]
	} else if page, err = bc.NewPage(); err != nil {
		bc.Close()
		pw.Stop()
		return nil, errors.New("failed to open page: %w", err)
	}

	s := &session{
		pw:   pw,
		bc:   bc,
		page: page,
		done: make(chan struct{}),
	}

	bc.OnClose(func(playwright.BrowserContext) {
		s.closeDone()
	})

	return s, nil
}

type session struct {
	pw   *playwright.Playwright
	bc   playwright.BrowserContext
	page playwright.Page

	mu      sync.Mutex
	rewrite func(string, map[string]string)

	doneOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// run calls fn, giving up when ctx is done. fn keeps running in that case;
// playwright calls are bounded by their own timeouts.
func run[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	c := make(chan result, 1)

	go func() {
		v, err := fn()
		c <- result{v, err}
	}()

	select {
	case r := <-c:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *session) Goto(ctx context.Context, url string) error {
	_, err := run(ctx, func() (playwright.Response, error) {
		return s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
		})
	})
	if err != nil {
		return errors.New("failed to load %s: %w", url, err)
	}
	return nil
}

func (s *session) Evaluate(ctx context.Context, expr string) (any, error) {
	return run(ctx, func() (any, error) {
		return s.page.Evaluate(expr)
	})
}

func (s *session) WaitFor(ctx context.Context, expr string, poll, timeout time.Duration) error {
	_, err := run(ctx, func() (playwright.JSHandle, error) {
		return s.page.WaitForFunction(expr, nil, playwright.PageWaitForFunctionOptions{
			Polling: float64(poll.Milliseconds()),
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	return err
}

func (s *session) Bind(name string, fn BindFunc) error {
	return s.bc.ExposeBinding(name, func(source *playwright.BindingSource, args ...interface{}) interface{} {
		var frame string
		if source != nil && source.Frame != nil {
			frame = source.Frame.URL()
		}
		if err := fn(frame, args); err != nil {
			// playwright rejects the page-side promise with a recovered error
			panic(err)
		}
		return nil
	})
}

func (s *session) OnConsole(fn func(string)) {
	s.page.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(msg.Text())
	})
}

func (s *session) RewriteResponses(fn func(string, map[string]string)) error {
	s.mu.Lock()
	s.rewrite = fn
	s.mu.Unlock()

	return s.page.Route("**/*", func(route playwright.Route) {
		url := route.Request().URL()

		resp, err := route.Fetch()
		if err != nil {
			slog.Debug("browser: fetch failed, continuing",
				"url", url,
				tint.Err(err),
			)
			route.Continue()
			return
		}

		header := resp.Headers()
		fn(url, header)

		if err := route.Fulfill(playwright.RouteFulfillOptions{
			Response: resp,
			Headers:  header,
		}); err != nil {
			slog.Debug("browser: fulfill failed",
				"url", url,
				tint.Err(err),
			)
		}
	})
}

func (s *session) SetRequestHeaders(h http.Header) error {
	header := make(map[string]string, len(h))
	for k, v := range h {
		header[k] = strings.Join(v, ", ")
	}
	return s.bc.SetExtraHTTPHeaders(header)
}

func (s *session) Fetch(ctx context.Context, rec *traffic.Record) (*traffic.Record, error) {
	header := make(map[string]string, len(rec.Header))
	for k, v := range rec.Header {
		if strings.EqualFold(k, "Content-Length") {
			continue
		}
		header[k] = strings.Join(v, ", ")
	}

	opts := playwright.APIRequestContextFetchOptions{
		Method:  playwright.String(nonempty(rec.Method, http.MethodGet)),
		Headers: header,
	}
	if len(rec.Body) != 0 {
		opts.Data = string(rec.Body)
	}

	resp, err := run(ctx, func() (playwright.APIResponse, error) {
		return s.bc.Request().Fetch(rec.URL, opts)
	})
	if err != nil {
		return nil, errors.New("failed to fetch %s: %w", rec.URL, err)
	}

	body, err := resp.Body()
	if err != nil {
		return nil, errors.New("failed to read %s: %w", rec.URL, err)
	}

	out := &traffic.Record{
		ID:        rec.ID,
		Direction: traffic.Response,
		Method:    rec.Method,
		URL:       nonempty(resp.URL(), rec.URL),
		Status:    resp.Status(),
		Header:    make(http.Header),
		Body:      body,
		Tool:      "browser",
		Time:      time.Now(),
	}
	for k, v := range resp.Headers() {
		out.Header.Set(k, v)
	}

	return out, nil
}

func (s *session) Serve(url string, rec *traffic.Record) error {
	s.mu.Lock()
	rewrite := s.rewrite
	s.mu.Unlock()

	s.page.Unroute(url)

	return s.page.Route(url, func(route playwright.Route) {
		header := make(map[string]string, len(rec.Header))
		for k := range rec.Header {
			header[strings.ToLower(k)] = rec.Header.Get(k)
		}
		if rewrite != nil {
			rewrite(url, header)
		}

		if err := route.Fulfill(playwright.RouteFulfillOptions{
			Status:  playwright.Int(nonempty(rec.Status, http.StatusOK)),
			Headers: header,
			Body:    rec.Body,
		}); err != nil {
			slog.Debug("browser: serve failed",
				"url", url,
				tint.Err(err),
			)
		}
	})
}

func (s *session) ExtensionID(ctx context.Context) (string, error) {
	return run(ctx, func() (string, error) {
		if _, err := s.page.Goto("chrome://extensions"); err != nil {
			return "", errors.New("could not open chrome://extensions: %w", err)
		}
		if err := s.page.Click("cr-toggle#devMode"); err != nil {
			return "", errors.New("could not enable developer mode: %w", err)
		}
		id, err := s.page.Locator("extensions-item").First().GetAttribute("id")
		if err != nil {
			return "", errors.New("could not read extension id: %w", err)
		}
		if id == "" {
			return "", errors.New("no extension is loaded")
		}
		return id, nil
	})
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		var err error
		if e := s.bc.Close(); e != nil {
			err = errors.Join(err, errors.New("failed to close browser: %w", e))
		}
		if e := s.pw.Stop(); e != nil {
			err = errors.Join(err, errors.New("failed to stop playwright: %w", e))
		}
		s.closeDone()
		s.closeErr = err
	})
	return s.closeErr
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
