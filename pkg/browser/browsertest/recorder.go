// Package browsertest provides a browser driver that records instead of
// rendering.
package browsertest // import "autovader.dev/cmd/pkg/browser/browsertest"

import (
	"context"
	"net/http"
	"sync"
	"time"

	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/traffic"
)

// Recorder launches sessions that only record what they were asked to do.
// Navigations reached through OnGoto may call back into the page binding.
type Recorder struct {
	// OnGoto runs after every navigation of every session.
	OnGoto func(s *Session, url string)

	mu       sync.Mutex
	launches []browser.LaunchOptions
	gotos    []string
	fetched  []string
	scripts  []string
	headers  []http.Header
	sessions []*Session
}

func (r *Recorder) Launch(_ context.Context, o browser.LaunchOptions) (browser.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches = append(r.launches, o)
	s := &Session{r: r, done: make(chan struct{})}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *Recorder) Launches() []browser.LaunchOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]browser.LaunchOptions(nil), r.launches...)
}

// Visited returns every navigated URL in order.
func (r *Recorder) Visited() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.gotos...)
}

// Fetched returns the bodies of every fetched record.
func (r *Recorder) Fetched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fetched...)
}

func (r *Recorder) Scripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scripts...)
}

// Headers returns every header set through SetRequestHeaders.
func (r *Recorder) Headers() []http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]http.Header(nil), r.headers...)
}

func (r *Recorder) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.sessions...)
}

type Session struct {
	r    *Recorder
	bind browser.BindFunc
	done chan struct{}
	once sync.Once
}

// Call invokes the page binding as a frame at frameURL would.
func (s *Session) Call(frameURL string, args ...any) error {
	if s.bind == nil {
		return nil
	}
	return s.bind(frameURL, args)
}

// Quit acts as if the user closed the browser.
func (s *Session) Quit() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) Goto(_ context.Context, url string) error {
	s.r.mu.Lock()
	s.r.gotos = append(s.r.gotos, url)
	fn := s.r.OnGoto
	s.r.mu.Unlock()
	if fn != nil {
		fn(s, url)
	}
	return nil
}

func (s *Session) Evaluate(_ context.Context, expr string) (any, error) {
	s.r.mu.Lock()
	s.r.scripts = append(s.r.scripts, expr)
	s.r.mu.Unlock()
	return nil, nil
}

func (s *Session) WaitFor(context.Context, string, time.Duration, time.Duration) error { return nil }

func (s *Session) Bind(_ string, fn browser.BindFunc) error {
	s.bind = fn
	return nil
}

func (s *Session) OnConsole(func(string)) {}

func (s *Session) RewriteResponses(func(string, map[string]string)) error { return nil }

func (s *Session) SetRequestHeaders(h http.Header) error {
	s.r.mu.Lock()
	s.r.headers = append(s.r.headers, h.Clone())
	s.r.mu.Unlock()
	return nil
}

func (s *Session) Fetch(_ context.Context, rec *traffic.Record) (*traffic.Record, error) {
	s.r.mu.Lock()
	s.r.fetched = append(s.r.fetched, string(rec.Body))
	s.r.mu.Unlock()
	return &traffic.Record{URL: rec.URL, Status: http.StatusOK}, nil
}

func (s *Session) Serve(string, *traffic.Record) error { return nil }

func (s *Session) ExtensionID(context.Context) (string, error) { return "ext", nil }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Close() error { return nil }
