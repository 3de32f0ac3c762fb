// Package browser drives a Chromium session with DOM Invader loaded.
package browser // import "autovader.dev/cmd/pkg/browser"

import (
	"context"
	"net/http"
	"time"

	"autovader.dev/cmd/pkg/traffic"
)

type LaunchOptions struct {
	ExtensionPath  string
	ExecutablePath string
	UserDataDir    string
	Headless       bool
	Devtools       bool
}

// Args returns the Chromium command line flags for o.
func (o LaunchOptions) Args() []string {
	if o.ExtensionPath == "" {
		return nil
	}
	args := []string{
		"--disable-extensions-except=" + o.ExtensionPath,
		"--load-extension=" + o.ExtensionPath,
	}
	if o.Devtools {
		args = append(args, "--auto-open-devtools-for-tabs")
	}
	return args
}

// BindFunc handles a call to an exposed page function. frameURL is the URL
// of the calling frame.
type BindFunc func(frameURL string, args []any) error

type Driver interface {
	Launch(context.Context, LaunchOptions) (Session, error)
}

// Session is one browser context with a single page.
type Session interface {
	// Goto navigates and waits for the network to go idle.
	Goto(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string) (any, error)
	WaitFor(ctx context.Context, expr string, poll, timeout time.Duration) error
	Bind(name string, fn BindFunc) error
	OnConsole(fn func(text string))
	// RewriteResponses routes every response through fn before the page
	// sees it.
	RewriteResponses(fn func(url string, header map[string]string)) error
	// SetRequestHeaders adds header to every later request of the session,
	// navigations and subresources alike.
	SetRequestHeaders(header http.Header) error
	// Fetch sends rec with the session's cookies.
	Fetch(ctx context.Context, rec *traffic.Record) (*traffic.Record, error)
	// Serve answers future navigations to url with rec.
	Serve(url string, rec *traffic.Record) error
	ExtensionID(ctx context.Context) (string, error)
	// Done is closed when the user closes the browser.
	Done() <-chan struct{}
	Close() error
}
