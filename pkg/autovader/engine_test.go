package autovader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"autovader.dev/cmd/pkg/autovader"
	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/browser/browsertest"
	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/config"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"

	"github.com/google/go-cmp/cmp"
)

const canary = "zq12345678"

func newEngine(t *testing.T, rec *browsertest.Recorder) *autovader.Engine {
	t.Helper()

	settings := config.Default(t.TempDir())
	settings.ExtensionPath = "/ext"
	settings.Payload = `'"`
	settings.Scope = rule.Scope{Include: []string{"shop.example/**"}}
	settings.Rate = 0

	c := scan.New(
		scan.WithSettings(settings),
		scan.WithCanary(canary),
		scan.WithRenderer(func(opts ...func(*browser.Renderer)) *browser.Renderer {
			return browser.NewRenderer(append(opts, browser.WithDriver(rec))...)
		}),
	)

	return autovader.New(
		autovader.WithProtoOptions(proto.WithCoordinator(c)),
	)
}

func TestRun(t *testing.T) {
	rec := new(browsertest.Recorder)

	s, err := newEngine(t, rec).Run(context.Background(), "../testdata/ok.yaml")
	if err != nil {
		t.Fatal(err)
	}

	// one query target, two form bodies, one auto-run target
	want := check.Summary{Rendered: 4}
	if d := cmp.Diff(want, s.Results()); d != "" {
		t.Fatalf("Run() mismatch (-want +got):\n%s", d)
	}

	if got := len(rec.Launches()); got != 3 {
		t.Errorf("launched %d browsers, want 3", got)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("jobs:\n- nope: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	outside := filepath.Join(dir, "outside.yaml")
	if err := os.WriteFile(outside, []byte(`
jobs:
- steps:
  - uses: scan
    with: {kind: query, urls: ["https://elsewhere.example/?q=1"]}
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []string{
		0: filepath.Join(dir, "missing.yaml"),
		1: bad,
		2: outside,
	}

	for i, file := range cases {
		t.Run("", func(t *testing.T) {
			_, err := newEngine(t, new(browsertest.Recorder)).Run(context.Background(), file)
			if err == nil {
				t.Fatalf("%d: expected error", i)
			}
		})
	}
}
