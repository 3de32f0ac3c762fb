package command_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autovader.dev/cmd/pkg/command"
	"autovader.dev/cmd/pkg/config"
	"autovader.dev/cmd/pkg/finding"
	"autovader.dev/cmd/pkg/id"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

func newApp(t *testing.T, args ...string) (*command.App, error) {
	t.Helper()

	app := command.New("avd", command.WithHome(t.TempDir()))

	cmd := &cobra.Command{
		Use:               "avd",
		PersistentPreRunE: app.Init,
		RunE:              func(*cobra.Command, []string) error { return nil },
	}

	app.Register(cmd.PersistentFlags())
	app.RegisterSettings(cmd.Flags())

	cmd.SetArgs(args)

	return app, cmd.Execute()
}

func TestInit(t *testing.T) {
	app, err := newApp(t)
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default(app.Home)
	if d := cmp.Diff(want, app.Settings); d != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", d)
	}

	if !id.IsCanary(app.State.Canary) {
		t.Errorf("canary %q", app.State.Canary)
	}
	if _, err := os.Stat(config.StatePath(app.Settings.StateDir)); err != nil {
		t.Errorf("state not saved: %v", err)
	}
}

func TestInitFlags(t *testing.T) {
	app, err := newApp(t,
		"--headless",
		"--remove-csp=false",
		"--delay", "250ms",
		"--payload", "<x>",
		"--include", "shop.example/**,api.shop.example",
	)
	if err != nil {
		t.Fatal(err)
	}

	s := app.Settings

	got := []any{s.Headless, s.RemoveCSP, s.Delay.Std(), s.Payload, s.Scope.Include, s.Devtools}
	want := []any{true, false, 250 * time.Millisecond, "<x>", []string{"shop.example/**", "api.shop.example"}, false}

	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", d)
	}
}

func TestInitFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(file, []byte("payload: abc\nheadless: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := newApp(t, "--config", file, "--headless=false")
	if err != nil {
		t.Fatal(err)
	}

	if app.Settings.Payload != "abc" || app.Settings.Headless {
		t.Errorf("settings: %+v", app.Settings)
	}
}

func TestInitInvalid(t *testing.T) {
	cases := [][]string{
		0: {"--rate", "-1"},
		1: {"--delay", "-1s"},
		2: {"--config", "/dev/null/settings.yaml"},
	}

	for i, args := range cases {
		t.Run("", func(t *testing.T) {
			if _, err := newApp(t, args...); err == nil {
				t.Fatalf("%d: expected error", i)
			}
		})
	}
}

func TestCoordinator(t *testing.T) {
	app, err := newApp(t, "--rate", "2")
	if err != nil {
		t.Fatal(err)
	}

	c, err := app.Coordinator()
	if err != nil {
		t.Fatal(err)
	}

	if c.Canary != app.State.Canary {
		t.Errorf("canary = %q, want %q", c.Canary, app.State.Canary)
	}
	if got := float64(c.Limiter.Limit()); got != 2 {
		t.Errorf("limit = %v", got)
	}
	if c.Reporter.Tally != c.Tally {
		t.Error("reporter and coordinator tally differ")
	}
	if app.RuleEngine().Canary != app.State.Canary {
		t.Error("rule engine canary differs")
	}
}

func TestCoordinatorSeeded(t *testing.T) {
	app, err := newApp(t)
	if err != nil {
		t.Fatal(err)
	}

	sink := app.Issues()
	for _, i := range []finding.Issue{
		{Name: "DOM Invader: sink innerHTML", URL: "https://shop.example/a", Severity: finding.High},
		{Name: "DOM Invader: sink innerHTML", URL: "https://shop.example/b", Severity: finding.High},
		{Name: "DOM Invader: sink innerHTML", URL: "HTTPS://shop.example/a", Severity: finding.High},
	} {
		if err := sink.Report(context.Background(), i); err != nil {
			t.Fatal(err)
		}
	}

	c, err := app.Coordinator()
	if err != nil {
		t.Fatal(err)
	}

	if got := c.Reporter.Dedup.Len(); got != 2 {
		t.Errorf("known issues = %d, want 2", got)
	}
}
