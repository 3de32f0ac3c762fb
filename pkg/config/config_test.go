package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"autovader.dev/cmd/pkg/config"
	"autovader.dev/cmd/pkg/id"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/rule"

	"github.com/google/go-cmp/cmp"
)

func write(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()

	s, err := config.Load(home, config.DefaultPath(home))
	if err != nil {
		t.Fatal(err)
	}

	want := config.Default(home)
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
	if !s.RemoveCSP || s.WaitTimeout.Std() != 30*time.Second {
		t.Errorf("defaults: %+v", s)
	}
}

func TestLoadLayers(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "settings.yaml")

	write(t, path, `
payload: "'\"><img src=x>"
delay: 250
headless: true
remove_csp: false
wait_timeout: 5s
state_dir: ~/state
scope:
  include: ["shop.example/**"]
`)

	t.Setenv("AUTOVADER_HEADLESS", "false")
	t.Setenv("AUTOVADER_DELAY", "1s")
	t.Setenv("AUTOVADER_SCOPE_EXCLUDE", "shop.example/static/**,cdn.example/**")

	s, err := config.Load(home, path)
	if err != nil {
		t.Fatal(err)
	}

	if s.Payload != `'"><img src=x>` {
		t.Errorf("payload: %q", s.Payload)
	}
	if s.Delay.Std() != time.Second {
		t.Errorf("delay: %v", s.Delay.Std())
	}
	if s.Headless {
		t.Error("environment did not override headless")
	}
	if s.RemoveCSP {
		t.Error("file did not override remove_csp")
	}
	if s.WaitTimeout.Std() != 5*time.Second {
		t.Errorf("wait timeout: %v", s.WaitTimeout.Std())
	}
	if want := filepath.Join(home, "state"); s.StateDir != want {
		t.Errorf("state dir: got %q, want %q", s.StateDir, want)
	}

	wantScope := rule.Scope{
		Include: []string{"shop.example/**"},
		Exclude: []string{"shop.example/static/**", "cdn.example/**"},
	}
	if diff := cmp.Diff(wantScope, s.Scope); diff != "" {
		t.Errorf("scope (-want +got):\n%s", diff)
	}

	if got := s.Launch().UserDataDir; got != filepath.Join(home, "state", "browser-profile") {
		t.Errorf("user data dir: %q", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := []string{
		// 0
		`delay: -5`,
		// 1
		`wait_timeout: 0`,
		// 2
		`tags: "div,,b"`,
		// 3
		`unknown: true`,
		// 4
		`scope: {include: ["shop.example/[a"]}`,
		// 5
		`issue_file: ""`,
	}

	for i, data := range cases {
		t.Run("", func(t *testing.T) {
			home := t.TempDir()
			path := filepath.Join(home, "settings.yaml")
			write(t, path, data)

			if _, err := config.Load(home, path); err == nil {
				t.Errorf("%d: expected error", i)
			}
		})
	}
}

func TestState(t *testing.T) {
	dir := t.TempDir()

	st, err := config.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsCanary(st.Canary) {
		t.Fatalf("canary %q", st.Canary)
	}

	again, err := config.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again.Canary != st.Canary {
		t.Errorf("canary not reused: %q != %q", again.Canary, st.Canary)
	}

	if err := again.SetCallbacks(invader.Callbacks{Sink: "function(d){}"}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := config.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}

	cb := reloaded.EffectiveCallbacks()
	if cb.Sink != "function(d){}" || cb.Source != invader.DefaultCallbacks().Source {
		t.Errorf("callbacks: %+v", cb)
	}

	old := reloaded.Canary
	canary, err := reloaded.ResetCanary()
	if err != nil {
		t.Fatal(err)
	}
	if canary == old || !id.IsCanary(canary) {
		t.Errorf("reset canary: %q", canary)
	}

	if err := reloaded.ResetCallbacks(); err != nil {
		t.Fatal(err)
	}
	final, err := config.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(invader.DefaultCallbacks(), final.EffectiveCallbacks()); diff != "" {
		t.Errorf("callbacks (-want +got):\n%s", diff)
	}
	if final.Canary != canary {
		t.Errorf("canary: got %q, want %q", final.Canary, canary)
	}
}

func TestStateInvalidCanary(t *testing.T) {
	dir := t.TempDir()
	write(t, config.StatePath(dir), "canary: \"1<bad>\"\n")

	st, err := config.LoadState(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsCanary(st.Canary) {
		t.Errorf("canary %q kept", st.Canary)
	}
}
