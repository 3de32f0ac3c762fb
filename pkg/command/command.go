package command // import "autovader.dev/cmd/pkg/command"

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"autovader.dev/cmd/pkg/autovader"
	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/config"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/finding"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"
	"autovader.dev/cmd/pkg/trace"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type App struct {
	BuildInfo

	Home     string
	Settings config.Settings
	State    *config.State

	debug    bool
	config   string
	override overrides
}

// overrides are the settings that can also be set with flags.
type overrides struct {
	extension string
	chromium  string
	payload   string
	delay     time.Duration
	rate      float64
	headless  bool
	devtools  bool
	removeCSP bool
	autoRun   bool
	include   []string
	exclude   []string
}

func (app *App) Register(f *pflag.FlagSet) {
	f.BoolVar(&app.debug, "debug", app.debug, "enable debug logging")
	f.StringVar(&app.config, "config", app.config, "settings file (default ~/.AutoVader/settings.yaml)")
}

// RegisterSettings adds flags that take precedence over the settings file
// and the environment.
func (app *App) RegisterSettings(f *pflag.FlagSet) {
	o := &app.override

	f.StringVar(&o.extension, "extension", "", "DOM Invader extension directory")
	f.StringVar(&o.chromium, "chromium", "", "Chromium executable")
	f.StringVar(&o.payload, "payload", "", "payload appended to the canary")
	f.DurationVar(&o.delay, "delay", 0, "delay before each navigation")
	f.Float64Var(&o.rate, "rate", 0, "auto-run batches per second, 0 for no limit")
	f.BoolVar(&o.headless, "headless", false, "run the browser headless")
	f.BoolVar(&o.devtools, "devtools", false, "always open devtools")
	f.BoolVar(&o.removeCSP, "remove-csp", true, "strip Content-Security-Policy response headers")
	f.BoolVar(&o.autoRun, "auto-run", false, "queue scans for captured traffic")
	f.StringSliceVar(&o.include, "include", nil, "in-scope host/path globs")
	f.StringSliceVar(&o.exclude, "exclude", nil, "out-of-scope host/path globs")
}

func New(name string, opts ...func(*App)) *App {
	app := &App{}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// Init installs the logger, then loads the settings and the project state.
func (app *App) Init(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if app.debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			AddSource:  true,
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))

	if app.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("failed to find home directory: %w", err)
		}
		app.Home = home
	}

	path := app.config
	if path == "" {
		path = config.DefaultPath(app.Home)
	}

	s, err := config.Load(app.Home, path)
	if err != nil {
		return err
	}

	app.Settings = app.apply(cmd.Flags(), s)

	if err := app.Settings.Validate(); err != nil {
		return err
	}

	if app.State, err = config.LoadState(app.Settings.StateDir); err != nil {
		return err
	}

	slog.Debug("command: init",
		"config", path,
		"state", app.Settings.StateDir,
		"canary", app.State.Canary,
	)

	return nil
}

func (app *App) apply(f *pflag.FlagSet, s config.Settings) config.Settings {
	o := app.override

	changed := func(name string) bool {
		fl := f.Lookup(name)
		return fl != nil && fl.Changed
	}

	if changed("extension") {
		s.ExtensionPath = o.extension
	}
	if changed("chromium") {
		s.ChromiumPath = o.chromium
	}
	if changed("payload") {
		s.Payload = o.payload
	}
	if changed("delay") {
		s.Delay = config.Duration(o.delay)
	}
	if changed("rate") {
		s.Rate = o.rate
	}
	if changed("headless") {
		s.Headless = o.headless
	}
	if changed("devtools") {
		s.Devtools = o.devtools
	}
	if changed("remove-csp") {
		s.RemoveCSP = o.removeCSP
	}
	if changed("auto-run") {
		s.AutoRun = o.autoRun
	}
	if changed("include") {
		s.Scope.Include = o.include
	}
	if changed("exclude") {
		s.Scope.Exclude = o.exclude
	}

	return s
}

// Trace installs the logging trace hooks when debugging.
func (app *App) Trace(ctx context.Context) context.Context {
	if !app.debug {
		return ctx
	}
	ctx = trace.WithRule(ctx, trace.LogRule())
	ctx = trace.WithRender(ctx, trace.LogRender())
	return ctx
}

// Issues is the file sink of reported issues.
func (app *App) Issues() *finding.FileSink {
	return finding.NewFileSink(app.Settings.IssueFile)
}

// Coordinator returns a scan coordinator for the loaded settings and
// state. Issues already in the issue file are not reported again.
func (app *App) Coordinator() (*scan.Coordinator, error) {
	sink := app.Issues()

	existing, err := sink.Issues()
	if err != nil {
		return nil, err
	}

	tally := new(check.S)

	dedup := finding.NewDeduplicator(
		finding.MultiSink{finding.LogSink{}, sink},
		existing...,
	)

	slog.Debug("command: seeded issues",
		"file", app.Settings.IssueFile,
		"known", dedup.Len(),
	)

	reporter := finding.NewReporter(
		finding.WithDeduplicator(dedup),
		finding.WithTally(tally),
	)

	return scan.New(
		scan.WithSettings(app.Settings),
		scan.WithState(app.State),
		scan.WithTally(tally),
		scan.WithReporter(reporter),
	), nil
}

// Engine returns a plan engine whose templates and batches share the
// project canary.
func (app *App) Engine() (*autovader.Engine, error) {
	c, err := app.Coordinator()
	if err != nil {
		return nil, err
	}

	return autovader.New(
		autovader.WithProtoOptions(
			proto.WithEngine(app.RuleEngine()),
			proto.WithCoordinator(c),
		),
	), nil
}

func (app *App) RuleEngine() *rule.Engine {
	return rule.NewEngine(rule.WithCanary(app.State.Canary))
}

func (app *App) Render(v any) error {
	p, err := yaml.Marshal(v)
	if err != nil {
		return errors.New("rendering failed: %w", err)
	}
	fmt.Printf("%s", p)
	return nil
}
