package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"autovader.dev/cmd/pkg/command"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	var (
		app = command.New("avd",
			command.WithBuildInfo(version, commit, date),
		)
		cmd = newCommand(ctx, app)
	)

	app.Register(cmd.PersistentFlags())

	if err := cmd.Execute(); err != nil {
		die(err)
	}
}

func die(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func newCommand(ctx context.Context, app *command.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "avd",
		Short:             "DOM Invader scans driven from captured traffic",
		Args:              cobra.NoArgs,
		PersistentPreRunE: app.Init,
		Version:           version,
		SilenceUsage:      true,
	}

	cmd.AddCommand(
		newRunCommand(ctx, app),
		newOpenCommand(ctx, app),
		newRedirectCommand(ctx, app),
		newScanCommand(ctx, app),
		newProxyCommand(ctx, app),
		newCanaryCommand(app),
		newIssuesCommand(app),
		newCallbacksCommand(app),
		newChromiumCommand(app),
	)

	return cmd
}

func newRunCommand(ctx context.Context, app *command.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a scan plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			e, err := app.Engine()
			if err != nil {
				return err
			}

			s, err := e.Run(app.Trace(ctx), files[0])
			if s != nil {
				app.Render(s.Results())
			}
			return err
		},
	}

	app.RegisterSettings(cmd.Flags())

	return cmd
}
