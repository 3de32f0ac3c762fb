package main

import (
	"fmt"
	"os"
	"runtime"

	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/command"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/invader"

	"github.com/spf13/cobra"
)

func newCanaryCommand(app *command.App) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "canary",
		Short: "Print the project canary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			canary := app.State.Canary
			if reset {
				var err error
				if canary, err = app.State.ResetCanary(); err != nil {
					return err
				}
			}
			fmt.Println(canary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "generate a new canary")

	return cmd
}

func newIssuesCommand(app *command.App) *cobra.Command {
	return &cobra.Command{
		Use:   "issues",
		Short: "List reported issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues, err := app.Issues().Issues()
			if err != nil {
				return err
			}
			return app.Render(issues)
		},
	}
}

func newCallbacksCommand(app *command.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callbacks",
		Short: "Manage the DOM Invader callbacks",
	}

	show := &cobra.Command{
		Use:  "show",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Render(app.State.EffectiveCallbacks())
		},
	}

	reset := &cobra.Command{
		Use:  "reset",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.State.ResetCallbacks()
		},
	}

	var sink, source, message string

	set := &cobra.Command{
		Use:   "set",
		Short: "Replace callbacks with the contents of files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				c   invader.Callbacks
				err error
			)

			if c.Sink, err = readOptional(sink); err != nil {
				return err
			}
			if c.Source, err = readOptional(source); err != nil {
				return err
			}
			if c.Message, err = readOptional(message); err != nil {
				return err
			}

			if c == (invader.Callbacks{}) {
				return errors.New("nothing to set: pass --sink, --source or --message")
			}

			return app.State.SetCallbacks(c)
		},
	}

	set.Flags().StringVar(&sink, "sink", "", "sink callback file")
	set.Flags().StringVar(&source, "source", "", "source callback file")
	set.Flags().StringVar(&message, "message", "", "message callback file")

	cmd.AddCommand(show, reset, set)

	return cmd
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := os.ReadFile(path)
	if err != nil {
		return "", errors.New("failed to read callback: %w", err)
	}
	return string(p), nil
}

func newChromiumCommand(app *command.App) *cobra.Command {
	return &cobra.Command{
		Use:   "chromium",
		Short: "Print the detected Chromium and DOM Invader paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Render(map[string]string{
				"detectedChromium":  browser.DetectChromium(app.Home, runtime.GOOS),
				"detectedExtension": browser.DefaultExtensionPath(app.Home),
				"chromium":          app.Settings.ChromiumPath,
				"extension":         app.Settings.ExtensionPath,
			})
		},
	}
}
