package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"autovader.dev/cmd/pkg/command"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// defaultRules queue query and post scans for captured pages when no rules
// file is given.
const defaultRules = `
rules:
- name: static
  match:
    .path: '${{ regexMatch "\\.(css|js|map|png|jpe?g|gif|svg|ico|woff2?)$" . }}'
  action:
    type: drop
- name: query
  match:
    .method: GET
    .query: '${{ not (empty .) }}'
  action:
    type: scan
    kinds: [query]
- name: forms
  match:
    .method: POST
  action:
    type: scan
    kinds: [post]
`

func newOpenCommand(ctx context.Context, app *command.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <url>",
		Short: "Open DOM Invader on a URL with devtools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(ctx, app, func(ctx context.Context, c *scan.Coordinator) error {
				return c.Open(ctx, args[0])
			})
		},
	}

	app.RegisterSettings(cmd.Flags())

	return cmd
}

func newRedirectCommand(ctx context.Context, app *command.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redirect <url>",
		Short: "Open a URL with a breakpoint on client-side redirects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(ctx, app, func(ctx context.Context, c *scan.Coordinator) error {
				return c.InterceptRedirect(ctx, args[0])
			})
		},
	}

	app.RegisterSettings(cmd.Flags())

	return cmd
}

func newScanCommand(ctx context.Context, app *command.App) *cobra.Command {
	var har, jsonl string

	cmd := &cobra.Command{
		Use:       "scan <kind> [url...]",
		Short:     "Scan URLs or captured traffic with one DOM Invader profile",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := invader.ParseKind(args[0])
			if err != nil {
				return err
			}

			var flows []traffic.Flow

			if har != "" {
				f, err := read(har, traffic.ReadHAR)
				if err != nil {
					return err
				}
				flows = append(flows, f...)
			}

			if jsonl != "" {
				f, err := read(jsonl, traffic.Decode)
				if err != nil {
					return err
				}
				flows = append(flows, f...)
			}

			t := scan.Collect(kind, args[1:], flows...)

			return withCoordinator(ctx, app, func(ctx context.Context, c *scan.Coordinator) error {
				err := c.Scan(ctx, kind, t)
				app.Render(c.Tally.Results())
				return err
			})
		},
	}

	cmd.Flags().StringVar(&har, "har", "", "read targets from a HAR export")
	cmd.Flags().StringVar(&jsonl, "jsonl", "", "read targets from a JSON lines capture")

	app.RegisterSettings(cmd.Flags())

	return cmd
}

func newProxyCommand(ctx context.Context, app *command.App) *cobra.Command {
	var addr, rules, record string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Capture traffic through a forward proxy and auto-run scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := []byte(defaultRules)
			if rules != "" {
				var err error
				if p, err = os.ReadFile(rules); err != nil {
					return errors.New("failed to read rules: %w", err)
				}
			}

			ctx := app.Trace(ctx)

			set, err := rule.LoadSet(ctx, app.RuleEngine(), p)
			if err != nil {
				return err
			}

			return withCoordinator(ctx, app, func(ctx context.Context, c *scan.Coordinator) error {
				return serve(ctx, app, c, set, addr, record)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "proxy listen address")
	cmd.Flags().StringVar(&rules, "rules", "", "rules file (default: scan query strings and forms)")
	cmd.Flags().StringVar(&record, "record", "", "append captured flows to a JSON lines file")

	app.RegisterSettings(cmd.Flags())

	return cmd
}

func serve(ctx context.Context, app *command.App, c *scan.Coordinator, set *rule.Set, addr, record string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New("failed to listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Metrics.Handler())

	var (
		proxy = traffic.NewProxy(traffic.WithLocal(mux))
		srv   = &http.Server{Handler: proxy, ReadHeaderTimeout: 30 * time.Second}
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		proxy.Close()
		return srv.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if record != "" {
		g.Go(func() error {
			return capture(ctx, proxy.Subscribe(ctx), record)
		})
	}

	if app.Settings.AutoRun {
		g.Go(func() error {
			err := c.Follow(ctx, proxy.Subscribe(ctx), set)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	slog.Info("Proxy listening",
		"addr", ln.Addr().String(),
		"autoRun", app.Settings.AutoRun,
		"metrics", "http://"+ln.Addr().String()+"/metrics",
	)

	return g.Wait()
}

func capture(ctx context.Context, flows <-chan traffic.Flow, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New("failed to open capture file: %w", err)
	}
	defer f.Close()

	enc := traffic.NewEncoder(f)

	for fl := range flows {
		if err := enc.Encode(fl); err != nil {
			return err
		}
	}

	return nil
}

// withCoordinator runs fn with a started coordinator and closes it after.
func withCoordinator(ctx context.Context, app *command.App, fn func(context.Context, *scan.Coordinator) error) error {
	c, err := app.Coordinator()
	if err != nil {
		return err
	}

	ctx = app.Trace(ctx)

	c.Start(ctx)
	defer c.Close()

	return fn(ctx, c)
}

func read(path string, decode func(r io.Reader) ([]traffic.Flow, error)) ([]traffic.Flow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	flows, err := decode(f)
	if err != nil {
		return nil, errors.New("%s: %w", path, err)
	}

	return flows, nil
}

func kinds() []string {
	var s []string
	for _, k := range invader.Kinds() {
		s = append(s, k.String())
	}
	return s
}
