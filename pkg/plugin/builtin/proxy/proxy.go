// Package proxy captures live traffic through a forward proxy.
package proxy // import "autovader.dev/cmd/pkg/plugin/builtin/proxy"

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/plugin/builtin/proxy/wire"
	"autovader.dev/cmd/pkg/proto"
	"autovader.dev/cmd/pkg/traffic"

	"github.com/lmittmann/tint"
)

type Plugin struct {
	wire.Config

	p     *proto.P
	proxy *traffic.Proxy
	ln    net.Listener
}

func (p *Plugin) Name() string {
	return "proxy"
}

func New(opts ...func(*Plugin)) *Plugin {
	p := &Plugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Plugin(_ context.Context, q *proto.P) any {
	return &Plugin{p: q}
}

func (p *Plugin) Step(context.Context, *proto.P) any {
	return nil
}

// Init listens on Addr and serves the proxy until ctx is done.
func (p *Plugin) Init(ctx context.Context, _ *proto.Job) (err error) {
	slog.Debug("proxy: init",
		"config", p.Config,
	)

	if p.Config.Addr == "" {
		return errors.New("addr is empty")
	}

	var opts []func(*traffic.Proxy)

	if p.Config.MaxBody > 0 {
		opts = append(opts, traffic.WithMaxBody(p.Config.MaxBody))
	}

	if p.Config.Metrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", p.p.Coordinator().Metrics.Handler())
		opts = append(opts, traffic.WithLocal(mux))
	}

	p.proxy = traffic.NewProxy(opts...)

	if p.ln, err = net.Listen("tcp", p.Config.Addr); err != nil {
		return errors.New("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:           p.proxy,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		p.proxy.Close()
		srv.Close()
	}()

	go func() {
		if err := srv.Serve(p.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Proxy stopped",
				"addr", p.ln.Addr().String(),
				tint.Err(err),
			)
		}
	}()

	slog.Info("Proxy listening",
		"addr", p.ln.Addr().String(),
	)

	return nil
}

// Addr is the address the proxy listens on once initialized.
func (p *Plugin) Addr() net.Addr {
	return p.ln.Addr()
}

// Subscribe yields captured flows until ctx is done.
func (p *Plugin) Subscribe(ctx context.Context) <-chan traffic.Flow {
	return p.proxy.Subscribe(ctx)
}

func (p *Plugin) Live() bool {
	return true
}
