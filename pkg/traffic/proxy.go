package traffic

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const DefaultMaxBody = 4 << 20

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is a capturing forward proxy. Every absolute-URI request it
// forwards is published, paired with its response, to all subscribers.
// CONNECT tunnels are relayed without inspection.
type Proxy struct {
	Transport http.RoundTripper
	Local     http.Handler // serves requests that are not proxy requests
	MaxBody   int64
	Buffer    int

	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu     sync.Mutex
	subs   map[chan Flow]struct{}
	closed bool
}

func NewProxy(opts ...func(*Proxy)) *Proxy {
	d := &net.Dialer{Timeout: 30 * time.Second}
	p := &Proxy{
		Transport: http.DefaultTransport,
		MaxBody:   DefaultMaxBody,
		Buffer:    64,
		dial:      d.DialContext,
		subs:      make(map[chan Flow]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithTransport(rt http.RoundTripper) func(*Proxy) {
	return func(p *Proxy) {
		p.Transport = rt
	}
}

func WithLocal(h http.Handler) func(*Proxy) {
	return func(p *Proxy) {
		p.Local = h
	}
}

func WithMaxBody(n int64) func(*Proxy) {
	return func(p *Proxy) {
		p.MaxBody = n
	}
}

// Subscribe returns a channel of captured flows that is closed when ctx is
// done or the proxy is closed. A subscriber that falls Buffer flows behind
// misses flows rather than stalling the proxy.
func (p *Proxy) Subscribe(ctx context.Context) <-chan Flow {
	c := make(chan Flow, p.Buffer)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(c)
		return c
	}
	p.subs[c] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.unsubscribe(c)
	}()

	return c
}

func (p *Proxy) unsubscribe(c chan Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[c]; ok {
		delete(p.subs, c)
		close(c)
	}
}

func (p *Proxy) publish(f Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.subs {
		select {
		case c <- f:
		default:
			slog.Warn("proxy: subscriber is full, dropping flow",
				"url", f.Request.URL,
			)
		}
	}
}

// Close ends every subscription.
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for c := range p.subs {
		delete(p.subs, c)
		close(c)
	}
	return nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodConnect:
		p.tunnel(w, r)
	case r.URL.IsAbs():
		p.forward(w, r)
	case p.Local != nil:
		p.Local.ServeHTTP(w, r)
	default:
		http.Error(w, "not a proxy request", http.StatusBadRequest)
	}
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	var body []byte

	if r.Body != nil {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body.Close()
	}

	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	if len(body) == 0 {
		out.Body = http.NoBody
	}
	stripHop(out.Header)

	req := NewRequest(r.Method, r.URL.String())
	req.Header, req.Body = p.capture(out.Header, body)
	req.Tool = "proxy"

	resp, err := p.Transport.RoundTrip(out)
	if err != nil {
		slog.Error("proxy: forward",
			"url", req.URL,
			tint.Err(err),
		)
		http.Error(w, err.Error(), http.StatusBadGateway)
		p.publish(Flow{Request: req})
		return
	}
	defer resp.Body.Close()

	p2, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	stripHop(resp.Header)

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(p2)

	rsp := &Record{
		ID:        req.ID,
		Direction: Response,
		Method:    req.Method,
		URL:       req.URL,
		Status:    resp.StatusCode,
		Tool:      "proxy",
		Time:      time.Now(),
	}
	rsp.Header, rsp.Body = p.capture(resp.Header, p2)

	slog.Debug("proxy: captured",
		"method", req.Method,
		"url", req.URL,
		"status", rsp.Status,
	)

	p.publish(Flow{Request: req, Response: rsp})
}

// capture returns the published copy of a message: the body decoded per
// Content-Encoding and cut at MaxBody, with a header that describes that
// body rather than the one on the wire. The client always gets the raw bytes.
func (p *Proxy) capture(h http.Header, body []byte) (http.Header, []byte) {
	h = h.Clone()

	if len(body) == 0 {
		return h, nil
	}

	if cs := contentCodings(h); len(cs) != 0 {
		plain, err := decodeContent(cs, body, p.MaxBody)
		if err != nil {
			slog.Debug("proxy: keeping encoded body",
				"encoding", strings.Join(cs, ", "),
				tint.Err(err),
			)
		} else {
			body = plain
			h.Del("Content-Encoding")
			h.Del("Content-Length")
		}
	}

	if p.MaxBody > 0 && int64(len(body)) > p.MaxBody {
		body = body[:p.MaxBody]
		h.Del("Content-Length")
	}

	return h, bytes.Clone(body)
}

func (p *Proxy) tunnel(w http.ResponseWriter, r *http.Request) {
	upstream, err := p.dial(r.Context(), "tcp", r.Host)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}

	client, buf, err := hj.Hijack()
	if err != nil {
		upstream.Close()
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		client.Close()
		upstream.Close()
		return
	}

	slog.Debug("proxy: tunnel",
		"host", r.Host,
	)

	if n := buf.Reader.Buffered(); n > 0 {
		pending, _ := buf.Reader.Peek(n)
		upstream.Write(pending)
	}

	go func() {
		io.Copy(upstream, client)
		upstream.Close()
	}()
	go func() {
		io.Copy(client, upstream)
		client.Close()
	}()
}

func stripHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
