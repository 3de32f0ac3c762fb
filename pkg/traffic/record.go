// Package traffic translates intercepted HTTP exchanges into records that
// the rule evaluator can match and the browser driver can replay.
package traffic // import "autovader.dev/cmd/pkg/traffic"

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autovader.dev/cmd/pkg/errors"

	"github.com/google/uuid"
)

type Direction string

const (
	Request  Direction = "request"
	Response Direction = "response"
)

// Record is one captured HTTP message.
type Record struct {
	ID        string      `json:"id,omitempty"`
	Direction Direction   `json:"direction"`
	Method    string      `json:"method,omitempty"`
	URL       string      `json:"url"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"body,omitempty"`
	Status    int         `json:"status,omitempty"`
	Tool      string      `json:"tool,omitempty"`
	Time      time.Time   `json:"time,omitempty"`
}

// Flow pairs a request with the response it produced, if any.
type Flow struct {
	Request  *Record `json:"request"`
	Response *Record `json:"response,omitempty"`
}

func NewRequest(method, rawURL string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Direction: Request,
		Method:    strings.ToUpper(method),
		URL:       rawURL,
		Header:    make(http.Header),
		Time:      time.Now(),
	}
}

func (r *Record) Clone() *Record {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	c.Body = bytes.Clone(r.Body)
	return &c
}

// SetBody replaces the body and keeps Content-Length consistent.
func (r *Record) SetBody(p []byte) {
	r.Body = p
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if len(p) == 0 {
		r.Header.Del("Content-Length")
		return
	}
	r.Header.Set("Content-Length", strconv.Itoa(len(p)))
}

func (r *Record) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i != -1 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Object is the view matched by rule patterns.
func (r *Record) Object() map[string]any {
	obj := map[string]any{
		"id":        r.ID,
		"direction": string(r.Direction),
		"method":    r.Method,
		"url":       r.URL,
		"status":    r.Status,
		"tool":      r.Tool,
		"body":      string(r.Body),
	}

	header := make(map[string]any, len(r.Header))
	for k, v := range r.Header {
		header[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	obj["header"] = header

	u, err := url.Parse(r.URL)
	if err != nil {
		return obj
	}

	obj["scheme"] = u.Scheme
	obj["host"] = u.Hostname()
	obj["port"] = u.Port()
	obj["path"] = u.Path

	query := make(map[string]any)
	for k, v := range u.Query() {
		if len(v) != 0 {
			query[k] = v[0]
		}
	}
	obj["query"] = query

	return obj
}

// Object is the view matched by rule patterns: the request view with the
// response, when present, nested under "response".
func (f Flow) Object() map[string]any {
	if f.Request == nil {
		return map[string]any{}
	}
	obj := f.Request.Object()
	if f.Response != nil {
		obj["response"] = f.Response.Object()
	}
	return obj
}

func FromRequest(req *http.Request) (*Record, error) {
	rec := NewRequest(req.Method, req.URL.String())
	rec.Header = req.Header.Clone()

	if req.Host != "" && req.Header.Get("Host") == "" {
		rec.Header.Set("Host", req.Host)
	}

	if req.Body != nil && req.Body != http.NoBody {
		p, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.New("failed to read request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(p))
		rec.Body = p
	}

	return rec, nil
}

func FromResponse(resp *http.Response) (*Record, error) {
	rec := &Record{
		ID:        uuid.NewString(),
		Direction: Response,
		Status:    resp.StatusCode,
		Header:    resp.Header.Clone(),
		Time:      time.Now(),
	}

	if resp.Request != nil {
		rec.Method = resp.Request.Method
		rec.URL = resp.Request.URL.String()
	}

	if resp.Body != nil {
		p, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.New("failed to read response body: %w", err)
		}
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(p))
		rec.Body = p
	}

	return rec, nil
}

// Request rebuilds an outgoing request from a request record.
func (r *Record) Request(ctx context.Context) (*http.Request, error) {
	if r.Direction != "" && r.Direction != Request {
		return nil, errors.New("record %s is a %s", r.ID, r.Direction)
	}

	var body io.Reader
	if len(r.Body) != 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, nonempty(r.Method, http.MethodGet), r.URL, body)
	if err != nil {
		return nil, errors.New("failed to build request for %q: %w", r.URL, err)
	}

	for k, v := range r.Header {
		if strings.EqualFold(k, "Host") {
			req.Host = strings.Join(v, "")
			continue
		}
		req.Header[k] = append([]string(nil), v...)
	}

	return req, nil
}

// IsWeb reports whether rawURL can be rendered by the browser.
func IsWeb(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func nonempty[T comparable](t ...T) T {
	var zero T
	for _, v := range t {
		if v != zero {
			return v
		}
	}
	return zero
}
