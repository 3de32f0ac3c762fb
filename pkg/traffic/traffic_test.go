package traffic_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"autovader.dev/cmd/pkg/traffic"

	"github.com/google/go-cmp/cmp"
)

func TestReadHAR(t *testing.T) {
	f, err := os.Open("testdata/export.har")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	flows, err := traffic.ReadHAR(f)
	if err != nil {
		t.Fatal(err)
	}

	if len(flows) != 2 {
		t.Fatalf("got %d flows, want 2", len(flows))
	}

	get, post := flows[0], flows[1]

	if get.Request.Header.Get(":authority") != "" {
		t.Error("pseudo header kept")
	}
	if got := string(get.Response.Body); got != "<h1>shoes</h1>" {
		t.Errorf("response body: got %q", got)
	}
	if post.Response != nil {
		t.Errorf("unanswered entry has a response: %+v", post.Response)
	}
	if got := post.Request.ContentType(); got != "application/x-www-form-urlencoded" {
		t.Errorf("content type: got %q", got)
	}
	if got := string(post.Request.Body); got != "user=bob&pass=x" {
		t.Errorf("request body: got %q", got)
	}
}

func TestDecode(t *testing.T) {
	f, err := os.Open("testdata/flows.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	flows, err := traffic.Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	type view struct {
		Method, URL string
		Status      int
	}

	var got []view
	for _, f := range flows {
		v := view{Method: f.Request.Method, URL: f.Request.URL}
		if f.Response != nil {
			v.Status = f.Response.Status
		}
		got = append(got, v)
	}

	want := []view{
		{"GET", "https://a.example/?x=1", 0},
		{"GET", "https://b.example/", 302},
		{"POST", "https://b.example/form", 0},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDecodeBad(t *testing.T) {
	cases := []string{
		0: `"just a string"`,
		1: `{"response": {"status": 200}}`,
		2: `[{"request": {}}]`,
	}

	for _, cas := range cases {
		t.Run("", func(t *testing.T) {
			if _, err := traffic.Decode(strings.NewReader(cas)); err == nil {
				t.Errorf("Decode(%s): want error", cas)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer

	req := traffic.NewRequest("POST", "https://a.example/x")
	req.Header.Set("Content-Type", "text/plain")
	req.SetBody([]byte("hello"))

	if err := traffic.NewEncoder(&buf).Encode(traffic.Flow{Request: req}); err != nil {
		t.Fatal(err)
	}

	flows, err := traffic.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(flows) != 1 {
		t.Fatalf("got %d flows", len(flows))
	}

	got := flows[0].Request
	if got.ID != req.ID || string(got.Body) != "hello" || got.Header.Get("Content-Length") != "5" {
		t.Errorf("got %+v", got)
	}
}

func TestObject(t *testing.T) {
	req := traffic.NewRequest("GET", "https://shop.example:8443/search?q=shoes&q=boots")
	req.Header.Add("X-Test", "a")
	req.Header.Add("X-Test", "b")

	obj := traffic.Flow{
		Request:  req,
		Response: &traffic.Record{Direction: traffic.Response, Status: 200},
	}.Object()

	want := map[string]any{
		"host":   "shop.example",
		"port":   "8443",
		"path":   "/search",
		"method": "GET",
		"query":  map[string]any{"q": "shoes"},
		"header": map[string]any{"x-test": "a, b"},
	}

	for k, v := range want {
		if diff := cmp.Diff(v, obj[k]); diff != "" {
			t.Errorf("%s (-want +got):\n%s", k, diff)
		}
	}

	rsp, ok := obj["response"].(map[string]any)
	if !ok || rsp["status"] != 200 {
		t.Errorf("response: got %v", obj["response"])
	}
}

func TestRequestRoundTrip(t *testing.T) {
	in, err := http.NewRequest("POST", "https://a.example/x", strings.NewReader("a=1"))
	if err != nil {
		t.Fatal(err)
	}
	in.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, err := traffic.FromRequest(in)
	if err != nil {
		t.Fatal(err)
	}

	// body must still be readable by the caller
	if p, _ := io.ReadAll(in.Body); string(p) != "a=1" {
		t.Errorf("body not restored: %q", p)
	}

	out, err := rec.Request(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	p, _ := io.ReadAll(out.Body)
	if string(p) != "a=1" || out.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Errorf("got %s %q", out.Header, p)
	}
}

func TestForms(t *testing.T) {
	const page = `<html><body>
<form action="/search" method="get">
  <input name="q" value="shoes">
  <input type="submit" name="go" value="Go">
</form>
<form action="https://shop.example/login" method="POST">
  <input name="user" value="bob">
  <input type="password" name="pass">
  <input type="checkbox" name="remember" checked>
  <input type="checkbox" name="spam">
  <select name="lang"><option value="en">English</option><option value="de" selected>Deutsch</option></select>
  <textarea name="note">hi there</textarea>
  <input name="off" value="1" disabled>
</form>
</body></html>`

	req := traffic.NewRequest("GET", "https://shop.example/index.html")
	rsp := &traffic.Record{
		Direction: traffic.Response,
		URL:       req.URL,
		Status:    200,
		Header:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:      []byte(page),
	}

	recs := traffic.Forms(traffic.Flow{Request: req, Response: rsp})
	if len(recs) != 2 {
		t.Fatalf("got %d forms, want 2", len(recs))
	}

	if got, want := recs[0].URL, "https://shop.example/search?q=shoes"; got != want {
		t.Errorf("get form: got %q, want %q", got, want)
	}

	post := recs[1]
	if post.Method != http.MethodPost {
		t.Errorf("post form method: got %q", post.Method)
	}

	form, err := url.ParseQuery(string(post.Body))
	if err != nil {
		t.Fatal(err)
	}

	want := url.Values{
		"user":     {"bob"},
		"pass":     {""},
		"remember": {"on"},
		"lang":     {"de"},
		"note":     {"hi there"},
	}

	if diff := cmp.Diff(want, form); diff != "" {
		t.Errorf("post body (-want +got):\n%s", diff)
	}

	if traffic.EnumerateBody(post, "c", "") == nil {
		t.Error("synthesised form is not enumerable")
	}
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := io.ReadAll(r.Body)
		if r.Header.Get("Proxy-Connection") != "" {
			t.Error("hop-by-hop header forwarded")
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("echo:" + string(p)))
	}))
	defer upstream.Close()

	proxy := traffic.NewProxy()
	defer proxy.Close()

	srv := httptest.NewServer(proxy)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flows := proxy.Subscribe(ctx)

	proxyURL, _ := url.Parse(srv.URL)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}

	req, _ := http.NewRequest("POST", upstream.URL+"/submit?x=1", strings.NewReader("a=1"))
	req.Header.Set("Proxy-Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated || string(p) != "echo:a=1" {
		t.Fatalf("proxied response: %d %q", resp.StatusCode, p)
	}

	select {
	case f := <-flows:
		if f.Request.URL != upstream.URL+"/submit?x=1" || string(f.Request.Body) != "a=1" {
			t.Errorf("request: %s %q", f.Request.URL, f.Request.Body)
		}
		if f.Response == nil || f.Response.Status != http.StatusCreated || string(f.Response.Body) != "echo:a=1" {
			t.Errorf("response: %+v", f.Response)
		}
		if f.Request.Tool != "proxy" {
			t.Errorf("tool: got %q", f.Request.Tool)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no flow published")
	}

	cancel()

	// channel is closed once the subscriber's context is done
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-flows:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed")
		}
	}
}

func TestProxyLocal(t *testing.T) {
	proxy := traffic.NewProxy(traffic.WithLocal(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("local"))
	})))

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Body.String() != "local" {
		t.Errorf("got %q", rec.Body.String())
	}
}

func TestReplay(t *testing.T) {
	flows := []traffic.Flow{
		{Request: traffic.NewRequest("GET", "https://a.example/1")},
		{Request: traffic.NewRequest("GET", "https://a.example/2")},
	}

	var got []string
	for f := range traffic.Replay(context.Background(), flows) {
		got = append(got, f.Request.URL)
	}

	want := []string{"https://a.example/1", "https://a.example/2"}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("Replay() mismatch (-want +got):\n%s", d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := traffic.Replay(ctx, flows)
	time.Sleep(10 * time.Millisecond)

	n := 0
	for range c {
		n++
	}
	if n > 1 {
		t.Fatalf("got %d flows after cancel", n)
	}
}
