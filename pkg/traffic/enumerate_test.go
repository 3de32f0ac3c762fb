package traffic_test

import (
	"net/http"
	"strconv"
	"testing"

	"autovader.dev/cmd/pkg/traffic"

	"github.com/google/go-cmp/cmp"
)

func TestEnumerateQuery(t *testing.T) {
	cases := []struct {
		url  string
		want []string
	}{
		0: {
			"http://example.com/page?x=123&y=456",
			[]string{
				"http://example.com/page?x=canary<p>&y=456",
				"http://example.com/page?x=123&y=canary<p>",
			},
		},
		1: {
			"http://example.com/page",
			[]string{"http://example.com/page"},
		},
		2: {
			"http://example.com/page?flag&q=%41#top",
			[]string{
				"http://example.com/page?flag=canary<p>&q=%41#top",
				"http://example.com/page?flag&q=canary<p>#top",
			},
		},
		3: {
			"http://example.com/page?",
			[]string{"http://example.com/page?"},
		},
		4: {
			"http://example.com/?a=1&&b=",
			[]string{
				"http://example.com/?a=canary<p>&b=",
				"http://example.com/?a=1&b=canary<p>",
			},
		},
	}

	for _, cas := range cases {
		t.Run("", func(t *testing.T) {
			got := traffic.EnumerateQuery(cas.url, "canary", "<p>")

			if diff := cmp.Diff(cas.want, got); diff != "" {
				t.Errorf("EnumerateQuery(%q) (-want +got):\n%s", cas.url, diff)
			}
		})
	}
}

func TestEnumerateQueryAll(t *testing.T) {
	got := traffic.EnumerateQueryAll([]string{
		"http://a.test/?x=1",
		"http://b.test/",
	}, "c", "")

	want := []string{"http://a.test/?x=c", "http://b.test/"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestEnumerateBody(t *testing.T) {
	rec := traffic.NewRequest("post", "http://example.com/login")
	rec.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	rec.SetBody([]byte("user=bob&pass=secret"))

	got := traffic.EnumerateBody(rec, "canary", "")

	want := []string{
		"user=canary&pass=secret",
		"user=bob&pass=canary",
	}

	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}

	for i, r := range got {
		if string(r.Body) != want[i] {
			t.Errorf("%d: body: got %q, want %q", i, r.Body, want[i])
		}
		if cl := r.Header.Get("Content-Length"); cl != strconv.Itoa(len(want[i])) {
			t.Errorf("%d: content-length: got %q", i, cl)
		}
		if r.Method != http.MethodPost {
			t.Errorf("%d: method: got %q", i, r.Method)
		}
	}

	if string(rec.Body) != "user=bob&pass=secret" {
		t.Errorf("input mutated: %q", rec.Body)
	}
}

func TestEnumerateBodyIgnored(t *testing.T) {
	cases := []*traffic.Record{
		0: nil,
		1: func() *traffic.Record {
			r := traffic.NewRequest("POST", "http://example.com/api")
			r.Header.Set("Content-Type", "application/json")
			r.SetBody([]byte(`{"a":1}`))
			return r
		}(),
		2: func() *traffic.Record {
			r := traffic.NewRequest("POST", "http://example.com/api")
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return r
		}(),
	}

	for _, rec := range cases {
		t.Run("", func(t *testing.T) {
			if got := traffic.EnumerateBody(rec, "canary", ""); len(got) != 0 {
				t.Errorf("got %d records, want none", len(got))
			}
		})
	}
}
