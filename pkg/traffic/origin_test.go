package traffic_test

import (
	"testing"

	"autovader.dev/cmd/pkg/traffic"
)

func TestOrigin(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		0: {"https://example.com/path?q=1", "https://example.com"},
		1: {"https://example.com:443/", "https://example.com"},
		2: {"http://example.com:80/x", "http://example.com"},
		3: {"http://example.com:8080/x", "http://example.com:8080"},
		4: {"https://[::1]:8443/", "https://[::1]:8443"},
		5: {"not a url", "not a url"},
	}

	for _, cas := range cases {
		t.Run("", func(t *testing.T) {
			if got := traffic.Origin(cas.raw); got != cas.want {
				t.Errorf("Origin(%q): got %q, want %q", cas.raw, got, cas.want)
			}
		})
	}
}

func TestStrictOrigin(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		err  bool
	}{
		0: {"https://example.com/a", "https://example.com", false},
		1: {"https://example.com:443/a", "https://example.com:443", false},
		2: {"/relative", "", true},
		3: {"about:blank", "", true},
	}

	for _, cas := range cases {
		t.Run("", func(t *testing.T) {
			got, err := traffic.StrictOrigin(cas.raw)
			if (err != nil) != cas.err {
				t.Fatalf("err: got %v, want error %t", err, cas.err)
			}
			if got != cas.want {
				t.Errorf("got %q, want %q", got, cas.want)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	if !traffic.SameOrigin("https://Example.com/a", "https://example.COM/b?x") {
		t.Error("same origin with different case: got false")
	}
	if traffic.SameOrigin("https://example.com", "https://example.com:443") {
		t.Error("explicit port: got true")
	}
	if traffic.SameOrigin("https://evil.test", "https://example.com") {
		t.Error("foreign origin: got true")
	}
}
