package scan

import (
	"net/http"

	"autovader.dev/cmd/pkg/invader"
	"autovader.dev/cmd/pkg/traffic"
)

// Collect builds the targets of a kind from urls and captured flows. The
// post kind takes POST requests and the forms of HTML responses; every
// other kind takes request URLs. URLs are kept once, in order.
func Collect(kind invader.Kind, urls []string, flows ...traffic.Flow) Targets {
	var (
		t    Targets
		seen = make(map[string]struct{})
	)

	add := func(u string) {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			t.URLs = append(t.URLs, u)
		}
	}

	for _, u := range urls {
		add(u)
	}

	for _, f := range flows {
		if f.Request == nil {
			continue
		}

		if kind != invader.Post {
			add(f.Request.URL)
			continue
		}

		if f.Request.Method == http.MethodPost {
			t.Records = append(t.Records, f.Request)
		}
		t.Records = append(t.Records, traffic.Forms(f)...)
	}

	return t
}

// Empty reports whether t has nothing for kind to render.
func (t Targets) Empty(kind invader.Kind) bool {
	if kind == invader.Post {
		return len(t.Records) == 0
	}
	return len(t.URLs) == 0 && len(t.Records) == 0
}
