package har_test

import (
	"context"
	"strings"
	"testing"

	"autovader.dev/cmd/pkg/plugin/builtin/har"
	"autovader.dev/cmd/pkg/proto"

	"github.com/google/go-cmp/cmp"
)

func TestSubscribe(t *testing.T) {
	cases := []struct {
		with string
		want []string
	}{
		0: {
			"{file: ../../../testdata/shop.har}",
			[]string{
				"https://shop.example/search?q=shoes",
				"https://shop.example/login",
				"https://shop.example/app.js",
			},
		},
		1: {
			"{file: ../../../testdata/shop.har, scope: {exclude: ['shop.example/*.js']}}",
			[]string{
				"https://shop.example/search?q=shoes",
				"https://shop.example/login",
			},
		},
		2: {
			"{file: ../../../testdata/shop.har, scope: {include: ['cdn.example/**']}}",
			nil,
		},
	}

	for i, cas := range cases {
		t.Run("", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			p := proto.New(proto.WithPlugins(har.New()))

			w, err := p.Parse(ctx, []byte("jobs:\n- plugins:\n  - uses: har\n    with: "+cas.with+"\n"))
			if err != nil {
				t.Fatalf("%d: %+v", i, err)
			}

			src := w.Jobs[0].Plugins[0].With.(proto.Subscriber)

			var got []string
			for f := range src.Subscribe(ctx) {
				got = append(got, f.Request.URL)
			}

			if d := cmp.Diff(cas.want, got); d != "" {
				t.Errorf("%d: mismatch (-want +got):\n%s", i, d)
			}
		})
	}
}

func TestInitErrors(t *testing.T) {
	cases := []struct {
		with string
		err  string
	}{
		0: {"{scope: {include: ['x']}}", "file is empty"},
		1: {"{file: ../../../testdata/shop.har, scope: {include: ['[']}}", "invalid scope pattern"},
		2: {"{file: ../../../testdata/missing.har}", "missing.har"},
	}

	for i, cas := range cases {
		t.Run("", func(t *testing.T) {
			p := proto.New(proto.WithPlugins(har.New()))

			_, err := p.Parse(context.Background(), []byte("jobs:\n- plugins:\n  - uses: har\n    with: "+cas.with+"\n"))
			if err == nil || !strings.Contains(err.Error(), cas.err) {
				t.Errorf("%d: got %v, want %q", i, err, cas.err)
			}
		})
	}
}
