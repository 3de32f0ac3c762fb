package wire_test

import (
	"os"
	"path/filepath"
	"testing"

	"autovader.dev/cmd/pkg/proto/wire"
)

func TestParse(t *testing.T) {
	cases := []struct {
		file string
		ok   bool
	}{
		{"../../testdata/ok.yaml", true},
		{"../../testdata/bad/1.yaml", false},
		{"../../testdata/bad/2.yaml", false},
		{"../../testdata/bad/3.yaml", false},
	}

	for _, c := range cases {
		t.Run(filepath.Base(c.file), func(t *testing.T) {
			p := file(t, c.file)

			_, err := wire.XParse(p)
			if c.ok && err != nil {
				t.Fatal(err)
			} else if !c.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseInline(t *testing.T) {
	cases := []struct {
		plan string
		ok   bool
	}{
		0: {"", false},
		1: {"jobs: []", true},
		2: {"jobs:\n- steps:\n  - uses: scan\n", false},
		3: {"jobs:\n- plugins:\n  - uses: har\n    with: {}\n", false},
		4: {"jobs:\n- steps:\n  - uses: scan\n    with: {kind: query}\n    extra: 1\n", false},
		5: {"jobs:\n- steps:\n  - uses: scan\n    timeout: 2s\n    with: {kind: query}\n", true},
	}

	for i, cas := range cases {
		t.Run("", func(t *testing.T) {
			_, err := wire.XParse([]byte(cas.plan))
			if cas.ok && err != nil {
				t.Fatalf("%d: %+v", i, err)
			} else if !cas.ok && err == nil {
				t.Fatalf("%d: expected error", i)
			}
		})
	}
}

func TestStepTimeout(t *testing.T) {
	p, err := wire.XParse(file(t, "../../testdata/ok.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	steps := p.Jobs[0].Steps
	if got := steps[0].GetTimeout().String(); got != "1m0s" {
		t.Errorf("timeout = %s", got)
	}
	if got := steps[1].GetTimeout(); got != 0 {
		t.Errorf("timeout = %s", got)
	}
}

func file(t *testing.T, path string) []byte {
	t.Helper()

	p, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	return p
}
