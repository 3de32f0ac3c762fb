package async_test

import (
	"fmt"
	"testing"

	"autovader.dev/cmd/pkg/async"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// TestMapWaiters blocks readers on every key before any value is stored.
func TestMapWaiters(t *testing.T) {
	cases := []struct {
		key     string
		value   string
		readers int
	}{
		0: {"canary", "k9x2m", 16},
		1: {"session", "c0ffee", 4},
		2: {"token", "", 32},
	}

	var (
		m       async.Map[string, string]
		eg      errgroup.Group
		started = make(chan struct{})
		got     = make([][]string, len(cases))
	)

	for i, cas := range cases {
		got[i] = make([]string, cas.readers)

		for j := range cas.readers {
			eg.Go(func() error {
				started <- struct{}{}
				v, ok := m.Load(cas.key)
				if !ok {
					return fmt.Errorf("%s: not loaded", cas.key)
				}
				got[i][j] = v
				return nil
			})
		}
	}

	for _, cas := range cases {
		for range cas.readers {
			<-started
		}
	}

	for _, cas := range cases {
		m.Store(cas.key, cas.value)
	}

	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, cas := range cases {
		t.Run("", func(t *testing.T) {
			want := make([]string, cas.readers)
			for j := range want {
				want[j] = cas.value
			}

			if d := cmp.Diff(want, got[i]); d != "" {
				t.Errorf("%d: mismatch (-want +got):\n%s", i, d)
			}
		})
	}
}

func TestMapOverwrite(t *testing.T) {
	var m async.Map[string, int]

	m.Store("retries", 1)
	m.Store("retries", 2)

	if v, ok := m.Load("retries"); !ok || v != 2 {
		t.Errorf("got %d %t", v, ok)
	}
}

func TestPeek(t *testing.T) {
	var m async.Map[string, string]

	if _, ok := m.Peek("canary"); ok {
		t.Fatal("unexpected value before store")
	}

	m.Store("canary", "abc")

	if v, ok := m.Peek("canary"); !ok || v != "abc" {
		t.Errorf("got %q %t", v, ok)
	}
}
