package config

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/id"
	"autovader.dev/cmd/pkg/invader"

	"sigs.k8s.io/yaml"
)

// State is what a project keeps between runs.
type State struct {
	Canary    string            `json:"canary"`
	Callbacks invader.Callbacks `json:"callbacks,omitempty"`

	path string
}

func StatePath(dir string) string {
	return filepath.Join(dir, "state.yaml")
}

// LoadState reads the state kept in dir. A missing or canary-less state gets
// a fresh canary, which is saved right away so every later run reuses it.
func LoadState(dir string) (*State, error) {
	st := &State{path: StatePath(dir)}

	p, err := os.ReadFile(st.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, errors.New("failed to read state: %w", err)
	default:
		if err := yaml.Unmarshal(p, st, yaml.DisallowUnknownFields); err != nil {
			return nil, errors.New("failed to parse %s: %w", st.path, err)
		}
	}

	if !id.IsCanary(st.Canary) {
		if st.Canary != "" {
			slog.Warn("Replacing invalid canary", "canary", st.Canary)
		}
		st.Canary = id.Canary()
		if err := st.Save(); err != nil {
			return nil, err
		}
		slog.Info("Generated project canary", "canary", st.Canary)
	}

	return st, nil
}

func (st *State) Save() error {
	p, err := yaml.Marshal(st)
	if err != nil {
		return errors.New("failed to encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return errors.New("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(st.path, p, 0o644); err != nil {
		return errors.New("failed to write state: %w", err)
	}
	return nil
}

// ResetCanary replaces the project canary and saves the state.
func (st *State) ResetCanary() (string, error) {
	st.Canary = id.Canary()
	return st.Canary, st.Save()
}

// ResetCallbacks drops every customised callback and saves the state.
func (st *State) ResetCallbacks() error {
	st.Callbacks = invader.Callbacks{}
	return st.Save()
}

// SetCallbacks replaces the non-empty callbacks in c and saves the state.
func (st *State) SetCallbacks(c invader.Callbacks) error {
	if c.Sink != "" {
		st.Callbacks.Sink = c.Sink
	}
	if c.Source != "" {
		st.Callbacks.Source = c.Source
	}
	if c.Message != "" {
		st.Callbacks.Message = c.Message
	}
	return st.Save()
}

// EffectiveCallbacks returns the callbacks DOM Invader is configured with.
func (st *State) EffectiveCallbacks() invader.Callbacks {
	return st.Callbacks.WithDefaults()
}
