// Package wire is the on-disk shape of a scan plan.
package wire // import "autovader.dev/cmd/pkg/proto/wire"

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"time"

	"autovader.dev/cmd/pkg/errors"

	"sigs.k8s.io/yaml"
)

type generic map[string]json.RawMessage

// XParse reads a plan strictly: unknown keys, empty uses and empty with
// blocks are errors.
func XParse(p []byte) (*Plan, error) {
	var root generic

	if err := yamlUnmarshal(p, &root); err != nil {
		return nil, err
	}

	if len(root) == 0 {
		return nil, errors.New("plan is empty")
	}

	if err := only(root, "plan", "jobs"); err != nil {
		return nil, err
	}

	var jobs []generic

	if err := yamlUnmarshal(root["jobs"], &jobs); err != nil {
		return nil, errors.New("failed to unmarshal jobs: %w", err)
	}

	w := &Plan{Jobs: make([]Job, len(jobs))}

	for i, g := range jobs {
		if err := parseJob(g, &w.Jobs[i]); err != nil {
			return nil, errors.New("jobs[%d]: %w", i, err)
		}
	}

	return w, nil
}

func parseJob(g generic, job *Job) error {
	if err := only(g, "job", "id", "plugins", "steps"); err != nil {
		return err
	}

	if p, ok := g["id"]; ok {
		if err := yamlUnmarshal(p, &job.ID); err != nil {
			return errors.New("failed to unmarshal job.id: %w", err)
		}
	}

	var plugins, steps []generic

	if err := yamlUnmarshal(g["plugins"], &plugins); err != nil {
		return errors.New("failed to unmarshal plugins: %w", err)
	}

	if err := yamlUnmarshal(g["steps"], &steps); err != nil {
		return errors.New("failed to unmarshal steps: %w", err)
	}

	job.Plugins = make([]Plugin, len(plugins))

	for i, p := range plugins {
		if err := parsePlugin(p, &job.Plugins[i]); err != nil {
			return errors.New("plugins[%d]: %w", i, err)
		}
	}

	job.Steps = make([]Step, len(steps))

	for i, p := range steps {
		if err := parseStep(p, &job.Steps[i]); err != nil {
			return errors.New("steps[%d]: %w", i, err)
		}
	}

	return nil
}

func parsePlugin(g generic, plugin *Plugin) error {
	if err := yamlUnmarshalg(g, plugin); err != nil {
		return errors.New("failed to unmarshal plugin: %w", err)
	}

	slog.Debug("wire: plugin",
		"plugin", plugin.Uses,
		"with", str(g),
	)

	if plugin.Uses == "" {
		return errors.New("plugin.uses is empty")
	}

	return nonempty("plugin", plugin.Uses, plugin.With)
}

func parseStep(g generic, step *Step) error {
	if err := yamlUnmarshalg(g, step); err != nil {
		return errors.New("failed to unmarshal step: %w", err)
	}

	slog.Debug("wire: step",
		"step", step.Uses,
		"with", str(g),
	)

	if step.Uses == "" {
		return errors.New("step.uses is empty")
	}

	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			return errors.New("invalid %q step.timeout: %w", step.Uses, err)
		}
	}

	return nonempty("step", step.Uses, step.With)
}

// nonempty fails unless with is an object with at least one key.
func nonempty(kind, uses string, with json.RawMessage) error {
	var x generic

	if err := yamlUnmarshal(with, &x); err != nil {
		return errors.New("failed to unmarshal %q %s.with: %w", uses, kind, err)
	}

	if len(x) == 0 {
		return errors.New("%s.with is empty for %q", kind, uses)
	}

	return nil
}

// only fails on the first key of g, in sorted order, not in keys.
func only(g generic, kind string, keys ...string) error {
	for _, k := range slices.Sorted(maps.Keys(g)) {
		if !slices.Contains(keys, k) {
			return errors.New("unsupported key for %s: %q", kind, k)
		}
	}
	return nil
}

// GetTimeout returns the parsed step timeout, or 0 when unset.
func (s Step) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

func yamlUnmarshal(p []byte, v any) error {
	return yaml.Unmarshal(p, v, yaml.DisallowUnknownFields)
}

func str(v any) string {
	p, _ := json.Marshal(v)
	return string(p)
}

func yamlUnmarshalg(g generic, v any) error {
	p, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(p, v, yaml.DisallowUnknownFields)
}
