// Package config loads the scanner settings and the persisted project state.
package config // import "autovader.dev/cmd/pkg/config"

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/rule"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"
)

// EnvPrefix prefixes every environment override, e.g. AUTOVADER_HEADLESS.
const EnvPrefix = "AUTOVADER"

type Settings struct {
	ExtensionPath string     `json:"extension_path,omitempty" envconfig:"EXTENSION_PATH"`
	ChromiumPath  string     `json:"chromium_path,omitempty" envconfig:"CHROMIUM_PATH"`
	Payload       string     `json:"payload,omitempty" envconfig:"PAYLOAD"`
	Tags          string     `json:"tags,omitempty" envconfig:"TAGS" validate:"omitempty,commalist"`
	Attributes    string     `json:"attributes,omitempty" envconfig:"ATTRIBUTES" validate:"omitempty,commalist"`
	Delay         Duration   `json:"delay,omitempty" envconfig:"DELAY" validate:"gte=0"`
	Devtools      bool       `json:"devtools,omitempty" envconfig:"DEVTOOLS"`
	RemoveCSP     bool       `json:"remove_csp" envconfig:"REMOVE_CSP"`
	Headless      bool       `json:"headless,omitempty" envconfig:"HEADLESS"`
	AutoRun       bool       `json:"auto_run,omitempty" envconfig:"AUTO_RUN"`
	Rate          float64    `json:"rate,omitempty" envconfig:"RATE" validate:"gte=0"`
	IssueFile     string     `json:"issue_file" envconfig:"ISSUE_FILE" validate:"required"`
	StateDir      string     `json:"state_dir" envconfig:"STATE_DIR" validate:"required"`
	WaitTimeout   Duration   `json:"wait_timeout" envconfig:"WAIT_TIMEOUT" validate:"gt=0"`
	Scope         rule.Scope `json:"scope,omitempty" envconfig:"SCOPE"`
}

// Default returns the settings used when nothing overrides them.
func Default(home string) Settings {
	state := filepath.Join(home, ".AutoVader")

	return Settings{
		ExtensionPath: browser.DefaultExtensionPath(home),
		ChromiumPath:  browser.DetectChromium(home, runtime.GOOS),
		Tags:          "div,b,span",
		Attributes:    "data-src,title",
		RemoveCSP:     true,
		Rate:          1,
		IssueFile:     filepath.Join(state, "issues.jsonl"),
		StateDir:      state,
		WaitTimeout:   Duration(browser.DefaultWaitTimeout),
	}
}

// DefaultPath is the settings file read when none is given.
func DefaultPath(home string) string {
	return filepath.Join(home, ".AutoVader", "settings.yaml")
}

// Load layers the file at path (if it exists) and the environment over
// Default and validates the result.
func Load(home, path string) (Settings, error) {
	s := Default(home)

	p, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return s, errors.New("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(p, &s, yaml.DisallowUnknownFields); err != nil {
			return s, errors.New("failed to parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return s, errors.New("failed to read environment: %w", err)
	}

	s.ExtensionPath = expand(home, s.ExtensionPath)
	s.ChromiumPath = expand(home, s.ChromiumPath)
	s.IssueFile = expand(home, s.IssueFile)
	s.StateDir = expand(home, s.StateDir)

	return s, s.Validate()
}

var (
	validate = validator.New()
	list     = regexp.MustCompile(`^[A-Za-z0-9_:-]+(,[A-Za-z0-9_:-]+)*$`)
)

func init() {
	validate.RegisterValidation("commalist", func(fl validator.FieldLevel) bool {
		return list.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
	})
}

func (s Settings) Validate() error {
	var err error
	if e := validate.Struct(s); e != nil {
		err = errors.New("invalid settings: %w", e)
	}
	if e := s.Scope.Validate(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

// Launch returns the browser options for these settings.
func (s Settings) Launch() browser.LaunchOptions {
	return browser.LaunchOptions{
		ExtensionPath:  s.ExtensionPath,
		ExecutablePath: s.ChromiumPath,
		UserDataDir:    filepath.Join(s.StateDir, "browser-profile"),
		Headless:       s.Headless,
		Devtools:       s.Devtools,
	}
}

func expand(home, path string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Duration reads "1.5s" style strings, or a number of milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(p []byte) error {
	var v any
	if err := json.Unmarshal(p, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Millisecond)))
		return nil
	case string:
		return d.Decode(v)
	default:
		return errors.New("invalid duration %s", p)
	}
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
