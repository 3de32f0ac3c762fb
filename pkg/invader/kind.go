package invader

import (
	"strings"

	"autovader.dev/cmd/pkg/errors"
)

// Kind is a scan kind. Each kind renders targets under its own DOM Invader
// profile.
type Kind string

const (
	Open                      Kind = "open"
	Query                     Kind = "query"
	Post                      Kind = "post"
	WebMessage                Kind = "web-message"
	InjectSources             Kind = "inject-sources"
	InjectSourcesClick        Kind = "inject-sources-click"
	PrototypePollution        Kind = "prototype-pollution"
	PrototypePollutionGadgets Kind = "prototype-pollution-gadgets"
	Redirect                  Kind = "redirect"
)

var kinds = []Kind{
	Open,
	Query,
	Post,
	WebMessage,
	InjectSources,
	InjectSourcesClick,
	PrototypePollution,
	PrototypePollutionGadgets,
	Redirect,
}

func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.New("%q: %w", s, errors.ErrUnknownKind)
}

func (k Kind) String() string {
	return string(k)
}

// Interactive reports whether the kind leaves the browser open for the
// user instead of scanning a batch.
func (k Kind) Interactive() bool {
	return k == Open || k == Redirect
}

func (k *Kind) UnmarshalText(p []byte) error {
	v, err := ParseKind(string(p))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
