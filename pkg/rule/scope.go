package rule

import (
	"net/url"
	"strings"

	"autovader.dev/cmd/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Scope admits targets by host/path globs, e.g. "shop.example/**" or
// "*.example:8443/api/*". Exclude wins over Include; an empty Include
// admits everything not excluded.
type Scope struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

func (s Scope) Validate() error {
	var err error
	for _, p := range append(append([]string(nil), s.Include...), s.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			err = errors.Join(err, errors.New("invalid scope pattern %q", p))
		}
	}
	return err
}

func (s Scope) InScope(rawURL string) bool {
	name, ok := scopeName(rawURL)
	if !ok {
		return false
	}

	for _, p := range s.Exclude {
		if match(p, name) {
			return false
		}
	}

	if len(s.Include) == 0 {
		return true
	}

	for _, p := range s.Include {
		if match(p, name) {
			return true
		}
	}

	return false
}

// Filter returns the in-scope urls and whether any url was rejected.
func (s Scope) Filter(urls []string) (in []string, rejected bool) {
	for _, u := range urls {
		if s.InScope(u) {
			in = append(in, u)
		} else {
			rejected = true
		}
	}
	return in, rejected
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(strings.ToLower(pattern), name)
	return err == nil && ok
}

func scopeName(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return host + path, true
}
