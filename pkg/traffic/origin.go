package traffic

import (
	"net/url"
	"strings"

	"autovader.dev/cmd/pkg/errors"
)

// Origin returns scheme://host with the port kept only when it differs from
// the scheme default. Unparseable input is returned unchanged.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return raw
	}

	var sb strings.Builder

	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	sb.WriteString(hostname(u))

	if port := u.Port(); port != "" && !isDefaultPort(u.Scheme, port) {
		sb.WriteString(":")
		sb.WriteString(port)
	}

	return sb.String()
}

// StrictOrigin returns scheme://host, keeping any explicit port.
func StrictOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", errors.New("invalid url %q: missing scheme or host", raw)
	}

	origin := u.Scheme + "://" + hostname(u)
	if port := u.Port(); port != "" {
		origin += ":" + port
	}

	return origin, nil
}

// SameOrigin compares the strict origins of a and b case-insensitively.
func SameOrigin(a, b string) bool {
	oa, err := StrictOrigin(a)
	if err != nil {
		return false
	}
	ob, err := StrictOrigin(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(oa, ob)
}

func hostname(u *url.URL) string {
	host := u.Hostname()
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

func isDefaultPort(scheme, port string) bool {
	switch {
	case scheme == "http" && port == "80":
		return true
	case scheme == "https" && port == "443":
		return true
	}
	return false
}
