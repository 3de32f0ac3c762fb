package traffic

import (
	"strings"
)

// EnumerateQuery returns one URL per query parameter of rawURL, each with
// that parameter's value replaced by canary+payload. The URL is handled as
// a raw string: nothing is decoded or re-encoded, and the fragment is kept.
// A URL without a query string is returned as the only element.
func EnumerateQuery(rawURL, canary, payload string) []string {
	base, query, ok := strings.Cut(rawURL, "?")
	if !ok {
		return []string{rawURL}
	}

	query, fragment, hasFragment := strings.Cut(query, "#")
	if hasFragment {
		fragment = "#" + fragment
	}

	params := split(query, "&")
	if len(params) == 0 {
		return []string{rawURL}
	}

	urls := make([]string, 0, len(params))

	for i := range params {
		var sb strings.Builder

		sb.WriteString(base)
		sb.WriteByte('?')
		sb.WriteString(inject(params, i, canary+payload))
		sb.WriteString(fragment)

		urls = append(urls, sb.String())
	}

	return urls
}

func EnumerateQueryAll(urls []string, canary, payload string) []string {
	var all []string
	for _, u := range urls {
		all = append(all, EnumerateQuery(u, canary, payload)...)
	}
	return all
}

// EnumerateBody returns one copy of rec per urlencoded body parameter, with
// that parameter's value replaced by canary+payload. Records with any other
// content type, or with no body parameters, produce nothing.
func EnumerateBody(rec *Record, canary, payload string) []*Record {
	if rec == nil || rec.ContentType() != "application/x-www-form-urlencoded" {
		return nil
	}

	params := split(string(rec.Body), "&")

	recs := make([]*Record, 0, len(params))

	for i := range params {
		c := rec.Clone()
		c.SetBody([]byte(inject(params, i, canary+payload)))
		recs = append(recs, c)
	}

	return recs
}

func EnumerateBodyAll(flows []Flow, canary, payload string) []*Record {
	var all []*Record
	for _, f := range flows {
		all = append(all, EnumerateBody(f.Request, canary, payload)...)
	}
	return all
}

func inject(params []string, i int, value string) string {
	var sb strings.Builder

	for j, param := range params {
		if j > 0 {
			sb.WriteByte('&')
		}
		if j != i {
			sb.WriteString(param)
			continue
		}
		name, _, _ := strings.Cut(param, "=")
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(value)
	}

	return sb.String()
}

func split(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
