package traffic

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Forms synthesises one request per <form> found in an HTML response. GET
// forms carry their fields in the query string, others in an urlencoded
// body. Flows without an HTML response produce nothing.
func Forms(f Flow) []*Record {
	if f.Request == nil || f.Response == nil || !strings.Contains(f.Response.ContentType(), "html") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(f.Response.Body))
	if err != nil {
		return nil
	}

	base, err := url.Parse(nonempty(f.Response.URL, f.Request.URL))
	if err != nil {
		return nil
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := base.Parse(href); err == nil {
			base = u
		}
	}

	var recs []*Record

	doc.Find("form").Each(func(_ int, form *goquery.Selection) {
		action, err := base.Parse(form.AttrOr("action", ""))
		if err != nil {
			return
		}
		action.Fragment = ""

		method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))
		if method != http.MethodPost {
			method = http.MethodGet
		}

		fields := formFields(form)

		rec := NewRequest(method, "")
		rec.Tool = "form"
		if ua := f.Request.Header.Get("User-Agent"); ua != "" {
			rec.Header.Set("User-Agent", ua)
		}
		if cookie := f.Request.Header.Get("Cookie"); cookie != "" {
			rec.Header.Set("Cookie", cookie)
		}

		switch method {
		case http.MethodGet:
			if len(fields) != 0 {
				action.RawQuery = strings.Join(fields, "&")
			}
			rec.URL = action.String()
		default:
			rec.URL = action.String()
			rec.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec.Header.Set("Referer", base.String())
			rec.SetBody([]byte(strings.Join(fields, "&")))
		}

		recs = append(recs, rec)
	})

	return recs
}

// formFields returns name=value pairs, urlencoded, in document order.
func formFields(form *goquery.Selection) []string {
	var fields []string

	add := func(name, value string) {
		fields = append(fields, url.QueryEscape(name)+"="+url.QueryEscape(value))
	}

	form.Find("input, select, textarea").Each(func(_ int, el *goquery.Selection) {
		name, ok := el.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := el.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(el) {
		case "textarea":
			add(name, el.Text())
		case "select":
			opt := el.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = el.Find("option").First()
			}
			if opt.Length() == 0 {
				add(name, "")
				return
			}
			add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
		default:
			switch strings.ToLower(el.AttrOr("type", "text")) {
			case "submit", "button", "reset", "image", "file":
				return
			case "checkbox", "radio":
				if _, checked := el.Attr("checked"); !checked {
					return
				}
				add(name, el.AttrOr("value", "on"))
			default:
				add(name, el.AttrOr("value", ""))
			}
		}
	})

	return fields
}
