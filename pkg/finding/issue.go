package finding

import (
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	High        Severity = "high"
	Medium      Severity = "medium"
	Low         Severity = "low"
	Information Severity = "information"
)

type Confidence string

const (
	Certain   Confidence = "certain"
	Firm      Confidence = "firm"
	Tentative Confidence = "tentative"
)

// MapSeverity maps a DOM Invader severity; anything unknown is information.
func MapSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(s)); sev {
	case High, Medium, Low:
		return sev
	}
	return Information
}

func MapConfidence(s string) Confidence {
	switch strings.ToLower(s) {
	case "certain", "high":
		return Certain
	case "firm", "medium":
		return Firm
	}
	return Tentative
}

// Issue is one reported finding. Detail is HTML.
type Issue struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Detail     string     `json:"detail"`
	URL        string     `json:"url"`
	Severity   Severity   `json:"severity"`
	Confidence Confidence `json:"confidence"`
	Type       Type       `json:"type"`
	Time       time.Time  `json:"time"`
}

// Key identifies an issue for deduplication.
func (i Issue) Key() string {
	return strings.ToLower(i.URL + "|" + i.Name + "|" + string(i.Severity))
}

func newIssue(typ Type, name, url string, sev Severity, conf Confidence, d *detail) Issue {
	return Issue{
		ID:         uuid.NewString(),
		Name:       name,
		Detail:     d.String(),
		URL:        url,
		Severity:   sev,
		Confidence: conf,
		Type:       typ,
		Time:       time.Now().UTC(),
	}
}

func SinkIssue(s *Sink, url string) Issue {
	d := new(detail)

	d.para("A DOM XSS sink was identified in the application.")
	d.field("Sink", s.Sink)
	d.field("Value", s.Value)
	d.field("Canary", s.Canary)
	d.pre("Stack Trace", s.StackTrace)
	d.pre("Outer HTML", s.OuterHTML)

	return newIssue(SinkType, "DOM XSS Sink: "+string(s.Sink), url, Information, Certain, d)
}

func SourceIssue(s *Source, url string) Issue {
	d := new(detail)

	d.para("A DOM XSS source was identified in the application.")
	d.field("Source", s.Source)
	d.field("Value", s.Value)
	d.field("Canary", s.Canary)
	d.pre("Stack Trace", s.StackTrace)

	return newIssue(SourceType, "DOM XSS Source: "+string(s.Source), url, Information, Certain, d)
}

func MessageIssue(m *Message, url string) Issue {
	d := new(detail)

	if m.Description != "" {
		d.para(html.EscapeString(string(m.Description)))
	}
	d.field("Message Type", m.MessageType)
	d.field("Origin", m.Origin)
	d.pre("PostMessage Data", m.PostMessageData)
	d.optional("Sink", m.Sink)
	d.optional("Sink Value", m.SinkValue)
	d.optional("Confidence", m.Confidence)
	d.optional("Canary", m.Canary)

	name := string(m.Title)
	if name == "" {
		name = "PostMessage Vulnerability"
	}

	return newIssue(MessageType, name, url, MapSeverity(string(m.Severity)), MapConfidence(string(m.Confidence)), d)
}

type detail struct {
	strings.Builder
}

// para writes trusted HTML.
func (d *detail) para(s string) {
	d.WriteString("<p>")
	d.WriteString(s)
	d.WriteString("</p>")
}

func (d *detail) field(label string, v Text) {
	d.WriteString("<p><b>")
	d.WriteString(label)
	d.WriteString(":</b> ")
	d.WriteString(html.EscapeString(string(v)))
	d.WriteString("</p>")
}

func (d *detail) optional(label string, v Text) {
	if v != "" {
		d.field(label, v)
	}
}

func (d *detail) pre(label string, v Text) {
	if v == "" {
		return
	}
	d.WriteString("<p><b>")
	d.WriteString(label)
	d.WriteString(":</b><pre>")
	d.WriteString(html.EscapeString(string(v)))
	d.WriteString("</pre></p>")
}
