package finding_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/errors"
	"autovader.dev/cmd/pkg/finding"

	"github.com/google/go-cmp/cmp"
)

func TestMapSeverity(t *testing.T) {
	cases := map[string]finding.Severity{
		"high":     finding.High,
		"MEDIUM":   finding.Medium,
		"Low":      finding.Low,
		"critical": finding.Information,
		"":         finding.Information,
	}

	for in, want := range cases {
		if got := finding.MapSeverity(in); got != want {
			t.Errorf("MapSeverity(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestMapConfidence(t *testing.T) {
	cases := map[string]finding.Confidence{
		"certain":   finding.Certain,
		"High":      finding.Certain,
		"firm":      finding.Firm,
		"medium":    finding.Firm,
		"tentative": finding.Tentative,
		"low":       finding.Tentative,
		"maybe":     finding.Tentative,
		"":          finding.Tentative,
	}

	for in, want := range cases {
		if got := finding.MapConfidence(in); got != want {
			t.Errorf("MapConfidence(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	v, err := finding.Decode(finding.MessageType, []byte(`{
		"isInteresting": true,
		"title": "Web message XSS",
		"dataAccessed": {"a": 1},
		"verified": true,
		"sink": null
	}`))
	if err != nil {
		t.Fatal(err)
	}

	m := v.(*finding.Message)
	if m.DataAccessed != `{"a": 1}` || m.Verified != "true" || m.Sink != "" {
		t.Errorf("got %+v", m)
	}

	if _, err := finding.Decode(finding.SinkType, []byte(`{`)); err == nil {
		t.Error("expected error for bad JSON")
	}

	if _, err := finding.ParseType("banner"); !errors.Is(err, errors.ErrUnknownKind) {
		t.Errorf("ParseType: got %v", err)
	}
}

func TestSinkIssue(t *testing.T) {
	issue := finding.SinkIssue(&finding.Sink{
		Sink:       "element.innerHTML",
		Value:      `<img src=x onerror=alert(1)>zq12345678`,
		Canary:     "zq12345678",
		StackTrace: "at render (app.js:1:2)",
	}, "https://shop.example/search")

	if issue.Name != "DOM XSS Sink: element.innerHTML" {
		t.Errorf("name: got %q", issue.Name)
	}
	if issue.Severity != finding.Information || issue.Confidence != finding.Certain {
		t.Errorf("rating: got %s/%s", issue.Severity, issue.Confidence)
	}

	want := "<p>A DOM XSS sink was identified in the application.</p>" +
		"<p><b>Sink:</b> element.innerHTML</p>" +
		"<p><b>Value:</b> &lt;img src=x onerror=alert(1)&gt;zq12345678</p>" +
		"<p><b>Canary:</b> zq12345678</p>" +
		"<p><b>Stack Trace:</b><pre>at render (app.js:1:2)</pre></p>"

	if diff := cmp.Diff(want, issue.Detail); diff != "" {
		t.Errorf("detail (-want +got):\n%s", diff)
	}
}

func TestMessageIssue(t *testing.T) {
	cases := []struct {
		msg  finding.Message
		name string
		sev  finding.Severity
		conf finding.Confidence
	}{
		0: {finding.Message{Title: "Origin not checked", Severity: "High", Confidence: "certain"}, "Origin not checked", finding.High, finding.Certain},
		1: {finding.Message{Severity: "medium", Confidence: "medium"}, "PostMessage Vulnerability", finding.Medium, finding.Firm},
		2: {finding.Message{}, "PostMessage Vulnerability", finding.Information, finding.Tentative},
	}

	for _, cas := range cases {
		t.Run("", func(t *testing.T) {
			issue := finding.MessageIssue(&cas.msg, "https://a.example/")

			if issue.Name != cas.name || issue.Severity != cas.sev || issue.Confidence != cas.conf {
				t.Errorf("got %q %s/%s", issue.Name, issue.Severity, issue.Confidence)
			}
			if !strings.Contains(issue.Detail, "<p><b>Message Type:</b> </p>") {
				t.Errorf("detail: %s", issue.Detail)
			}
		})
	}
}

func TestDeduplicator(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)

	sink := finding.IssueSinkFunc(func(_ context.Context, i finding.Issue) error {
		mu.Lock()
		got = append(got, i.Name)
		mu.Unlock()
		return nil
	})

	existing := finding.Issue{URL: "https://a.example/", Name: "DOM XSS Source: location.hash", Severity: finding.Information}
	d := finding.NewDeduplicator(sink, existing)

	ctx := context.Background()

	issues := []finding.Issue{
		{URL: "https://A.example/", Name: "dom xss source: location.hash", Severity: finding.Information},
		{URL: "https://a.example/", Name: "DOM XSS Sink: eval", Severity: finding.Information},
		{URL: "https://a.example/", Name: "DOM XSS Sink: eval", Severity: finding.Information},
		{URL: "https://a.example/", Name: "DOM XSS Sink: eval", Severity: finding.High},
	}

	var added []bool
	for _, i := range issues {
		ok, err := d.Add(ctx, i)
		if err != nil {
			t.Fatal(err)
		}
		added = append(added, ok)
	}

	if diff := cmp.Diff([]bool{false, true, false, true}, added); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"DOM XSS Sink: eval", "DOM XSS Sink: eval"}, got); diff != "" {
		t.Errorf("reported (-want +got):\n%s", diff)
	}
}

func TestDeduplicatorSinkError(t *testing.T) {
	fail := true
	d := finding.NewDeduplicator(finding.IssueSinkFunc(func(context.Context, finding.Issue) error {
		if fail {
			return errors.New("disk full")
		}
		return nil
	}))

	i := finding.Issue{URL: "https://a.example/", Name: "x"}

	if _, err := d.Add(context.Background(), i); err == nil {
		t.Fatal("expected error")
	}

	fail = false

	// a failed report is retried
	if ok, err := d.Add(context.Background(), i); err != nil || !ok {
		t.Errorf("got %t, %v", ok, err)
	}
}

func TestFileSink(t *testing.T) {
	sink := finding.NewFileSink(filepath.Join(t.TempDir(), "nested", "issues.jsonl"))

	none, err := sink.Issues()
	if err != nil || len(none) != 0 {
		t.Fatalf("fresh sink: %v, %v", none, err)
	}

	ctx := context.Background()
	want := []finding.Issue{
		finding.SourceIssue(&finding.Source{Source: "location.search"}, "https://a.example/"),
		finding.SinkIssue(&finding.Sink{Sink: "document.write"}, "https://b.example/"),
	}

	for _, i := range want {
		if err := (finding.MultiSink{sink, finding.LogSink{}}).Report(ctx, i); err != nil {
			t.Fatal(err)
		}
	}

	got, err := sink.Issues()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestStore(t *testing.T) {
	s := finding.NewStore()

	s.StoreSink("https://a.example:443/x", finding.Sink{Sink: "eval"})
	s.StoreSource("https://a.example/y", finding.Source{Source: "location.hash"})
	s.StoreMessage("http://b.example:8080/", finding.Message{Title: "t"})

	if diff := cmp.Diff([]string{"http://b.example:8080", "https://a.example"}, s.Origins()); diff != "" {
		t.Errorf("origins (-want +got):\n%s", diff)
	}

	d, ok := s.Data("https://a.example")
	if !ok || d.TotalCount() != 2 {
		t.Fatalf("got %+v, %t", d, ok)
	}

	// returned data is a copy
	d.Sinks[0].Sink = "changed"
	if d2, _ := s.Data("https://a.example"); d2.Sinks[0].Sink != "eval" {
		t.Error("store data mutated through copy")
	}

	if s.TotalCount() != 3 {
		t.Errorf("total: got %d", s.TotalCount())
	}

	s.Clear("https://a.example")
	if _, ok := s.Data("https://a.example"); ok {
		t.Error("origin not cleared")
	}

	s.ClearAll()
	if s.TotalCount() != 0 {
		t.Error("store not cleared")
	}
}

func TestReporter(t *testing.T) {
	var (
		tally  check.S
		issues []finding.Issue
	)

	r := finding.NewReporter(
		finding.WithTally(&tally),
		finding.WithDeduplicator(finding.NewDeduplicator(finding.IssueSinkFunc(func(_ context.Context, i finding.Issue) error {
			issues = append(issues, i)
			return nil
		}))),
	)

	ctx := context.Background()
	payload := []byte(`{"isInteresting":true,"sink":"innerHTML","value":"zq12345678","canary":"zq12345678"}`)

	for range 2 {
		if err := r.Report(ctx, "SINK", payload, "https://a.example/page?q=1"); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Report(ctx, "sink", []byte(`not json`), "https://a.example/"); err == nil {
		t.Error("expected decode error")
	}
	if err := r.Report(ctx, "banner", payload, "https://a.example/"); err == nil {
		t.Error("expected type error")
	}

	if len(issues) != 1 || issues[0].URL != "https://a.example/page?q=1" {
		t.Errorf("issues: %+v", issues)
	}

	want := check.Summary{Reported: 1, Duplicate: 1}
	if diff := cmp.Diff(want, tally.Results()); diff != "" {
		t.Errorf("tally (-want +got):\n%s", diff)
	}

	if d, _ := r.Store.Data("https://a.example"); len(d.Sinks) != 2 {
		t.Errorf("stored sinks: got %d", len(d.Sinks))
	}
}
