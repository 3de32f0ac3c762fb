package finding

import (
	"context"
	"log/slog"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/errors"

	"github.com/lmittmann/tint"
)

// Reporter turns binding payloads into stored findings and issues.
type Reporter struct {
	Store   *Store
	Dedup   *Deduplicator
	Tally   *check.S
	Observe func(issue Issue, added bool)
}

func NewReporter(opts ...func(*Reporter)) *Reporter {
	r := &Reporter{
		Store: NewStore(),
		Dedup: NewDeduplicator(LogSink{}),
		Tally: new(check.S),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithStore(s *Store) func(*Reporter) {
	return func(r *Reporter) {
		r.Store = s
	}
}

func WithDeduplicator(d *Deduplicator) func(*Reporter) {
	return func(r *Reporter) {
		r.Dedup = d
	}
}

func WithTally(s *check.S) func(*Reporter) {
	return func(r *Reporter) {
		r.Tally = s
	}
}

func WithObserver(fn func(Issue, bool)) func(*Reporter) {
	return func(r *Reporter) {
		r.Observe = fn
	}
}

// Report decodes payload as a finding of the given type, stores it under
// the origin of url and reports the resulting issue if it is new.
func (r *Reporter) Report(ctx context.Context, typ string, payload []byte, url string) error {
	t, err := ParseType(typ)
	if err != nil {
		slog.Error("Unknown message type",
			"type", typ,
			tint.Err(err),
		)
		return err
	}

	v, err := Decode(t, payload)
	if err != nil {
		slog.Error("Failed to parse JSON",
			"type", typ,
			tint.Err(err),
		)
		return err
	}

	var issue Issue

	switch v := v.(type) {
	case *Sink:
		r.Store.StoreSink(url, *v)
		issue = SinkIssue(v, url)
	case *Source:
		r.Store.StoreSource(url, *v)
		issue = SourceIssue(v, url)
	case *Message:
		r.Store.StoreMessage(url, *v)
		issue = MessageIssue(v, url)
	default:
		return errors.New("unexpected finding %T", v)
	}

	added, err := r.Dedup.Add(ctx, issue)
	if err != nil {
		return errors.New("failed to report issue %q: %w", issue.Name, err)
	}

	if added {
		r.Tally.Reported()
	} else {
		r.Tally.Duplicate()
	}

	if r.Observe != nil {
		r.Observe(issue, added)
	}

	return nil
}
