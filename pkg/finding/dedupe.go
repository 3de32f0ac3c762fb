package finding

import (
	"context"
	"log/slog"
	"sync"
)

// Deduplicator forwards each distinct issue to its sink once.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
	sink IssueSink
}

// NewDeduplicator returns a Deduplicator that treats existing as already
// reported.
func NewDeduplicator(sink IssueSink, existing ...Issue) *Deduplicator {
	d := &Deduplicator{
		seen: make(map[string]struct{}, len(existing)),
		sink: sink,
	}
	for _, i := range existing {
		d.seen[i.Key()] = struct{}{}
	}
	return d
}

// Add reports issue unless an equal one was seen before. It returns
// whether the issue was new.
func (d *Deduplicator) Add(ctx context.Context, issue Issue) (bool, error) {
	key := issue.Key()

	d.mu.Lock()
	if _, ok := d.seen[key]; ok {
		d.mu.Unlock()

		slog.Info("Skipped adding duplicate issue",
			"url", issue.URL,
			"name", issue.Name,
		)

		return false, nil
	}
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	if d.sink != nil {
		if err := d.sink.Report(ctx, issue); err != nil {
			d.mu.Lock()
			delete(d.seen, key)
			d.mu.Unlock()
			return false, err
		}
	}

	slog.Info("Reported issue",
		"url", issue.URL,
		"name", issue.Name,
		"severity", issue.Severity,
	)

	return true, nil
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
