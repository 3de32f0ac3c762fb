package finding

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"autovader.dev/cmd/pkg/errors"
)

type IssueSink interface {
	Report(context.Context, Issue) error
}

type IssueSinkFunc func(context.Context, Issue) error

func (fn IssueSinkFunc) Report(ctx context.Context, i Issue) error { return fn(ctx, i) }

// FileSink appends issues to a file, one JSON object per line.
type FileSink struct {
	Path string

	mu sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Report(_ context.Context, i Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return errors.New("failed to create issue directory: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New("failed to open issue file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(i); err != nil {
		return errors.New("failed to write issue: %w", err)
	}

	return nil
}

// Issues returns the issues written so far. A missing file has none.
func (s *FileSink) Issues() ([]Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("failed to open issue file: %w", err)
	}
	defer f.Close()

	return LoadIssues(f)
}

func LoadIssues(r io.Reader) ([]Issue, error) {
	var (
		dec    = json.NewDecoder(r)
		issues []Issue
	)

	for {
		var i Issue

		err := dec.Decode(&i)
		if errors.Is(err, io.EOF) {
			return issues, nil
		}
		if err != nil {
			return nil, errors.New("failed to read issue %d: %w", len(issues), err)
		}

		issues = append(issues, i)
	}
}

// LogSink logs every issue at info level.
type LogSink struct{}

func (LogSink) Report(_ context.Context, i Issue) error {
	slog.Info("finding: issue",
		"name", i.Name,
		"url", i.URL,
		"severity", i.Severity,
		"confidence", i.Confidence,
	)
	return nil
}

// MultiSink reports to every sink in order, stopping at the first error.
type MultiSink []IssueSink

func (m MultiSink) Report(ctx context.Context, i Issue) error {
	for _, s := range m {
		if err := s.Report(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
