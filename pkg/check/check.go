package check // import "autovader.dev/cmd/pkg/check"

import "sync"

// S tallies the outcome of a scan run. It is safe for concurrent use.
type S struct {
	mu sync.Mutex

	Targets struct {
		Rendered int `json:"rendered"`
		Failed   int `json:"failed"`
		Skipped  int `json:"skipped"`
	} `json:"targets"`

	Bindings struct {
		Accepted int `json:"accepted"`
		Rejected int `json:"rejected"`
	} `json:"bindings"`

	Issues struct {
		Reported  int `json:"reported"`
		Duplicate int `json:"duplicate"`
	} `json:"issues"`
}

func (s *S) Rendered() { s.add(&s.Targets.Rendered) }
func (s *S) Failed()   { s.add(&s.Targets.Failed) }
func (s *S) Skipped()  { s.add(&s.Targets.Skipped) }

func (s *S) Accepted() { s.add(&s.Bindings.Accepted) }
func (s *S) Rejected() { s.add(&s.Bindings.Rejected) }

func (s *S) Reported()  { s.add(&s.Issues.Reported) }
func (s *S) Duplicate() { s.add(&s.Issues.Duplicate) }

func (s *S) add(n *int) {
	s.mu.Lock()
	*n++
	s.mu.Unlock()
}

// Summary is a lock-free copy suitable for rendering.
type Summary struct {
	Rendered  int `json:"rendered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Accepted  int `json:"bindingsAccepted"`
	Rejected  int `json:"bindingsRejected"`
	Reported  int `json:"issuesReported"`
	Duplicate int `json:"issuesDuplicate"`
}

func (s *S) Results() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Summary{
		Rendered:  s.Targets.Rendered,
		Failed:    s.Targets.Failed,
		Skipped:   s.Targets.Skipped,
		Accepted:  s.Bindings.Accepted,
		Rejected:  s.Bindings.Rejected,
		Reported:  s.Issues.Reported,
		Duplicate: s.Issues.Duplicate,
	}
}
