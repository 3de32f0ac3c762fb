package finding

import (
	"slices"
	"sync"

	"autovader.dev/cmd/pkg/traffic"
)

type OriginData struct {
	Sinks    []Sink    `json:"sinks,omitempty"`
	Sources  []Source  `json:"sources,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

func (d OriginData) TotalCount() int {
	return len(d.Sinks) + len(d.Sources) + len(d.Messages)
}

// Store keeps decoded findings by origin. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	m  map[string]*OriginData
}

func NewStore() *Store {
	return &Store{m: make(map[string]*OriginData)}
}

func (s *Store) data(url string) *OriginData {
	origin := traffic.Origin(url)
	d, ok := s.m[origin]
	if !ok {
		d = new(OriginData)
		s.m[origin] = d
	}
	return d
}

func (s *Store) StoreSink(url string, v Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(url)
	d.Sinks = append(d.Sinks, v)
}

func (s *Store) StoreSource(url string, v Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(url)
	d.Sources = append(d.Sources, v)
}

func (s *Store) StoreMessage(url string, v Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data(url)
	d.Messages = append(d.Messages, v)
}

// Data returns a copy of what is stored for origin.
func (s *Store) Data(origin string) (OriginData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.m[origin]
	if !ok {
		return OriginData{}, false
	}

	return OriginData{
		Sinks:    slices.Clone(d.Sinks),
		Sources:  slices.Clone(d.Sources),
		Messages: slices.Clone(d.Messages),
	}, true
}

func (s *Store) Origins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	origins := make([]string, 0, len(s.m))
	for o := range s.m {
		origins = append(origins, o)
	}
	slices.Sort(origins)
	return origins
}

func (s *Store) Clear(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, origin)
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}

func (s *Store) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, d := range s.m {
		n += d.TotalCount()
	}
	return n
}
