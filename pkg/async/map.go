package async // import "autovader.dev/cmd/pkg/async"

import (
	"sync"
)

// Map is a concurrent map whose Load blocks until the key is stored.
type Map[K comparable, V any] struct {
	mu   sync.Mutex
	m    map[K]V
	wait map[K]*sync.Cond
}

func (m *Map[K, V]) init() {
	if m.m == nil {
		m.m = make(map[K]V)
		m.wait = make(map[K]*sync.Cond)
	}
}

func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.init()
	m.m[key] = value

	if cond, ok := m.wait[key]; ok {
		delete(m.wait, key)
		cond.Broadcast()
	}
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.init()

	for {
		if v, ok := m.m[key]; ok {
			return v, true
		}

		cond, ok := m.wait[key]
		if !ok {
			cond = sync.NewCond(&m.mu)
			m.wait[key] = cond
		}

		cond.Wait()
	}
}

// Peek returns the value without waiting.
func (m *Map[K, V]) Peek(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.m[key]
	return v, ok
}
