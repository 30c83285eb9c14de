package store

import (
	"sync"
)

// Pool hands out store handles by database path, so several monitor actors
// configured with the same db_path share one open file and one writer.
// MemoryPath always yields a fresh ephemeral store, matching the usual
// in-memory database semantics of one private database per open.
type Pool struct {
	mu   sync.Mutex
	open map[string]Store
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{open: make(map[string]Store)}
}

// Get returns the store for the path, opening it on first use.
func (p *Pool) Get(path string) (Store, error) {
	if path == MemoryPath {
		return NewMemoryStore(), nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.open[path]; ok {
		return s, nil
	}
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	p.open[path] = s
	return s, nil
}

// Close closes every pooled store.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for path, s := range p.open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.open, path)
	}
	return firstErr
}
