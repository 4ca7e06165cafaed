package dht

import (
	"sync"

	"github.com/ddcm-project/kadnode/metrics"
)

// Storage is the local key-value store contract (§3, §4 leaf "Storage"):
// an in-memory key→value mapping with no TTL; Store overwrites. Persistence
// across restarts is explicitly a non-goal (§1).
type Storage struct {
	mu   sync.RWMutex
	data map[Identifier][]byte
}

// NewStorage creates an empty Storage.
func NewStorage() *Storage {
	return &Storage{data: make(map[Identifier][]byte)}
}

// Store saves value under key, overwriting any previous value.
func (s *Storage) Store(key Identifier, value []byte) {
	cp := append([]byte(nil), value...)
	s.mu.Lock()
	s.data[key] = cp
	n := len(s.data)
	s.mu.Unlock()
	metrics.StorageKeys.Set(int64(n))
}

// Get returns the value for key and whether it was present.
func (s *Storage) Get(key Identifier) ([]byte, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Exist reports whether key is present.
func (s *Storage) Exist(key Identifier) bool {
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok
}

// Len returns the number of stored keys.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
