// Package sync provides a typed concurrent map on top of xsync.
package sync

import "github.com/puzpuzpuz/xsync"

// Map is a concurrent map from K to V, hashed by the function given to
// NewMap.
type Map[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

func NewMap[K comparable, V any](hasher func(K) uint64) *Map[K, V] {
	return &Map[K, V]{m: xsync.NewTypedMapOf[K, V](hasher)}
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	return m.m.Load(key)
}

func (m *Map[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.m.Load(key)
	return ok
}
