// Package persistence stores q-table snapshots and schedules their writes.
package persistence

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSnapshot indicates the backend holds no snapshot yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Backend stores a single snapshot, replacing the previous one atomically.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Save replaces the stored snapshot.
	Save(ctx context.Context, data []byte) error

	// Load returns the stored snapshot or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)

	// Close the backend and cleanup resources
	Close() error
}

// MemoryBackend keeps the snapshot in memory; useful for tests.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.data...), nil
}

// Saves returns how many times Save was called.
func (m *MemoryBackend) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
