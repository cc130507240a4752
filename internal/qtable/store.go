// Package qtable holds the learned state-action values.
package qtable

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/state"
)

var (
	// ErrUnknownState indicates no action has been recorded for a state.
	ErrUnknownState = errors.New("unknown state")
	// ErrNonFinite indicates an attempt to store NaN or an infinity.
	ErrNonFinite = errors.New("non-finite value")
	// ErrUnknownAction indicates an action outside the store's catalog.
	ErrUnknownAction = errors.New("action not in catalog")
)

// Table is a plain copy of the store's contents.
type Table map[state.Key]map[actions.Action]float64

// Store captures the operations the policy and learner rely on.
type Store interface {
	Get(s state.Key, a actions.Action) float64
	Set(s state.Key, a actions.Action, v float64) error
	BestAction(s state.Key) (actions.Action, error)
	MaxValue(s state.Key) float64
	Snapshot() Table
	Len() int
}

// MemoryStore is a mutex-guarded in-memory Store. Entries are only ever
// added or overwritten.
type MemoryStore struct {
	mu      sync.RWMutex
	catalog actions.Catalog
	table   map[state.Key]map[actions.Action]float64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store for the given catalog.
func NewMemoryStore(catalog actions.Catalog) *MemoryStore {
	return &MemoryStore{
		catalog: catalog,
		table:   make(map[state.Key]map[actions.Action]float64),
	}
}

// Catalog returns the actions this store accepts.
func (m *MemoryStore) Catalog() actions.Catalog { return m.catalog }

// Get returns the stored value, or 0 when the pair was never set.
func (m *MemoryStore) Get(s state.Key, a actions.Action) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table[s][a]
}

// Set inserts or overwrites a value.
func (m *MemoryStore) Set(s state.Key, a actions.Action, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("set %s/%s: %w", s, a, ErrNonFinite)
	}
	if !m.catalog.Contains(a) {
		return fmt.Errorf("set %s/%s: %w", s, a, ErrUnknownAction)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.table[s]
	if !ok {
		row = make(map[actions.Action]float64)
		m.table[s] = row
	}
	row[a] = v
	return nil
}

// BestAction returns the highest valued recorded action for s. Ties go to
// the action that comes first in the catalog.
func (m *MemoryStore) BestAction(s state.Key) (actions.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.table[s]
	if !ok || len(row) == 0 {
		return "", ErrUnknownState
	}
	candidates := make([]actions.Action, 0, len(row))
	values := make([]float64, 0, len(row))
	for i := 0; i < m.catalog.Len(); i++ {
		a := m.catalog.At(i)
		if v, ok := row[a]; ok {
			candidates = append(candidates, a)
			values = append(values, v)
		}
	}
	return candidates[floats.MaxIdx(values)], nil
}

// MaxValue returns the best recorded value for s, or 0 when s is unknown.
func (m *MemoryStore) MaxValue(s state.Key) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.table[s]
	if !ok || len(row) == 0 {
		return 0
	}
	best := math.Inf(-1)
	for _, v := range row {
		if v > best {
			best = v
		}
	}
	return best
}

// Len returns the number of known states.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table)
}

// Snapshot returns a deep copy taken under the read lock.
func (m *MemoryStore) Snapshot() Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Table, len(m.table))
	for s, row := range m.table {
		cp := make(map[actions.Action]float64, len(row))
		for a, v := range row {
			cp[a] = v
		}
		out[s] = cp
	}
	return out
}

// Serialize encodes a consistent copy of the table as indented JSON.
func (m *MemoryStore) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode q-table: %w", err)
	}
	return data, nil
}

// Deserialize replaces the table with the decoded payload. Values for
// actions outside the catalog are dropped, as are states left empty. On
// error the current contents are kept.
func (m *MemoryStore) Deserialize(data []byte) error {
	var raw map[string]map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode q-table: %w", err)
	}
	table := make(map[state.Key]map[actions.Action]float64, len(raw))
	for s, entries := range raw {
		row := make(map[actions.Action]float64, len(entries))
		for a, v := range entries {
			action := actions.Action(a)
			if !m.catalog.Contains(action) || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row[action] = v
		}
		if len(row) > 0 {
			table[state.Key(s)] = row
		}
	}
	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
	return nil
}
