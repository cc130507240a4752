package policy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/qtable"
)

func TestRandomPolicy_StaysInCatalog(t *testing.T) {
	catalog := actions.Forage()
	policy := NewRandomWithSource(catalog, rand.NewSource(1))

	for i := 0; i < 100; i++ {
		a := policy.SelectAction("any")
		require.True(t, catalog.Contains(a), "action %q out of catalog", a)
	}
}

func TestRandomPolicy_MultipleSelections(t *testing.T) {
	policy := NewRandom(actions.Forage())
	seen := make(map[actions.Action]bool)

	// Generate 100 actions, should see some variety
	for i := 0; i < 100; i++ {
		seen[policy.SelectAction("S")] = true
	}

	// Should have at least 2 different actions (highly probable)
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestEpsilonGreedy_UnknownStateFallsBackToCatalog(t *testing.T) {
	catalog := actions.Forage()
	store := qtable.NewMemoryStore(catalog)
	policy := NewEpsilonGreedyWithSource(store, catalog, 0, rand.NewSource(3))

	a := policy.SelectAction("S1")
	assert.True(t, catalog.Contains(a))
	assert.Equal(t, 0, store.Len(), "selection must not touch the table")
}

func TestEpsilonGreedy_ExploitsBestAction(t *testing.T) {
	catalog := actions.Forage()
	store := qtable.NewMemoryStore(catalog)
	require.NoError(t, store.Set("S1", actions.Mine, 3))
	require.NoError(t, store.Set("S1", actions.Walk, 1))
	policy := NewEpsilonGreedyWithSource(store, catalog, 0, rand.NewSource(3))

	for i := 0; i < 50; i++ {
		require.Equal(t, actions.Mine, policy.SelectAction("S1"))
	}
}

func TestEpsilonGreedy_ReevaluatesEveryCall(t *testing.T) {
	catalog := actions.Forage()
	store := qtable.NewMemoryStore(catalog)
	require.NoError(t, store.Set("S1", actions.Mine, 3))
	policy := NewEpsilonGreedyWithSource(store, catalog, 0, rand.NewSource(3))

	require.Equal(t, actions.Mine, policy.SelectAction("S1"))
	require.NoError(t, store.Set("S1", actions.Collect, 5))
	assert.Equal(t, actions.Collect, policy.SelectAction("S1"))
}

func TestEpsilonGreedy_FullExplorationCoversCatalog(t *testing.T) {
	catalog := actions.Evade()
	store := qtable.NewMemoryStore(catalog)
	require.NoError(t, store.Set("S1", actions.Jump, 100))
	policy := NewEpsilonGreedyWithSource(store, catalog, 1, rand.NewSource(42))

	counts := make(map[actions.Action]int)
	for i := 0; i < 10000; i++ {
		counts[policy.SelectAction("S1")]++
	}
	for _, a := range catalog.All() {
		assert.Greater(t, counts[a], 0, "action %q never explored", a)
	}
}

func TestEpsilonGreedy_UnknownStateIsUniform(t *testing.T) {
	catalog := actions.Forage()
	store := qtable.NewMemoryStore(catalog)
	policy := NewEpsilonGreedyWithSource(store, catalog, 0, rand.NewSource(11))

	counts := make(map[actions.Action]int)
	const trials = 10000
	for i := 0; i < trials; i++ {
		counts[policy.SelectAction("unseen")]++
	}
	expected := float64(trials) / float64(catalog.Len())
	for _, a := range catalog.All() {
		assert.InDelta(t, expected, float64(counts[a]), expected*0.15, "action %q", a)
	}
}
