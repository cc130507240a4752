package policy

import (
	"math/rand"
	"time"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/qtable"
	"github.com/cartridge/voxel-agent/internal/state"
)

// EpsilonGreedy explores with probability epsilon and otherwise exploits the
// best recorded action, falling back to exploration for unknown states.
type EpsilonGreedy struct {
	store   qtable.Store
	epsilon float64
	rng     *rand.Rand
	explore *RandomPolicy
}

// NewEpsilonGreedy creates an epsilon-greedy policy seeded from the clock
func NewEpsilonGreedy(store qtable.Store, catalog actions.Catalog, epsilon float64) *EpsilonGreedy {
	return NewEpsilonGreedyWithSource(store, catalog, epsilon, rand.NewSource(time.Now().UnixNano()))
}

// NewEpsilonGreedyWithSource creates an epsilon-greedy policy whose draws all
// come from src
func NewEpsilonGreedyWithSource(store qtable.Store, catalog actions.Catalog, epsilon float64, src rand.Source) *EpsilonGreedy {
	rng := rand.New(src)
	return &EpsilonGreedy{
		store:   store,
		epsilon: epsilon,
		rng:     rng,
		explore: &RandomPolicy{rng: rng, catalog: catalog},
	}
}

// Epsilon returns the exploration rate
func (p *EpsilonGreedy) Epsilon() float64 { return p.epsilon }

// SelectAction implements Policy interface
func (p *EpsilonGreedy) SelectAction(s state.Key) actions.Action {
	if p.rng.Float64() < p.epsilon {
		return p.explore.SelectAction(s)
	}
	best, err := p.store.BestAction(s)
	if err != nil {
		return p.explore.SelectAction(s)
	}
	return best
}
