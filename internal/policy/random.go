package policy

import (
	"math/rand"
	"time"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/state"
)

// RandomPolicy selects uniformly random actions from a catalog
type RandomPolicy struct {
	rng     *rand.Rand
	catalog actions.Catalog
}

// NewRandom creates a random policy seeded from the clock
func NewRandom(catalog actions.Catalog) *RandomPolicy {
	return NewRandomWithSource(catalog, rand.NewSource(time.Now().UnixNano()))
}

// NewRandomWithSource creates a random policy with a caller-supplied source
func NewRandomWithSource(catalog actions.Catalog, src rand.Source) *RandomPolicy {
	return &RandomPolicy{
		rng:     rand.New(src),
		catalog: catalog,
	}
}

// SelectAction implements Policy interface
func (p *RandomPolicy) SelectAction(_ state.Key) actions.Action {
	return p.catalog.Random(p.rng)
}
