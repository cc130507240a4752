// Package actions defines the discrete actions the agent can take.
package actions

import (
	"fmt"
	"math/rand"
)

// Action identifies one entry of a Catalog.
type Action string

const (
	Walk    Action = "walk"
	Jump    Action = "jump"
	Collect Action = "collect"
	Attack  Action = "attack"
	Mine    Action = "mine"

	DodgeLeft     Action = "dodge_left"
	DodgeRight    Action = "dodge_right"
	SprintAway    Action = "sprint_away"
	CounterAttack Action = "counter_attack"
)

// Catalog is a fixed, ordered set of actions. Order matters: it decides
// tie-breaks when several actions share the best value.
type Catalog struct {
	actions []Action
	index   map[Action]int
}

// NewCatalog builds a catalog from a non-empty list of distinct actions.
func NewCatalog(list ...Action) (Catalog, error) {
	if len(list) == 0 {
		return Catalog{}, fmt.Errorf("catalog must contain at least one action")
	}
	index := make(map[Action]int, len(list))
	for i, a := range list {
		if a == "" {
			return Catalog{}, fmt.Errorf("action %d is empty", i)
		}
		if _, dup := index[a]; dup {
			return Catalog{}, fmt.Errorf("duplicate action %q", a)
		}
		index[a] = i
	}
	return Catalog{actions: append([]Action(nil), list...), index: index}, nil
}

// MustCatalog is NewCatalog for static lists.
func MustCatalog(list ...Action) Catalog {
	c, err := NewCatalog(list...)
	if err != nil {
		panic(err)
	}
	return c
}

// Forage is the gathering bot's catalog.
func Forage() Catalog { return MustCatalog(Walk, Jump, Collect, Attack, Mine) }

// Evade is the evasion bot's catalog.
func Evade() Catalog {
	return MustCatalog(DodgeLeft, DodgeRight, Jump, SprintAway, CounterAttack)
}

// ForVariant returns the catalog for a named bot variant.
func ForVariant(variant string) (Catalog, error) {
	switch variant {
	case "forage":
		return Forage(), nil
	case "evade":
		return Evade(), nil
	default:
		return Catalog{}, fmt.Errorf("unknown variant %q", variant)
	}
}

// Len returns the number of actions.
func (c Catalog) Len() int { return len(c.actions) }

// At returns the i-th action.
func (c Catalog) At(i int) Action { return c.actions[i] }

// All returns a copy of the actions in catalog order.
func (c Catalog) All() []Action { return append([]Action(nil), c.actions...) }

// Index returns the position of a in the catalog.
func (c Catalog) Index(a Action) (int, bool) {
	i, ok := c.index[a]
	return i, ok
}

// Contains reports whether a belongs to the catalog.
func (c Catalog) Contains(a Action) bool {
	_, ok := c.index[a]
	return ok
}

// Random draws a uniformly random action.
func (c Catalog) Random(rng *rand.Rand) Action {
	return c.actions[rng.Intn(len(c.actions))]
}
