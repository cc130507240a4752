// Package learning applies one-step Q-learning updates to a q-table.
package learning

import (
	"errors"
	"fmt"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/qtable"
	"github.com/cartridge/voxel-agent/internal/state"
)

// Params are the fixed learning hyperparameters.
type Params struct {
	LearningRate float64 `mapstructure:"learning_rate" json:"learning_rate"`
	Discount     float64 `mapstructure:"discount" json:"discount"`
	Exploration  float64 `mapstructure:"exploration" json:"exploration"`
}

// DefaultParams mirrors the values the bots have always shipped with.
func DefaultParams() Params {
	return Params{LearningRate: 0.1, Discount: 0.9, Exploration: 0.2}
}

// Validate checks that every parameter is in range.
func (p Params) Validate() error {
	if !(p.LearningRate > 0 && p.LearningRate <= 1) {
		return errors.New("learning_rate must be in (0,1]")
	}
	if !(p.Discount >= 0 && p.Discount <= 1) {
		return errors.New("discount must be in [0,1]")
	}
	if !(p.Exploration >= 0 && p.Exploration <= 1) {
		return errors.New("exploration must be in [0,1]")
	}
	return nil
}

// Transition is one observed step, consumed by a single Update.
type Transition struct {
	Previous state.Key
	Action   actions.Action
	Reward   float64
	Next     state.Key
}

// Learner owns the update rule.
type Learner struct {
	store  qtable.Store
	params Params
}

// NewLearner validates params and binds them to a store.
func NewLearner(store qtable.Store, params Params) (*Learner, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learning params: %w", err)
	}
	return &Learner{store: store, params: params}, nil
}

// Params returns the learner's hyperparameters.
func (l *Learner) Params() Params { return l.params }

// Update moves Q(prev, a) toward reward + discount * max Q(next, ·) and
// returns the new value.
func (l *Learner) Update(t Transition) (float64, error) {
	current := l.store.Get(t.Previous, t.Action)
	target := t.Reward + l.params.Discount*l.store.MaxValue(t.Next)
	next := current + l.params.LearningRate*(target-current)
	if err := l.store.Set(t.Previous, t.Action, next); err != nil {
		return current, fmt.Errorf("failed to apply update: %w", err)
	}
	return next, nil
}
