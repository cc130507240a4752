// Package reward scores the outcome of the agent's previous action.
package reward

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/state"
)

// Outcome describes what happened between two ticks.
type Outcome struct {
	Previous state.Observation
	Current  state.Observation
	// Action is the action taken on the previous tick.
	Action actions.Action
	// Targeted is true when the action reached a target.
	Targeted bool
	// Degraded is true when the action needed a target and had none.
	Degraded bool
}

// Rewarder turns an outcome into a scalar reward.
type Rewarder interface {
	RewardFor(o Outcome) float64
}

const (
	success       = 10.0
	failure       = -10.0
	hitReceived   = -10.0
	evadeSuccess  = 10.0
	counterStrike = 15.0
)

// CoinFlip rewards success or failure at random, ignoring the outcome.
type CoinFlip struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCoinFlip seeds a coin flip from the clock.
func NewCoinFlip() *CoinFlip {
	return NewCoinFlipWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewCoinFlipWithSource seeds a coin flip from src.
func NewCoinFlipWithSource(src rand.Source) *CoinFlip {
	return &CoinFlip{rng: rand.New(src)}
}

// RewardFor implements Rewarder.
func (c *CoinFlip) RewardFor(Outcome) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng.Float64() > 0.5 {
		return success
	}
	return failure
}

// Completion rewards actions that found their target without costing health.
type Completion struct{}

// RewardFor implements Rewarder.
func (Completion) RewardFor(o Outcome) float64 {
	if o.Degraded || o.Current.Health < o.Previous.Health {
		return failure
	}
	return success
}

// Evasion penalizes lost health and pays extra for landed counter attacks.
type Evasion struct{}

// RewardFor implements Rewarder.
func (Evasion) RewardFor(o Outcome) float64 {
	switch {
	case o.Current.Health < o.Previous.Health:
		return hitReceived
	case o.Action == actions.CounterAttack && o.Targeted:
		return counterStrike
	default:
		return evadeSuccess
	}
}

// New returns the named reward strategy.
func New(name string) (Rewarder, error) {
	switch name {
	case "coinflip":
		return NewCoinFlip(), nil
	case "completion":
		return Completion{}, nil
	case "evasion":
		return Evasion{}, nil
	default:
		return nil, fmt.Errorf("unknown reward strategy %q", name)
	}
}
