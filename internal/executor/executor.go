// Package executor turns catalog actions into world actuations.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/world"
)

// ErrStopped is returned by Execute after Shutdown.
var ErrStopped = errors.New("executor stopped")

// TargetKind says which target an action needs, if any.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetHostile
	TargetItem
	TargetResource
)

// Binding maps one action to actuations.
type Binding struct {
	// Controls are pressed and released after Hold.
	Controls []world.Control
	Hold     time.Duration
	Target   TargetKind
	// Flavor is chat sent when flavor output is on.
	Flavor string
}

// Targets are the candidates looked up on the current tick.
type Targets struct {
	Hostile  *world.Entity
	Item     *world.Entity
	Resource *world.Entity
}

// Result describes what Execute did.
type Result struct {
	Action   actions.Action
	Targeted bool
	Degraded bool
}

// ForageBindings are the gathering bot's actuations. Every hold lasts hold.
func ForageBindings(hold time.Duration) map[actions.Action]Binding {
	return map[actions.Action]Binding{
		actions.Walk:    {Controls: []world.Control{world.ControlForward}, Hold: hold},
		actions.Jump:    {Controls: []world.Control{world.ControlJump}, Hold: hold},
		actions.Collect: {Target: TargetItem, Flavor: "Trying to collect something..."},
		actions.Attack:  {Target: TargetHostile, Flavor: "Attacking something..."},
		actions.Mine:    {Target: TargetResource, Flavor: "Mining..."},
	}
}

// EvadeBindings are the evasion bot's actuations.
func EvadeBindings() map[actions.Action]Binding {
	return map[actions.Action]Binding{
		actions.DodgeLeft:     {Controls: []world.Control{world.ControlLeft}, Hold: 500 * time.Millisecond, Flavor: "Dodging left!"},
		actions.DodgeRight:    {Controls: []world.Control{world.ControlRight}, Hold: 500 * time.Millisecond, Flavor: "Dodging right!"},
		actions.Jump:          {Controls: []world.Control{world.ControlJump}, Hold: 500 * time.Millisecond, Flavor: "Jumping!"},
		actions.SprintAway:    {Controls: []world.Control{world.ControlSprint, world.ControlBack}, Hold: time.Second, Flavor: "Sprinting away!"},
		actions.CounterAttack: {Target: TargetHostile, Flavor: "Counter-attacking!"},
	}
}

// BindingsForVariant returns the bindings for a named bot variant.
func BindingsForVariant(variant string, hold time.Duration) (map[actions.Action]Binding, error) {
	switch variant {
	case "forage":
		return ForageBindings(hold), nil
	case "evade":
		return EvadeBindings(), nil
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
}

// Executor performs actions without waiting for their effects. Held controls
// are released by timers that run independently of the caller.
type Executor struct {
	act      world.Actuator
	bindings map[actions.Action]Binding
	flavor   bool
	logger   zerolog.Logger

	mu       sync.Mutex
	releases map[world.Control]*time.Timer
	inflight sync.WaitGroup
	stopped  bool
}

// New creates an executor. When flavor is set each action also sends its
// chat line.
func New(act world.Actuator, bindings map[actions.Action]Binding, flavor bool, logger zerolog.Logger) *Executor {
	return &Executor{
		act:      act,
		bindings: bindings,
		flavor:   flavor,
		logger:   logger.With().Str("component", "executor").Logger(),
		releases: make(map[world.Control]*time.Timer),
	}
}

// Execute performs a. A missing target degrades to doing nothing.
func (e *Executor) Execute(ctx context.Context, a actions.Action, targets Targets) (Result, error) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return Result{Action: a}, ErrStopped
	}

	binding, ok := e.bindings[a]
	if !ok {
		return Result{Action: a}, fmt.Errorf("no binding for action %q", a)
	}
	result := Result{Action: a}

	for _, control := range binding.Controls {
		if err := e.act.SetControl(ctx, control, true); err != nil {
			return result, fmt.Errorf("failed to press %s: %w", control, err)
		}
		e.scheduleRelease(control, binding.Hold)
	}

	if binding.Target != TargetNone {
		target := pick(binding.Target, targets)
		if target == nil {
			e.logger.Debug().Str("action", string(a)).Msg("No target available, idling")
			result.Degraded = true
			return result, nil
		}
		if err := e.strike(ctx, binding.Target, *target); err != nil {
			return result, fmt.Errorf("failed to %s %s: %w", a, target.ID, err)
		}
		result.Targeted = true
	}

	if e.flavor && binding.Flavor != "" {
		if err := e.act.SendMessage(ctx, binding.Flavor); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to send flavor message")
		}
	}
	return result, nil
}

// Pending returns how many releases are scheduled.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.releases)
}

// Shutdown cancels pending release timers, releases their controls right
// away and waits for releases already running.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	var held []world.Control
	for control, timer := range e.releases {
		// A timer that already fired skips its release once the entry is gone.
		if timer.Stop() {
			e.inflight.Done()
		}
		held = append(held, control)
		delete(e.releases, control)
	}
	e.mu.Unlock()

	var errs []error
	for _, control := range held {
		if err := e.act.SetControl(ctx, control, false); err != nil {
			errs = append(errs, fmt.Errorf("failed to release %s: %w", control, err))
		}
	}
	e.inflight.Wait()
	return errors.Join(errs...)
}

func (e *Executor) scheduleRelease(control world.Control, hold time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduleReleaseLocked(control, hold)
}

func (e *Executor) scheduleReleaseLocked(control world.Control, hold time.Duration) {
	// Pressing again extends the hold instead of stacking releases.
	if old, ok := e.releases[control]; ok && old.Stop() {
		e.inflight.Done()
	}
	e.inflight.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(hold, func() {
		defer e.inflight.Done()
		e.mu.Lock()
		current := e.releases[control] == timer
		if current {
			delete(e.releases, control)
		}
		e.mu.Unlock()
		// Superseded by a later press or released by Shutdown.
		if !current {
			return
		}
		if err := e.act.SetControl(context.Background(), control, false); err != nil {
			e.logger.Warn().Err(err).Str("control", string(control)).Msg("Failed to release control")
		}
	})
	e.releases[control] = timer
}

func (e *Executor) strike(ctx context.Context, kind TargetKind, target world.Entity) error {
	switch kind {
	case TargetHostile:
		return e.act.Attack(ctx, target)
	case TargetItem:
		return e.act.NavigateTo(ctx, target.Position)
	case TargetResource:
		return e.act.MineBlock(ctx, target.Position)
	default:
		return nil
	}
}

func pick(kind TargetKind, targets Targets) *world.Entity {
	switch kind {
	case TargetHostile:
		return targets.Hostile
	case TargetItem:
		return targets.Item
	case TargetResource:
		return targets.Resource
	default:
		return nil
	}
}
