// Package agent runs the tick-driven learning loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/events"
	"github.com/cartridge/voxel-agent/internal/executor"
	"github.com/cartridge/voxel-agent/internal/learning"
	"github.com/cartridge/voxel-agent/internal/metrics"
	"github.com/cartridge/voxel-agent/internal/persistence"
	"github.com/cartridge/voxel-agent/internal/policy"
	"github.com/cartridge/voxel-agent/internal/qtable"
	"github.com/cartridge/voxel-agent/internal/reward"
	"github.com/cartridge/voxel-agent/internal/state"
	"github.com/cartridge/voxel-agent/internal/world"
)

// State enumerates the agent lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRunning       State = "running"
	StateStopped       State = "stopped"
)

const (
	// Players only count as attackers inside this radius; mobs always do.
	threatRadius = 5.0
	// Number of recent rewards averaged in Status.
	rewardWindow    = 100
	shutdownTimeout = 10 * time.Second
)

type chatLines struct {
	greeting string
	saved    string
}

var variantChat = map[string]chatLines{
	"forage": {greeting: "Q-Learning bot has spawned and is ready to learn!", saved: "Q-table saved to disk."},
	"evade":  {greeting: "Evasion bot loaded. I will dodge and counter-attack!", saved: "Q-table saved!"},
}

// Options are the agent's identity and behavior switches.
type Options struct {
	AgentID string
	Variant string
	// ReactToDamage executes an extra evasive action when the agent is hurt.
	ReactToDamage bool
	// Chat sends greeting and save notices to the world.
	Chat bool
}

// Dependencies are the collaborators the agent drives.
type Dependencies struct {
	Env       world.Environment
	Store     qtable.Store
	Encoder   state.Encoder
	Policy    policy.Policy
	Learner   *learning.Learner
	Rewarder  reward.Rewarder
	Executor  *executor.Executor
	Scheduler *persistence.Scheduler
	Metrics   *metrics.Collector
	Publisher events.Publisher
}

// Status is a point-in-time view of the agent.
type Status struct {
	AgentID    string         `json:"agent_id"`
	SessionID  string         `json:"session_id"`
	Variant    string         `json:"variant"`
	State      State          `json:"state"`
	Tick       int64          `json:"tick"`
	Steps      int64          `json:"steps"`
	States     int            `json:"states"`
	LastState  state.Key      `json:"last_state,omitempty"`
	LastAction actions.Action `json:"last_action,omitempty"`
	MeanReward float64        `json:"mean_reward"`
	LastSaved  *time.Time     `json:"last_saved,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
}

// Agent consumes world events on a single goroutine. It selects an action for
// the current tick and learns about the previous one.
type Agent struct {
	opts      Options
	sessionID string
	deps      Dependencies
	logger    zerolog.Logger
	errs      chan error

	mu         sync.RWMutex
	state      State
	tick       int64
	steps      int64
	prevKey    state.Key
	prevAction actions.Action
	prevObs    state.Observation
	prevResult executor.Result
	rewards    []float64
	lastErr    error
}

// New validates the dependencies and creates an uninitialized agent.
func New(opts Options, deps Dependencies, logger zerolog.Logger) (*Agent, error) {
	switch {
	case deps.Env == nil:
		return nil, errors.New("agent requires an environment")
	case deps.Store == nil || deps.Encoder == nil || deps.Policy == nil || deps.Rewarder == nil:
		return nil, errors.New("agent requires a store, encoder, policy and rewarder")
	case deps.Learner == nil || deps.Executor == nil || deps.Scheduler == nil:
		return nil, errors.New("agent requires a learner, executor and scheduler")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(logger)
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}

	sessionID := uuid.NewString()
	a := &Agent{
		opts:      opts,
		sessionID: sessionID,
		deps:      deps,
		logger: logger.With().
			Str("component", "agent").
			Str("agent_id", opts.AgentID).
			Str("session_id", sessionID).
			Logger(),
		errs:  make(chan error, 1),
		state: StateUninitialized,
	}

	if opts.Chat {
		if lines, ok := variantChat[opts.Variant]; ok {
			deps.Scheduler.OnSaved(func(int) { a.say(context.Background(), lines.saved) })
		}
	}
	return a, nil
}

// Errors reports environment and actuation failures that stopped the loop.
func (a *Agent) Errors() <-chan error { return a.errs }

// SessionID identifies this run of the agent.
func (a *Agent) SessionID() string { return a.sessionID }

// State returns the lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Status returns a snapshot of the agent's progress.
func (a *Agent) Status() Status {
	a.mu.RLock()
	status := Status{
		AgentID:    a.opts.AgentID,
		SessionID:  a.sessionID,
		Variant:    a.opts.Variant,
		State:      a.state,
		Tick:       a.tick,
		Steps:      a.steps,
		LastState:  a.prevKey,
		LastAction: a.prevAction,
	}
	if len(a.rewards) > 0 {
		status.MeanReward = stat.Mean(a.rewards, nil)
	}
	if a.lastErr != nil {
		status.LastError = a.lastErr.Error()
	}
	a.mu.RUnlock()

	status.States = a.deps.Store.Len()
	if saved, _ := a.deps.Scheduler.LastSaved(); !saved.IsZero() {
		status.LastSaved = &saved
	}
	return status
}

// Run consumes world events until the world disconnects, an environment
// error occurs or ctx is done. It always leaves the agent stopped and
// returns the error that stopped it, if any.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().Str("variant", a.opts.Variant).Msg("Agent waiting for world")
	stream := a.deps.Env.Events()

	for {
		select {
		case <-ctx.Done():
			a.stop(nil)
			return nil

		case ev, ok := <-stream:
			if !ok {
				a.stop(nil)
				return nil
			}
			if err := a.handle(ctx, ev); err != nil {
				a.report(err)
				a.stop(err)
				return err
			}
			if a.State() == StateStopped {
				return nil
			}
		}
	}
}

func (a *Agent) handle(ctx context.Context, ev world.Event) error {
	current := a.State()
	switch ev.Type {
	case world.EventReady:
		if current != StateUninitialized {
			a.logger.Debug().Str("state", string(current)).Msg("Ignoring repeated ready")
			return nil
		}
		return a.start(ctx)

	case world.EventTick:
		if current != StateRunning {
			return nil
		}
		return a.Step(ctx, ev.Tick)

	case world.EventDamaged:
		if current != StateRunning || !a.opts.ReactToDamage {
			return nil
		}
		if ev.Entity == nil || ev.Entity.ID != a.deps.Env.Self() {
			return nil
		}
		return a.evade(ctx)

	case world.EventDisconnected:
		if ev.Err != nil {
			return fmt.Errorf("world disconnected: %w", ev.Err)
		}
		a.logger.Info().Msg("World disconnected")
		a.stop(nil)
		return nil

	case world.EventError:
		return fmt.Errorf("world error: %w", ev.Err)
	}
	return nil
}

// start loads the persisted table and acts once so the first tick has a
// previous pair to learn about.
func (a *Agent) start(ctx context.Context) error {
	a.deps.Scheduler.Restore(ctx)

	obs, targets := a.observe()
	key := a.deps.Encoder.Encode(obs)
	action := a.deps.Policy.SelectAction(key)
	result, err := a.deps.Executor.Execute(ctx, action, targets)
	if err != nil {
		return fmt.Errorf("failed to execute initial action %s: %w", action, err)
	}

	a.mu.Lock()
	a.prevKey, a.prevAction, a.prevObs, a.prevResult = key, action, obs, result
	a.state = StateRunning
	a.mu.Unlock()

	a.deps.Metrics.StateTransition(a.opts.AgentID, string(StateUninitialized), string(StateRunning))
	a.logger.Info().
		Str("state", string(key)).
		Str("action", string(action)).
		Int("states", a.deps.Store.Len()).
		Msg("Agent running")
	a.publishStatus(ctx)

	if a.opts.Chat {
		if lines, ok := variantChat[a.opts.Variant]; ok {
			a.say(ctx, lines.greeting)
		}
	}
	return nil
}

// Step runs one tick: choose and execute the current action, then learn
// about the previous state and action using the reward observed since.
func (a *Agent) Step(ctx context.Context, tick int64) error {
	start := time.Now()

	obs, targets := a.observe()
	key := a.deps.Encoder.Encode(obs)
	action := a.deps.Policy.SelectAction(key)
	result, err := a.deps.Executor.Execute(ctx, action, targets)
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w", action, err)
	}
	if result.Degraded {
		a.deps.Metrics.ActionDegraded(tick, string(action))
	}

	a.mu.RLock()
	prevKey, prevAction, prevObs, prevResult := a.prevKey, a.prevAction, a.prevObs, a.prevResult
	a.mu.RUnlock()

	r := a.deps.Rewarder.RewardFor(reward.Outcome{
		Previous: prevObs,
		Current:  obs,
		Action:   prevAction,
		Targeted: prevResult.Targeted,
		Degraded: prevResult.Degraded,
	})
	value, err := a.deps.Learner.Update(learning.Transition{
		Previous: prevKey,
		Action:   prevAction,
		Reward:   r,
		Next:     key,
	})
	if err != nil {
		// A rejected value leaves the table unchanged; keep acting.
		a.logger.Error().Err(err).Str("state", string(prevKey)).Str("action", string(prevAction)).Msg("Update rejected")
	}

	a.mu.Lock()
	a.prevKey, a.prevAction, a.prevObs, a.prevResult = key, action, obs, result
	a.tick = tick
	a.steps++
	a.rewards = append(a.rewards, r)
	if len(a.rewards) > rewardWindow {
		a.rewards = a.rewards[len(a.rewards)-rewardWindow:]
	}
	a.mu.Unlock()

	a.deps.Metrics.StepCompleted(tick, string(prevKey), string(prevAction), r, value, time.Since(start))
	return nil
}

// evade reacts to the agent being hurt with an immediate action. No learning
// happens here; the next tick accounts for the health change.
func (a *Agent) evade(ctx context.Context) error {
	attacker, ok := a.deps.Env.NearestEntity(world.IsHostile)
	if !ok {
		return nil
	}
	obs, targets := a.observe()
	targets.Hostile = &attacker
	action := a.deps.Policy.SelectAction(a.deps.Encoder.Encode(obs))
	if _, err := a.deps.Executor.Execute(ctx, action, targets); err != nil {
		return fmt.Errorf("failed to evade with %s: %w", action, err)
	}
	a.logger.Debug().Str("action", string(action)).Str("attacker", attacker.Name).Msg("Reacted to damage")
	return nil
}

// observe reads the world once and returns the observation together with the
// targets the executor may need on this tick.
func (a *Agent) observe() (state.Observation, executor.Targets) {
	env := a.deps.Env
	pos := env.Position()
	obs := state.Observation{Health: env.Health(), Position: pos}

	var targets executor.Targets
	if attacker, ok := env.NearestEntity(isThreat(pos)); ok {
		obs.Nearby = &state.Nearby{Category: attacker.Name, Distance: attacker.Position.DistanceTo(pos)}
		targets.Hostile = &attacker
	}
	if item, ok := env.NearestEntity(world.IsKind(world.KindItem)); ok {
		targets.Item = &item
	}
	if resource, ok := env.NearestEntity(world.IsKind(world.KindResource)); ok {
		targets.Resource = &resource
	}
	return obs, targets
}

// isThreat matches any mob, or a player closer than threatRadius.
func isThreat(origin world.Vec3) func(world.Entity) bool {
	nearPlayer := world.Within(origin, threatRadius, world.IsKind(world.KindPlayer))
	return func(e world.Entity) bool {
		return e.Kind == world.KindMob || nearPlayer(e)
	}
}

// stop flushes the table, releases held controls and marks the agent
// stopped. Only the first call has any effect.
func (a *Agent) stop(cause error) {
	a.mu.Lock()
	if a.state == StateStopped {
		a.mu.Unlock()
		return
	}
	from := a.state
	a.state = StateStopped
	if cause != nil {
		a.lastErr = cause
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// A table that was never restored must not overwrite the last snapshot.
	if from == StateRunning {
		if err := a.deps.Scheduler.Flush(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Final snapshot failed")
		}
	}
	if err := a.deps.Executor.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to release held controls")
	}

	a.deps.Metrics.StateTransition(a.opts.AgentID, string(from), string(StateStopped))
	a.logger.Info().Str("from_state", string(from)).Msg("Agent stopped")
	a.publishStatus(ctx)
}

func (a *Agent) report(err error) {
	a.logger.Error().Err(err).Msg("Agent loop failed")
	select {
	case a.errs <- err:
	default:
	}
}

func (a *Agent) publishStatus(ctx context.Context) {
	status := a.Status()
	event := events.AgentStatusEvent{
		AgentID:   status.AgentID,
		SessionID: status.SessionID,
		Variant:   status.Variant,
		State:     string(status.State),
		Tick:      status.Tick,
		States:    status.States,
		LastError: status.LastError,
	}
	if err := a.deps.Publisher.PublishAgentStatus(ctx, event); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to publish agent status")
	}
}

func (a *Agent) say(ctx context.Context, text string) {
	if err := a.deps.Env.SendMessage(ctx, text); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to send chat")
	}
}
