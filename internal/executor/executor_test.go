package executor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/world"
)

type recordingActuator struct {
	mu        sync.Mutex
	controls  map[world.Control]bool
	presses   map[world.Control]int
	attacked  []string
	mined     []world.Vec3
	navigated []world.Vec3
	messages  []string
	failWith  error
}

func newRecordingActuator() *recordingActuator {
	return &recordingActuator{
		controls: make(map[world.Control]bool),
		presses:  make(map[world.Control]int),
	}
}

func (r *recordingActuator) SetControl(_ context.Context, c world.Control, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls[c] = on
	if on {
		r.presses[c]++
	}
	return nil
}

func (r *recordingActuator) Attack(_ context.Context, target world.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.attacked = append(r.attacked, target.ID)
	return nil
}

func (r *recordingActuator) MineBlock(_ context.Context, pos world.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mined = append(r.mined, pos)
	return nil
}

func (r *recordingActuator) NavigateTo(_ context.Context, pos world.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigated = append(r.navigated, pos)
	return nil
}

func (r *recordingActuator) SendMessage(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func (r *recordingActuator) held(c world.Control) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controls[c]
}

func TestExecute_HoldsAndReleasesControls(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(20*time.Millisecond), false, zerolog.New(io.Discard))

	res, err := exec.Execute(context.Background(), actions.Walk, Targets{})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, act.held(world.ControlForward), "control must be pressed without waiting")

	assert.Eventually(t, func() bool { return !act.held(world.ControlForward) }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return exec.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestExecute_RepressExtendsHold(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(time.Hour), false, zerolog.New(io.Discard))

	for i := 0; i < 3; i++ {
		_, err := exec.Execute(context.Background(), actions.Jump, Targets{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, exec.Pending())
	require.NoError(t, exec.Shutdown(context.Background()))
	assert.False(t, act.held(world.ControlJump))
}

func TestExecute_FiredReleaseDoesNotCutExtendedHold(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(time.Hour), false, zerolog.New(io.Discard))
	ctx := context.Background()

	require.NoError(t, act.SetControl(ctx, world.ControlJump, true))
	exec.scheduleRelease(world.ControlJump, time.Millisecond)

	// The first timer fires while the lock is held, so its callback waits
	// until the control has been pressed again.
	exec.mu.Lock()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, act.SetControl(ctx, world.ControlJump, true))
	exec.scheduleReleaseLocked(world.ControlJump, time.Hour)
	exec.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, act.held(world.ControlJump), "stale release must not end the new hold")
	assert.Equal(t, 1, exec.Pending())

	require.NoError(t, exec.Shutdown(ctx))
	assert.False(t, act.held(world.ControlJump))
}

func TestExecute_ShutdownReleasesControlWhoseTimerFired(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(time.Hour), false, zerolog.New(io.Discard))
	ctx := context.Background()

	require.NoError(t, act.SetControl(ctx, world.ControlJump, true))
	exec.mu.Lock()
	exec.scheduleReleaseLocked(world.ControlJump, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	exec.mu.Unlock()

	require.NoError(t, exec.Shutdown(ctx))
	assert.False(t, act.held(world.ControlJump))
	assert.Equal(t, 0, exec.Pending())
}

func TestExecute_SprintAwayPressesBothControls(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, EvadeBindings(), false, zerolog.New(io.Discard))

	_, err := exec.Execute(context.Background(), actions.SprintAway, Targets{})
	require.NoError(t, err)
	assert.True(t, act.held(world.ControlSprint))
	assert.True(t, act.held(world.ControlBack))
	assert.Equal(t, 2, exec.Pending())

	require.NoError(t, exec.Shutdown(context.Background()))
	assert.False(t, act.held(world.ControlSprint))
	assert.False(t, act.held(world.ControlBack))
	assert.Equal(t, 0, exec.Pending())
}

func TestExecute_TargetedActions(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(time.Second), false, zerolog.New(io.Discard))
	targets := Targets{
		Hostile:  &world.Entity{ID: "mob-1", Kind: world.KindMob},
		Item:     &world.Entity{ID: "item-1", Kind: world.KindItem, Position: world.Vec3{X: 1, Z: 2}},
		Resource: &world.Entity{ID: "log-1", Kind: world.KindResource, Position: world.Vec3{X: -3, Z: 4}},
	}

	for _, a := range []actions.Action{actions.Attack, actions.Collect, actions.Mine} {
		res, err := exec.Execute(context.Background(), a, targets)
		require.NoError(t, err)
		assert.True(t, res.Targeted, a)
	}
	assert.Equal(t, []string{"mob-1"}, act.attacked)
	assert.Equal(t, []world.Vec3{{X: 1, Z: 2}}, act.navigated)
	assert.Equal(t, []world.Vec3{{X: -3, Z: 4}}, act.mined)
}

func TestExecute_MissingTargetDegrades(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, EvadeBindings(), true, zerolog.New(io.Discard))

	res, err := exec.Execute(context.Background(), actions.CounterAttack, Targets{})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.Targeted)
	assert.Empty(t, act.attacked)
	assert.Empty(t, act.messages, "degraded actions stay quiet")
}

func TestExecute_FlavorMessages(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, EvadeBindings(), true, zerolog.New(io.Discard))

	_, err := exec.Execute(context.Background(), actions.DodgeLeft, Targets{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dodging left!"}, act.messages)
	require.NoError(t, exec.Shutdown(context.Background()))
}

func TestExecute_ActuationErrorIsReturned(t *testing.T) {
	act := newRecordingActuator()
	act.failWith = errors.New("socket closed")
	exec := New(act, EvadeBindings(), false, zerolog.New(io.Discard))

	_, err := exec.Execute(context.Background(), actions.CounterAttack, Targets{Hostile: &world.Entity{ID: "mob"}})
	assert.ErrorIs(t, err, act.failWith)
}

func TestExecute_UnknownActionAndStopped(t *testing.T) {
	act := newRecordingActuator()
	exec := New(act, ForageBindings(time.Second), false, zerolog.New(io.Discard))

	_, err := exec.Execute(context.Background(), actions.DodgeLeft, Targets{})
	assert.Error(t, err)

	require.NoError(t, exec.Shutdown(context.Background()))
	_, err = exec.Execute(context.Background(), actions.Walk, Targets{})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestBindingsForVariant(t *testing.T) {
	for variant, catalog := range map[string]actions.Catalog{"forage": actions.Forage(), "evade": actions.Evade()} {
		bindings, err := BindingsForVariant(variant, time.Second)
		require.NoError(t, err)
		for _, a := range catalog.All() {
			assert.Contains(t, bindings, a, "%s is missing %s", variant, a)
		}
	}
	_, err := BindingsForVariant("unknown", time.Second)
	assert.Error(t, err)
}
