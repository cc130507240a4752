package world

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SandboxConfig tunes the in-process world.
type SandboxConfig struct {
	TickInterval time.Duration
	Seed         int64
	MaxHealth    float64
	// MobDamage is subtracted from the agent's health when the mob is adjacent.
	MobDamage float64
}

// DefaultSandboxConfig returns a small, fast world.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		TickInterval: 50 * time.Millisecond,
		Seed:         1,
		MaxHealth:    20,
		MobDamage:    1,
	}
}

// Sandbox is a tiny deterministic world used for local runs and tests. One
// mob walks toward the agent and bites when adjacent; an item and a resource
// sit nearby and respawn once taken.
type Sandbox struct {
	cfg    SandboxConfig
	events chan Event

	mu       sync.Mutex
	rng      *rand.Rand
	tick     int64
	health   float64
	pos      Vec3
	controls map[Control]bool
	mob      Entity
	mobHP    int
	item     Entity
	resource Entity
	messages []string
	attacks  int
	mined    int
	closed   bool
}

var _ Environment = (*Sandbox)(nil)

// NewSandbox builds a sandbox world. Call Start to drive it from a ticker or
// Advance to step it manually.
func NewSandbox(cfg SandboxConfig) *Sandbox {
	s := &Sandbox{
		cfg:      cfg,
		events:   make(chan Event, eventQueueSize),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		health:   cfg.MaxHealth,
		controls: make(map[Control]bool),
	}
	s.spawnMob()
	s.item = Entity{ID: "item-1", Name: "apple", Kind: KindItem, Position: Vec3{X: 3, Z: 3}}
	s.resource = Entity{ID: "resource-1", Name: "oak_log", Kind: KindResource, Position: Vec3{X: -3, Z: 2}}
	return s
}

// Start emits ready and then one tick per interval until ctx is done, at
// which point it emits disconnected and closes the event stream.
func (s *Sandbox) Start(ctx context.Context) {
	go func() {
		s.Ready()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Disconnect(nil)
				return
			case <-ticker.C:
				s.Advance()
			}
		}
	}()
}

// Ready emits the ready notification without starting the ticker.
func (s *Sandbox) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(Event{Type: EventReady})
}

// Advance runs one simulation step and emits a tick.
func (s *Sandbox) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.tick++
	s.applyControls()
	if s.moveMob() {
		self := Entity{ID: "self", Name: "self", Kind: KindPlayer, Position: s.pos}
		s.emitLocked(Event{Type: EventDamaged, Entity: &self, Tick: s.tick})
	}
	s.emitLocked(Event{Type: EventTick, Tick: s.tick})
}

// Disconnect ends the event stream.
func (s *Sandbox) Disconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.emitLocked(Event{Type: EventDisconnected, Err: err})
	s.closed = true
	close(s.events)
}

// emitLocked never blocks; a full queue drops the event. Callers hold s.mu.
func (s *Sandbox) emitLocked(event Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}

// Events implements Environment.
func (s *Sandbox) Events() <-chan Event { return s.events }

// Close implements Environment.
func (s *Sandbox) Close() error {
	s.Disconnect(nil)
	return nil
}

// Self implements Observer.
func (s *Sandbox) Self() string { return "self" }

// Health implements Observer.
func (s *Sandbox) Health() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Position implements Observer.
func (s *Sandbox) Position() Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// NearestEntity implements Observer.
func (s *Sandbox) NearestEntity(match func(Entity) bool) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  Entity
		found bool
	)
	for _, e := range []Entity{s.mob, s.item, s.resource} {
		if !match(e) {
			continue
		}
		if !found || e.Position.DistanceTo(s.pos) < best.Position.DistanceTo(s.pos) {
			best, found = e, true
		}
	}
	return best, found
}

// SetControl implements Actuator.
func (s *Sandbox) SetControl(_ context.Context, control Control, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[control] = on
	return nil
}

// Attack implements Actuator.
func (s *Sandbox) Attack(_ context.Context, target Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attacks++
	if target.ID != s.mob.ID || s.mob.Position.DistanceTo(s.pos) > 4 {
		return nil
	}
	s.mobHP--
	if s.mobHP <= 0 {
		s.spawnMob()
	}
	return nil
}

// MineBlock implements Actuator.
func (s *Sandbox) MineBlock(_ context.Context, pos Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mined++
	if pos.DistanceTo(s.resource.Position) < 1 {
		s.resource.Position = Vec3{X: float64(s.rng.Intn(11) - 5), Z: float64(s.rng.Intn(11) - 5)}
	}
	return nil
}

// NavigateTo implements Actuator. The sandbox steps one block toward pos per
// call and picks up the item when standing on it.
func (s *Sandbox) NavigateTo(_ context.Context, pos Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = stepToward(s.pos, pos, 1)
	if s.pos.DistanceTo(s.item.Position) < 1 {
		s.item.Position = Vec3{X: float64(s.rng.Intn(11) - 5), Z: float64(s.rng.Intn(11) - 5)}
		if s.health < s.cfg.MaxHealth {
			s.health++
		}
	}
	return nil
}

// SendMessage implements Actuator.
func (s *Sandbox) SendMessage(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	return nil
}

// Messages returns chat sent by the agent.
func (s *Sandbox) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Controls returns the currently held controls.
func (s *Sandbox) Controls() map[Control]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Control]bool, len(s.controls))
	for k, v := range s.controls {
		out[k] = v
	}
	return out
}

// SetHealth overrides the agent's health.
func (s *Sandbox) SetHealth(h float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = h
}

func (s *Sandbox) applyControls() {
	speed := 0.25
	if s.controls[ControlSprint] {
		speed *= 2
	}
	if s.controls[ControlForward] {
		s.pos.Z += speed
	}
	if s.controls[ControlBack] {
		s.pos.Z -= speed
	}
	if s.controls[ControlLeft] {
		s.pos.X -= speed
	}
	if s.controls[ControlRight] {
		s.pos.X += speed
	}
	if s.controls[ControlJump] {
		s.pos.Y = 1
	} else {
		s.pos.Y = 0
	}
}

func (s *Sandbox) moveMob() bool {
	s.mob.Position = stepToward(s.mob.Position, s.pos, 0.2)
	if s.mob.Position.DistanceTo(s.pos) > 1.5 || s.tick%10 != 0 {
		return false
	}
	// Airborne agents dodge the bite.
	if s.pos.Y > 0 {
		return false
	}
	s.health -= s.cfg.MobDamage
	if s.health <= 0 {
		s.health = s.cfg.MaxHealth
		s.pos = Vec3{}
	}
	return true
}

func (s *Sandbox) spawnMob() {
	s.mobHP = 3
	s.mob = Entity{
		ID:       fmt.Sprintf("mob-%d", s.rng.Int63()),
		Name:     "zombie",
		Kind:     KindMob,
		Position: Vec3{X: float64(s.rng.Intn(17) - 8), Z: float64(s.rng.Intn(17) - 8)},
	}
}

func stepToward(from, to Vec3, step float64) Vec3 {
	d := from.DistanceTo(to)
	if d <= step || d == 0 {
		return to
	}
	k := step / d
	return Vec3{
		X: from.X + (to.X-from.X)*k,
		Y: from.Y + (to.Y-from.Y)*k,
		Z: from.Z + (to.Z-from.Z)*k,
	}
}

// Attacks returns how many attacks the agent has issued.
func (s *Sandbox) Attacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attacks
}

// Mined returns how many mine actions the agent has issued.
func (s *Sandbox) Mined() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mined
}
