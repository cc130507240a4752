// Package world describes the game world the agent lives in and provides
// connectors to it.
package world

import (
	"context"
	"math"
)

// Vec3 is a position in world coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the euclidean distance between two positions.
func (v Vec3) DistanceTo(o Vec3) float64 {
	return math.Sqrt((v.X-o.X)*(v.X-o.X) + (v.Y-o.Y)*(v.Y-o.Y) + (v.Z-o.Z)*(v.Z-o.Z))
}

// EntityKind groups entities the way the agent cares about them.
type EntityKind string

const (
	KindMob      EntityKind = "mob"
	KindPlayer   EntityKind = "player"
	KindItem     EntityKind = "item"
	KindResource EntityKind = "resource"
)

// Entity is a read-only view of something in the world.
type Entity struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     EntityKind `json:"kind"`
	Position Vec3       `json:"position"`
}

// Hostile reports whether the entity can attack the agent.
func (e Entity) Hostile() bool {
	return e.Kind == KindMob || e.Kind == KindPlayer
}

// Control is a movement flag held by the agent.
type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlJump    Control = "jump"
	ControlSprint  Control = "sprint"
)

// EventType enumerates the notifications a world emits.
type EventType string

const (
	EventReady        EventType = "ready"
	EventTick         EventType = "tick"
	EventDamaged      EventType = "damaged"
	EventDisconnected EventType = "disconnected"
	EventError        EventType = "error"
)

// Event is a single notification from the world.
type Event struct {
	Type EventType
	Tick int64
	// Entity is the damaged entity for EventDamaged.
	Entity *Entity
	// Err is set for EventError and optionally for EventDisconnected.
	Err error
}

// Observer exposes read-only world queries.
type Observer interface {
	Health() float64
	Position() Vec3
	// Self returns the agent's own entity ID.
	Self() string
	// NearestEntity returns the closest entity satisfying match, if any.
	NearestEntity(match func(Entity) bool) (Entity, bool)
}

// Actuator exposes the primitives the agent can invoke.
type Actuator interface {
	SetControl(ctx context.Context, control Control, on bool) error
	Attack(ctx context.Context, target Entity) error
	MineBlock(ctx context.Context, pos Vec3) error
	NavigateTo(ctx context.Context, pos Vec3) error
	SendMessage(ctx context.Context, text string) error
}

// Environment is everything the agent needs from a world.
type Environment interface {
	Observer
	Actuator
	// Events streams notifications. The channel is closed when the world goes away.
	Events() <-chan Event
	Close() error
}

// Within returns a predicate matching entities closer than radius to origin.
func Within(origin Vec3, radius float64, match func(Entity) bool) func(Entity) bool {
	return func(e Entity) bool {
		return match(e) && e.Position.DistanceTo(origin) < radius
	}
}

// IsHostile matches mobs and players.
func IsHostile(e Entity) bool { return e.Hostile() }

// IsKind returns a predicate matching a single entity kind.
func IsKind(kind EntityKind) func(Entity) bool {
	return func(e Entity) bool { return e.Kind == kind }
}
