package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	dialAttempts   = 12
	dialBackoff    = 180 * time.Millisecond
	eventQueueSize = 256
)

// ErrClosed is returned by actuations after the connection went away.
var ErrClosed = errors.New("world connection closed")

type clientEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type serverEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	WorldSeed string `json:"worldSeed"`
	PlayerID  string `json:"playerId"`
}

type inputPayload struct {
	PlayerID string           `json:"playerId"`
	Controls map[Control]bool `json:"controls"`
}

type combatActionPayload struct {
	PlayerID    string `json:"playerId"`
	ActionID    string `json:"actionId"`
	Kind        string `json:"kind"`
	TargetID    string `json:"targetId"`
	TargetLabel string `json:"targetLabel,omitempty"`
}

type blockActionPayload struct {
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Z        int    `json:"z"`
}

type navigatePayload struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

type chatPayload struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

type playerSnapshot struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Health   float64 `json:"health"`
}

type worldSnapshot struct {
	WorldSeed string                    `json:"worldSeed"`
	Tick      int64                     `json:"tick"`
	Players   map[string]playerSnapshot `json:"players"`
	Entities  []Entity                  `json:"entities"`
}

type damagedPayload struct {
	EntityID string `json:"entityId"`
}

// WSClient connects the agent to a world server over a websocket carrying
// JSON envelopes.
type WSClient struct {
	id     string
	conn   *websocket.Conn
	logger zerolog.Logger

	events  chan Event
	closing chan struct{}
	once    sync.Once

	writeMu sync.Mutex

	mu       sync.RWMutex
	snapshot worldSnapshot
	ready    bool
	controls map[Control]bool
}

var _ Environment = (*WSClient)(nil)

// Dial connects to the world at wsURL and joins as playerID.
func Dial(ctx context.Context, wsURL, playerID, worldSeed string, logger zerolog.Logger) (*WSClient, error) {
	conn, err := dialWithRetry(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to world at %s: %w", wsURL, err)
	}
	c := &WSClient{
		id:       playerID,
		conn:     conn,
		logger:   logger.With().Str("component", "ws_client").Str("player_id", playerID).Logger(),
		events:   make(chan Event, eventQueueSize),
		closing:  make(chan struct{}),
		controls: make(map[Control]bool),
	}
	go c.readLoop()

	if err := c.send("join", joinPayload{WorldSeed: worldSeed, PlayerID: playerID}); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to join world: %w", err)
	}
	return c, nil
}

// Events implements Environment.
func (c *WSClient) Events() <-chan Event { return c.events }

// Self implements Observer.
func (c *WSClient) Self() string { return c.id }

// Health implements Observer.
func (c *WSClient) Health() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Players[c.id].Health
}

// Position implements Observer.
func (c *WSClient) Position() Vec3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.snapshot.Players[c.id]
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// NearestEntity implements Observer. Other players are reported as entities
// of kind player.
func (c *WSClient) NearestEntity(match func(Entity) bool) (Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	self := c.snapshot.Players[c.id]
	origin := Vec3{X: self.X, Y: self.Y, Z: self.Z}

	var (
		best  Entity
		found bool
		dist  = math.Inf(1)
	)
	consider := func(e Entity) {
		if !match(e) {
			return
		}
		if d := e.Position.DistanceTo(origin); d < dist {
			best, dist, found = e, d, true
		}
	}
	for _, e := range c.snapshot.Entities {
		consider(e)
	}
	for id, p := range c.snapshot.Players {
		if id == c.id {
			continue
		}
		consider(Entity{ID: id, Name: id, Kind: KindPlayer, Position: Vec3{X: p.X, Y: p.Y, Z: p.Z}})
	}
	return best, found
}

// SetControl implements Actuator. The full control state is sent every time.
func (c *WSClient) SetControl(_ context.Context, control Control, on bool) error {
	c.mu.Lock()
	c.controls[control] = on
	controls := make(map[Control]bool, len(c.controls))
	for k, v := range c.controls {
		controls[k] = v
	}
	c.mu.Unlock()
	return c.send("input", inputPayload{PlayerID: c.id, Controls: controls})
}

// Attack implements Actuator.
func (c *WSClient) Attack(_ context.Context, target Entity) error {
	return c.send("combat_action", combatActionPayload{
		PlayerID:    c.id,
		ActionID:    uuid.New().String(),
		Kind:        "melee",
		TargetID:    target.ID,
		TargetLabel: target.Name,
	})
}

// MineBlock implements Actuator.
func (c *WSClient) MineBlock(_ context.Context, pos Vec3) error {
	return c.send("block_action", blockActionPayload{
		PlayerID: c.id,
		Action:   "break",
		X:        int(math.Floor(pos.X)),
		Y:        int(math.Floor(pos.Y)),
		Z:        int(math.Floor(pos.Z)),
	})
}

// NavigateTo implements Actuator.
func (c *WSClient) NavigateTo(_ context.Context, pos Vec3) error {
	return c.send("navigate", navigatePayload{PlayerID: c.id, X: pos.X, Y: pos.Y, Z: pos.Z})
}

// SendMessage implements Actuator.
func (c *WSClient) SendMessage(_ context.Context, text string) error {
	return c.send("chat", chatPayload{PlayerID: c.id, Text: text})
}

// Close leaves the world and closes the connection.
func (c *WSClient) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.send("leave", map[string]string{"playerId": c.id})
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}

func (c *WSClient) send(typ string, payload any) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(clientEnvelope{Type: typ, Payload: payload})
}

func (c *WSClient) readLoop() {
	defer close(c.events)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
				c.emit(Event{Type: EventDisconnected})
			default:
				c.emit(Event{Type: EventDisconnected, Err: err})
			}
			return
		}
		var envelope serverEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			c.logger.Debug().Err(err).Msg("Dropping malformed envelope")
			continue
		}
		c.handleEnvelope(envelope)
	}
}

func (c *WSClient) handleEnvelope(envelope serverEnvelope) {
	switch envelope.Type {
	case "snapshot":
		var snapshot worldSnapshot
		if err := json.Unmarshal(envelope.Payload, &snapshot); err != nil {
			c.logger.Debug().Err(err).Msg("Dropping malformed snapshot")
			return
		}
		if _, ok := snapshot.Players[c.id]; !ok {
			return
		}
		c.mu.Lock()
		c.snapshot = snapshot
		first := !c.ready
		c.ready = true
		c.mu.Unlock()
		if first {
			c.emit(Event{Type: EventReady, Tick: snapshot.Tick})
			return
		}
		// Ticks are dropped rather than queued when the agent falls behind.
		select {
		case c.events <- Event{Type: EventTick, Tick: snapshot.Tick}:
		default:
		}
	case "damaged":
		var damaged damagedPayload
		if json.Unmarshal(envelope.Payload, &damaged) != nil {
			return
		}
		entity, ok := c.lookup(damaged.EntityID)
		if !ok {
			return
		}
		c.emit(Event{Type: EventDamaged, Entity: &entity})
	}
}

func (c *WSClient) lookup(id string) (Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.snapshot.Players[id]; ok {
		return Entity{ID: id, Name: id, Kind: KindPlayer, Position: Vec3{X: p.X, Y: p.Y, Z: p.Z}}, true
	}
	for _, e := range c.snapshot.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

func (c *WSClient) emit(event Event) {
	select {
	case c.events <- event:
	case <-c.closing:
	}
}

func dialWithRetry(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	if !strings.HasPrefix(wsURL, "ws://") && !strings.HasPrefix(wsURL, "wss://") {
		return nil, fmt.Errorf("invalid ws url: %s", wsURL)
	}
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, lastErr
}
