// Package state turns world observations into discrete table keys.
package state

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cartridge/voxel-agent/internal/world"
)

// Key is a discretized observation used to index the Q-table.
type Key string

// None is the bucket used for missing or non-numeric readings.
const None = "none"

// Nearby describes the closest entity of interest.
type Nearby struct {
	Category string
	Distance float64
}

// Observation is a snapshot of what the agent can see at one tick.
type Observation struct {
	Health   float64
	Position world.Vec3
	Nearby   *Nearby
}

// Encoder maps observations to keys. Implementations must be pure and total.
type Encoder interface {
	Encode(obs Observation) Key
}

// PositionEncoder buckets health and horizontal position.
type PositionEncoder struct{}

// Encode implements Encoder.
func (PositionEncoder) Encode(obs Observation) Key {
	return Key(fmt.Sprintf("health:%s,pos:%s:%s",
		bucket(obs.Health), bucket(obs.Position.X), bucket(obs.Position.Z)))
}

// ThreatEncoder buckets health and the nearest attacker.
type ThreatEncoder struct{}

// Encode implements Encoder.
func (ThreatEncoder) Encode(obs Observation) Key {
	category, distance := None, None
	if obs.Nearby != nil {
		if obs.Nearby.Category != "" {
			category = obs.Nearby.Category
		}
		distance = bucket(obs.Nearby.Distance)
	}
	return Key(fmt.Sprintf("health:%s_attacker:%s_distance:%s", bucket(obs.Health), category, distance))
}

// ForVariant returns the encoder for a named bot variant.
func ForVariant(variant string) (Encoder, error) {
	switch variant {
	case "forage":
		return PositionEncoder{}, nil
	case "evade":
		return ThreatEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
}

func bucket(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None
	}
	f := math.Floor(v)
	if f == 0 {
		f = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}
