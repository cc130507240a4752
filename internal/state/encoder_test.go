package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/voxel-agent/internal/world"
)

func TestPositionEncoder_SameBucketsSameKey(t *testing.T) {
	enc := PositionEncoder{}
	a := enc.Encode(Observation{Health: 19.2, Position: world.Vec3{X: 3.1, Y: 64, Z: -2.5}})
	b := enc.Encode(Observation{Health: 19.9, Position: world.Vec3{X: 3.9, Y: 70, Z: -2.01}})
	assert.Equal(t, a, b)
	assert.Equal(t, Key("health:19,pos:3:-3"), a)
}

func TestPositionEncoder_DifferentBuckets(t *testing.T) {
	enc := PositionEncoder{}
	a := enc.Encode(Observation{Health: 20, Position: world.Vec3{X: 1}})
	b := enc.Encode(Observation{Health: 20, Position: world.Vec3{X: 2}})
	assert.NotEqual(t, a, b)
}

func TestBucket_LargeAndSignedZero(t *testing.T) {
	assert.Equal(t, "100000000000000000000", bucket(1e20))
	assert.Equal(t, "-100000000000000000000", bucket(-1e20))
	assert.NotEqual(t, bucket(1e20), bucket(2e20))
	assert.NotEqual(t, bucket(1e19), bucket(-1e19))
	assert.Equal(t, "0", bucket(math.Copysign(0, -1)))
	assert.Equal(t, "-1", bucket(-0.5))
	assert.Equal(t, None, bucket(math.Inf(1)))
}

func TestThreatEncoder(t *testing.T) {
	enc := ThreatEncoder{}

	tests := []struct {
		name string
		obs  Observation
		want Key
	}{
		{
			name: "no attacker",
			obs:  Observation{Health: 12.7},
			want: "health:12_attacker:none_distance:none",
		},
		{
			name: "zombie nearby",
			obs:  Observation{Health: 12.7, Nearby: &Nearby{Category: "zombie", Distance: 3.4}},
			want: "health:12_attacker:zombie_distance:3",
		},
		{
			name: "unnamed attacker",
			obs:  Observation{Health: 5, Nearby: &Nearby{Distance: 0.5}},
			want: "health:5_attacker:none_distance:0",
		},
		{
			name: "non-finite readings",
			obs:  Observation{Health: math.NaN(), Nearby: &Nearby{Category: "skeleton", Distance: math.Inf(1)}},
			want: "health:none_attacker:skeleton_distance:none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, enc.Encode(tt.obs))
		})
	}
}

func TestEncoders_AreDeterministic(t *testing.T) {
	obs := Observation{Health: 7.5, Position: world.Vec3{X: 10.2, Z: 4.8}, Nearby: &Nearby{Category: "spider", Distance: 2.2}}
	for _, enc := range []Encoder{PositionEncoder{}, ThreatEncoder{}} {
		first := enc.Encode(obs)
		for i := 0; i < 50; i++ {
			require.Equal(t, first, enc.Encode(obs))
		}
	}
}

func TestForVariant(t *testing.T) {
	enc, err := ForVariant("evade")
	require.NoError(t, err)
	assert.IsType(t, ThreatEncoder{}, enc)

	_, err = ForVariant("unknown")
	assert.Error(t, err)
}
