package reward

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/state"
)

func TestCoinFlip_OnlyReturnsSuccessOrFailure(t *testing.T) {
	c := NewCoinFlipWithSource(rand.NewSource(5))
	seen := map[float64]int{}
	for i := 0; i < 1000; i++ {
		seen[c.RewardFor(Outcome{})]++
	}
	require.Len(t, seen, 2)
	assert.Greater(t, seen[success], 0)
	assert.Greater(t, seen[failure], 0)
}

func TestCompletion(t *testing.T) {
	healthy := state.Observation{Health: 20}
	hurt := state.Observation{Health: 18}

	assert.Equal(t, success, Completion{}.RewardFor(Outcome{Previous: healthy, Current: healthy, Action: actions.Collect, Targeted: true}))
	assert.Equal(t, failure, Completion{}.RewardFor(Outcome{Previous: healthy, Current: healthy, Action: actions.Attack, Degraded: true}))
	assert.Equal(t, failure, Completion{}.RewardFor(Outcome{Previous: healthy, Current: hurt, Action: actions.Walk}))
}

func TestEvasion(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want float64
	}{
		{
			name: "hit received",
			o:    Outcome{Previous: state.Observation{Health: 20}, Current: state.Observation{Health: 17}, Action: actions.CounterAttack, Targeted: true},
			want: hitReceived,
		},
		{
			name: "counter strike landed",
			o:    Outcome{Previous: state.Observation{Health: 20}, Current: state.Observation{Health: 20}, Action: actions.CounterAttack, Targeted: true},
			want: counterStrike,
		},
		{
			name: "counter attack without target",
			o:    Outcome{Previous: state.Observation{Health: 20}, Current: state.Observation{Health: 20}, Action: actions.CounterAttack, Degraded: true},
			want: evadeSuccess,
		},
		{
			name: "clean dodge",
			o:    Outcome{Previous: state.Observation{Health: 15}, Current: state.Observation{Health: 16}, Action: actions.DodgeLeft},
			want: evadeSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evasion{}.RewardFor(tt.o))
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"coinflip", "completion", "evasion"} {
		r, err := New(name)
		require.NoError(t, err, name)
		assert.NotNil(t, r)
	}
	_, err := New("oracle")
	assert.Error(t, err)
}
