package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Metrics collector for agent operations
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track a completed learning step
func (c *Collector) StepCompleted(tick int64, state, action string, reward, value float64, duration time.Duration) {
	c.logger.Debug().
		Str("metric", "step_completed").
		Int64("tick", tick).
		Str("state", state).
		Str("action", action).
		Float64("reward", reward).
		Float64("q_value", value).
		Dur("duration", duration).
		Msg("Step metric")
}

// Track actions that ran without their target
func (c *Collector) ActionDegraded(tick int64, action string) {
	c.logger.Debug().
		Str("metric", "action_degraded").
		Int64("tick", tick).
		Str("action", action).
		Msg("Degraded action metric")
}

// Track snapshot writes
func (c *Collector) SnapshotSaved(backend string, states int, bytes int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "snapshot_saved").
		Str("backend", backend).
		Int("states", states).
		Int("bytes", bytes).
		Dur("duration", duration).
		Msg("Snapshot metric")
}

// Track failed snapshot writes
func (c *Collector) SnapshotFailed(backend string, err error) {
	c.logger.Error().
		Str("metric", "snapshot_failed").
		Str("backend", backend).
		Err(err).
		Msg("Snapshot failure metric")
}

// Track agent lifecycle transitions
func (c *Collector) StateTransition(agentID string, fromState, toState string) {
	c.logger.Info().
		Str("metric", "agent_state_transition").
		Str("agent_id", agentID).
		Str("from_state", fromState).
		Str("to_state", toState).
		Msg("Agent state transition metric")
}
