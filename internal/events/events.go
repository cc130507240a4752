package events

import "context"

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishAgentStatus(ctx context.Context, payload AgentStatusEvent) error
	PublishSnapshot(ctx context.Context, payload SnapshotEvent) error
}

// AgentStatusEvent is emitted whenever the agent changes lifecycle state.
type AgentStatusEvent struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
	Variant   string `json:"variant"`
	State     string `json:"state"`
	Tick      int64  `json:"tick"`
	States    int    `json:"states"`
	LastError string `json:"last_error,omitempty"`
}

// SnapshotEvent tracks q-table persistence.
type SnapshotEvent struct {
	AgentID string `json:"agent_id"`
	Backend string `json:"backend"`
	States  int    `json:"states"`
	Bytes   int    `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

// NoopPublisher publishes nothing; useful for tests.
type NoopPublisher struct{}

// PublishAgentStatus satisfies Publisher.
func (NoopPublisher) PublishAgentStatus(context.Context, AgentStatusEvent) error { return nil }

// PublishSnapshot satisfies Publisher.
func (NoopPublisher) PublishSnapshot(context.Context, SnapshotEvent) error { return nil }
