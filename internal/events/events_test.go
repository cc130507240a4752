package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishAgentStatus(context.Background(), AgentStatusEvent{AgentID: "agent-1"}))
	assert.NoError(t, p.PublishSnapshot(context.Background(), SnapshotEvent{AgentID: "agent-1"}))
}

func TestAgentStatusEventOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(AgentStatusEvent{AgentID: "agent-1", State: "running"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_error")
}

// Runs only against a real server, e.g. VOXEL_AGENT_TEST_NATS_URL=nats://localhost:4222
func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("VOXEL_AGENT_TEST_NATS_URL")
	if url == "" {
		t.Skip("VOXEL_AGENT_TEST_NATS_URL not set")
	}
	subject := "voxel-agent-test." + time.Now().Format("150405000000")

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	statuses, err := sub.SubscribeSync(subject)
	require.NoError(t, err)
	failures, err := sub.SubscribeSync(subject + ".error")
	require.NoError(t, err)
	snapshots, err := sub.SubscribeSync(subject + ".snapshots")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(url, subject, zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()

	ctx := context.Background()
	require.NoError(t, pub.PublishAgentStatus(ctx, AgentStatusEvent{AgentID: "agent-1", State: "stopped", LastError: "kicked"}))
	require.NoError(t, pub.PublishSnapshot(ctx, SnapshotEvent{AgentID: "agent-1", Backend: "file", States: 3}))

	msg, err := statuses.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var status AgentStatusEvent
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.Equal(t, "stopped", status.State)

	_, err = failures.NextMsg(2 * time.Second)
	require.NoError(t, err)

	msg, err = snapshots.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var snapshot SnapshotEvent
	require.NoError(t, json.Unmarshal(msg.Data, &snapshot))
	assert.Equal(t, 3, snapshot.States)
}
