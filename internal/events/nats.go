package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL, nats.Name("voxel-agent"))
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close drains and closes the NATS connection
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
	}
}

// PublishAgentStatus publishes agent lifecycle events to NATS
func (n *NATSPublisher) PublishAgentStatus(ctx context.Context, event AgentStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject).Msg("Failed to publish agent status")
		return err
	}

	// Failures also go to a dedicated routing key for alerting
	if event.LastError != "" {
		routingKey := n.subject + ".error"
		if err := n.conn.Publish(routingKey, data); err != nil {
			n.logger.Error().Err(err).Str("routing_key", routingKey).Msg("Failed to publish to routing key")
		}
	}

	n.logger.Debug().
		Str("agent_id", event.AgentID).
		Str("state", event.State).
		Str("subject", n.subject).
		Msg("Published agent status event")

	return nil
}

// PublishSnapshot publishes snapshot events to NATS
func (n *NATSPublisher) PublishSnapshot(ctx context.Context, event SnapshotEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subject := n.subject + ".snapshots"
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", subject).Msg("Failed to publish snapshot event")
		return err
	}

	n.logger.Debug().
		Str("agent_id", event.AgentID).
		Int("states", event.States).
		Str("subject", subject).
		Msg("Published snapshot event")

	return nil
}
