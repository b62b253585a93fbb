// Package publisher emits replication events over NATS JetStream for
// external consumers (dashboards, auditing).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sunil55999/Zorox/internal/logger"
)

// streamName holds every relay.* subject.
const streamName = "RELAY"

// NATSPublisher implements pipeline.EventSink over JetStream. Publishing is
// fire-and-forget: a broker outage never blocks the pipeline.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  *logger.Logger
}

// New connects to NATS and ensures the relay stream exists.
func New(ctx context.Context, natsURL string, log *logger.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"relay.>"},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", streamName, err)
	}

	return &NATSPublisher{conn: conn, js: js, log: log}, nil
}

// Publish marshals the event and hands it to JetStream asynchronously.
func (p *NATSPublisher) Publish(subject string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publisher: marshal failed")
		return
	}
	if _, err := p.js.PublishAsync(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publisher: publish failed")
	}
}

// Close closes the underlying connection.
func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// IsConnected reports whether the broker link is up.
func (p *NATSPublisher) IsConnected() bool {
	return p.conn.IsConnected()
}
