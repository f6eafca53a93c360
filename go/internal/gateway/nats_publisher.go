package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the snapshot feed.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default snapshot feed configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		SubjectPrefix: "planning.rooms",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials NATS with reconnect logging.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("planning-poker"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// MessagePublisher is the part of *nats.Conn the snapshot feed uses.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards every room snapshot to <prefix>.<CODE>.state.
// Failures are logged and never reach the caller.
type NATSPublisher struct {
	conn   MessagePublisher
	prefix string
}

// NewNATSPublisher creates a snapshot feed on conn.
func NewNATSPublisher(conn MessagePublisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "planning.rooms"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject snapshots of code are published on.
func (p *NATSPublisher) Subject(code string) string {
	return fmt.Sprintf("%s.%s.state", p.prefix, code)
}

// Publish implements room.Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, state models.SessionState) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Str("room", state.Code).Msg("failed to marshal snapshot")
		return
	}

	subject := p.Subject(state.Code)
	if err := p.conn.Publish(subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Msg("failed to publish snapshot to NATS")
		return
	}

	log.Debug().
		Str("subject", subject).
		Int("bytes", len(data)).
		Msg("snapshot published to NATS")
}
