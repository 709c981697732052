// Package mirror taps room broadcasts onto NATS subjects for external
// consumers such as scoreboards or moderation audit. The tap is
// outbound-only and best-effort; in-room fanout never depends on it.
package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds NATS mirror configuration.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default mirror configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "quiz.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher publishes room events to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

type envelope struct {
	Event     string          `json:"event"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewPublisher connects to NATS and returns a publisher.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
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

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Publisher{nc: nc, prefix: config.SubjectPrefix}, nil
}

// Publish mirrors one room broadcast to <prefix>.<roomID>.<event>.
// Failures are logged, never surfaced: the mirror must not affect the
// room.
func (p *Publisher) Publish(roomID, event string, payload json.RawMessage) {
	subject := fmt.Sprintf("%s.%s.%s", p.prefix, roomID, event)

	data, err := json.Marshal(envelope{
		Event:     event,
		RoomID:    roomID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal mirror envelope")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to mirror event")
	}
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
