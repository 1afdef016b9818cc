package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"dormlink/internal/infrastructure/relay/port"
)

const subjectPrefix = "chat.broadcast."

// Localcast is the local delivery sink for payloads arriving from peers.
// *realtime.Registry satisfies it.
type Localcast interface {
	Broadcast(group string, payload []byte) int
}

// envelope is the wire format carried over NATS. Origin lets each node skip
// its own publications.
type envelope struct {
	Origin  string          `json:"origin"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// NATSRelay implements port.Relay on a NATS connection. Every node publishes
// its broadcasts and subscribes to everyone else's, delivering inbound
// payloads to its local registry.
type NATSRelay struct {
	conn   *nats.Conn
	origin string
	sub    *nats.Subscription
	logger *slog.Logger
}

var _ port.Relay = (*NATSRelay)(nil)

// NewNATSRelay connects to the broker and starts relaying inbound broadcasts
// into local. The origin id is generated per process.
func NewNATSRelay(url string, local Localcast, logger *slog.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, nats.Name("dormlink-chat"))
	if err != nil {
		return nil, fmt.Errorf("relay: connect: %w", err)
	}

	r := &NATSRelay{conn: conn, origin: uuid.NewString(), logger: logger}

	sub, err := conn.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.logger.Warn("relay: dropped malformed envelope", "err", err)
			return
		}
		if env.Origin == r.origin {
			return
		}
		local.Broadcast(env.Group, env.Payload)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("relay: subscribe: %w", err)
	}
	r.sub = sub
	return r, nil
}

func (r *NATSRelay) Publish(ctx context.Context, group string, payload []byte) error {
	env := envelope{Origin: r.origin, Group: group, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: encode envelope: %w", err)
	}
	return r.conn.Publish(subjectPrefix+group, data)
}

func (r *NATSRelay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	r.conn.Close()
	return nil
}
