package port

import "context"

// Relay forwards group broadcasts to peer processes over a pub/sub broker so
// members connected elsewhere still receive them. Single-node deployments run
// without one; a nil Relay is valid wherever the port is accepted.
type Relay interface {
	// Publish announces a payload for the named broadcast group. Delivery to
	// peers is best-effort and must not affect local delivery.
	Publish(ctx context.Context, group string, payload []byte) error

	Close() error
}
