// Package signaling provides the per-room signaling channel — the
// WebSocket client used by room members and the relay that fans envelopes
// out between them. All SDP and ICE payloads are opaque here; interpreting
// them is the session's job.
package signaling

import (
	"errors"

	"github.com/fireside-hq/campcast/internal/envelope"
)

// ErrChannelClosed is returned when the signaling channel is no longer
// usable. It is fatal for the current session: the caller must reconnect
// and rebuild role and registry state from scratch.
var ErrChannelClosed = errors.New("signaling channel closed")

// Channel is a persistent, bidirectional envelope stream scoped to one room
// membership.
//
// Messages delivers inbound envelopes in arrival order and is closed when
// the channel shuts down; after that, Send fails with ErrChannelClosed.
// Reconnection is not automatic.
type Channel interface {
	Send(envelope.Envelope) error
	Messages() <-chan envelope.Envelope
	Close() error
	Done() <-chan struct{}
}
