package session

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongRole rejects a public operation that the local role cannot
	// perform (e.g. a receiver starting a broadcast).
	ErrWrongRole = errors.New("operation not valid for this role")

	// ErrAlreadyBroadcasting rejects StartBroadcasting while a broadcast
	// is running.
	ErrAlreadyBroadcasting = errors.New("broadcast already in progress")

	// ErrAlreadyListening rejects ListenToBroadcaster while a listen is
	// active without an intervening StopListening.
	ErrAlreadyListening = errors.New("already listening to broadcaster")
)

// NegotiationError reports an SDP or transport failure isolated to one
// remote peer. It never tears down sibling connections or the channel.
type NegotiationError struct {
	UserID string
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s failed: %v", e.UserID, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
