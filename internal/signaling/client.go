package signaling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/util"
)

const inboxSize = 64 // buffered so a slow consumer does not stall the read pump immediately

// WSChannel is the client side of the signaling channel: one WebSocket
// connection to the relay for the duration of a room membership.
type WSChannel struct {
	conn  *websocket.Conn
	inbox chan envelope.Envelope

	done      chan struct{}
	closeOnce sync.Once

	// Writes are serialized: envelope sends originate from the session
	// loop and from pion's ICE gathering goroutines.
	wmu sync.Mutex
}

// Dial connects to the relay's room endpoint and starts the read pump.
// relayURL is the base URL, e.g. ws://localhost:8080.
func Dial(ctx context.Context, relayURL, roomID, userID string) (*WSChannel, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s?user=%s",
		strings.TrimRight(relayURL, "/"), url.PathEscape(roomID), url.QueryEscape(userID))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	c := &WSChannel{
		conn:  conn,
		inbox: make(chan envelope.Envelope, inboxSize),
		done:  make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// readPump delivers inbound envelopes to the inbox in arrival order. It
// exits on any read error (including Close from either side) and closes
// the inbox so consumers observe the shutdown.
func (c *WSChannel) readPump() {
	defer func() {
		c.shutdown()
		close(c.inbox)
	}()
	for {
		var env envelope.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				util.LogDebug("signaling read ended: %v", err)
			}
			return
		}
		util.Stats.AddReceived()
		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

// Send writes one envelope to the relay. It fails with ErrChannelClosed
// once the channel has shut down.
func (c *WSChannel) Send(env envelope.Envelope) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		c.shutdown()
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	util.Stats.AddSent()
	return nil
}

// Messages returns the inbound envelope stream.
func (c *WSChannel) Messages() <-chan envelope.Envelope {
	return c.inbox
}

// Done returns a channel closed when the WSChannel shuts down.
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection. No further envelopes are delivered and
// subsequent sends fail with ErrChannelClosed.
func (c *WSChannel) Close() error {
	c.shutdown()
	return nil
}

func (c *WSChannel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
