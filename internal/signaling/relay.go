package signaling

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/util"
)

const memberSendSize = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Relay is the server side of the signaling channel. It holds one room per
// room identity, fans every envelope out to all other members of the room,
// and synthesizes user-joined / user-left envelopes from the WebSocket
// lifecycle. It never interprets SDP or ICE payloads.
//
// Endpoint: GET /rooms/{roomID}?user={userID}, upgraded to WebSocket.
type Relay struct {
	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	members map[string]*member
}

type member struct {
	userID string
	conn   *websocket.Conn
	send   chan envelope.Envelope
	once   sync.Once
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{rooms: make(map[string]*room)}
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rooms/"), "/")
	userID := r.URL.Query().Get("user")
	if roomID == "" || userID == "" || strings.Contains(roomID, "/") {
		http.Error(w, "missing room or user identity", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m, ok := rl.join(roomID, userID, conn)
	if !ok {
		// One live connection per user per room.
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	util.Stats.AddConn()
	util.LogInfo("relay: %s joined room %s", userID, roomID)

	go m.writePump()
	rl.readPump(roomID, m)

	rl.leave(roomID, m)
	util.Stats.RemoveConn()
	util.LogInfo("relay: %s left room %s", userID, roomID)
}

// readPump forwards inbound envelopes to the rest of the room, stamping the
// origin identity so recipients can key their connection lookups. It
// returns when the member's connection drops.
func (rl *Relay) readPump(roomID string, m *member) {
	for {
		var env envelope.Envelope
		if err := m.conn.ReadJSON(&env); err != nil {
			return
		}
		if !env.Kind.Valid() {
			util.LogDebug("relay: dropping unknown kind %q from %s", env.Kind, m.userID)
			continue
		}
		env.UserID = m.userID
		rl.fanOut(roomID, m.userID, env)
	}
}

// fanOut delivers env to every member of the room except the origin.
// ReceiverID is a routing hint only: clients are defensive about envelopes
// not meant for them, and presence-style kinds are meant for everyone.
// Queueing happens under the room lock so a member's send channel is never
// written after leave() has closed it.
func (rl *Relay) fanOut(roomID, origin string, env envelope.Envelope) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rm, ok := rl.rooms[roomID]
	if !ok {
		return
	}
	for _, other := range rm.members {
		if other.userID == origin {
			continue
		}
		select {
		case other.send <- env:
			util.Stats.AddRelayed()
		default:
			util.LogWarning("relay: send queue full for %s, dropping %s", other.userID, env.Kind)
		}
	}
}

// join registers the member, announcing user-joined to the rest of the
// room. The joiner is told about every member already present, queued
// before it takes part in fan-out, so membership discovery does not depend
// on arrival order: a broadcaster that joins (or reconnects) late still
// builds a connection per existing listener. It reports false when the
// user already has a live connection.
func (rl *Relay) join(roomID, userID string, conn *websocket.Conn) (*member, bool) {
	rl.mu.Lock()
	rm, ok := rl.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]*member)}
		rl.rooms[roomID] = rm
	}
	if _, exists := rm.members[userID]; exists {
		rl.mu.Unlock()
		return nil, false
	}
	m := &member{
		userID: userID,
		conn:   conn,
		send:   make(chan envelope.Envelope, memberSendSize),
	}
	for _, other := range rm.members {
		select {
		case m.send <- envelope.Envelope{Kind: envelope.KindUserJoined, UserID: other.userID}:
		default:
			util.LogWarning("relay: send queue full for %s, dropping member snapshot", userID)
		}
	}
	rm.members[userID] = m
	rl.mu.Unlock()

	rl.fanOut(roomID, userID, envelope.Envelope{Kind: envelope.KindUserJoined, UserID: userID})
	return m, true
}

// leave unregisters the member, deletes the room when it empties, and
// announces user-left to anyone still there.
func (rl *Relay) leave(roomID string, m *member) {
	rl.mu.Lock()
	rm, ok := rl.rooms[roomID]
	if ok {
		delete(rm.members, m.userID)
		if len(rm.members) == 0 {
			delete(rl.rooms, roomID)
		}
	}
	m.close()
	rl.mu.Unlock()

	rl.fanOut(roomID, m.userID, envelope.Envelope{Kind: envelope.KindUserLeft, UserID: m.userID})
}

// RoomSize reports how many members are currently in the room.
func (rl *Relay) RoomSize(roomID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rm, ok := rl.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// writePump is the single writer for one member's connection.
func (m *member) writePump() {
	for env := range m.send {
		if err := m.conn.WriteJSON(env); err != nil {
			m.conn.Close()
			// Drain so fanOut never blocks on a dead member.
			for range m.send {
			}
			return
		}
	}
	m.conn.Close()
}

func (m *member) close() {
	m.once.Do(func() { close(m.send) })
}
