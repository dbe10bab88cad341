// Package session drives the WebRTC signaling state machine for one room
// membership. A Session owns its signaling channel, peer connection
// registry and media controller; nothing is reached through ambient state,
// so sessions in different rooms cannot leak into each other.
//
// All registry mutation happens on the coordinator goroutine running Run:
// inbound envelopes and public operations are funneled through it, which is
// the whole locking discipline the state machine needs.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/media"
	"github.com/fireside-hq/campcast/internal/registry"
	"github.com/fireside-hq/campcast/internal/rtc"
	"github.com/fireside-hq/campcast/internal/signaling"
	"github.com/fireside-hq/campcast/internal/util"
)

const opQueueSize = 16

// Config assembles a Session. Channel, Room and LocalUserID are required;
// NewPeer and Media default to the production implementations.
type Config struct {
	Room        Room
	LocalUserID string
	Channel     signaling.Channel
	Media       *media.Controller
	NewPeer     rtc.Factory

	// AutoListen makes a receiver react to started-broadcast by emitting
	// its own join-channel-request.
	AutoListen bool

	// OnNegotiationFailure is invoked (from the coordinator goroutine) for
	// per-peer negotiation failures. Optional; failures are always logged.
	OnNegotiationFailure func(*NegotiationError)
}

type op struct {
	fn    func() error
	reply chan error
}

// Session coordinates signaling and connection topology for one room
// membership, in one fixed role.
type Session struct {
	room       Room
	localID    string
	role       Role
	ch         signaling.Channel
	reg        *registry.Registry
	media      *media.Controller
	newPeer    rtc.Factory
	autoListen bool
	onFailure  func(*NegotiationError)

	ops       chan op
	done      chan struct{}
	closeOnce sync.Once

	mu           sync.RWMutex
	listening    bool
	broadcasting bool
	connected    map[string]struct{} // receiver-side presence list

	// bindings is touched only by the coordinator goroutine.
	bindings []media.Binding
}

// New builds a Session and, for a receiver, eagerly creates the single
// connection toward the broadcaster so a later offer lands on a live
// registry entry.
func New(cfg Config) (*Session, error) {
	if cfg.Channel == nil {
		return nil, fmt.Errorf("session: missing signaling channel")
	}
	if cfg.Room.ID == "" || cfg.Room.BroadcasterID == "" || cfg.LocalUserID == "" {
		return nil, fmt.Errorf("session: incomplete room or user identity")
	}
	if cfg.NewPeer == nil {
		cfg.NewPeer = rtc.NewPeer
	}
	if cfg.Media == nil {
		cfg.Media = media.NewController(media.NewMicrophoneSource())
	}

	s := &Session{
		room:       cfg.Room,
		localID:    cfg.LocalUserID,
		role:       ResolveRole(cfg.Room, cfg.LocalUserID),
		ch:         cfg.Channel,
		reg:        registry.New(),
		media:      cfg.Media,
		newPeer:    cfg.NewPeer,
		autoListen: cfg.AutoListen,
		onFailure:  cfg.OnNegotiationFailure,
		ops:        make(chan op, opQueueSize),
		done:       make(chan struct{}),
		connected:  make(map[string]struct{}),
	}

	if s.role == RoleReceiver {
		if err := s.createReceiverConn(); err != nil {
			return nil, fmt.Errorf("session: create receiver connection: %w", err)
		}
	}
	return s, nil
}

// Run is the coordinator loop. It returns when ctx is cancelled or the
// signaling channel closes; either way the registry and media resources
// are released. Only channel closure is fatal — per-peer failures are
// contained inside envelope handling.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o := <-s.ops:
			o.reply <- o.fn()
		case env, ok := <-s.ch.Messages():
			if !ok {
				return fmt.Errorf("session %s: %w", s.room.ID, signaling.ErrChannelClosed)
			}
			s.handle(env)
		}
	}
}

// handle dispatches one inbound envelope to the role-specific half of the
// protocol. Unknown kinds are dropped: the relay fans everything out to
// every member, so foreign traffic is expected, not an error.
func (s *Session) handle(env envelope.Envelope) {
	if !env.Kind.Valid() {
		util.LogDebug("dropping unknown envelope kind %q", env.Kind)
		return
	}
	if s.role == RoleBroadcaster {
		s.handleAsBroadcaster(env)
	} else {
		s.handleAsReceiver(env)
	}
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// StartBroadcasting acquires the microphone, attaches the outbound audio
// track to every existing connection and announces started-broadcast.
// Acquisition failure leaves all peer connections intact.
func (s *Session) StartBroadcasting() error {
	return s.do(func() error {
		if s.role != RoleBroadcaster {
			return ErrWrongRole
		}
		if s.isBroadcasting() {
			return ErrAlreadyBroadcasting
		}
		bindings, err := s.media.AttachLocalAudio(s.reg.All())
		if err != nil {
			return err
		}
		s.bindings = bindings
		s.setBroadcasting(true)
		return s.send(envelope.Envelope{Kind: envelope.KindStartedBroadcast})
	})
}

// StopBroadcasting detaches exactly the sender bindings created by the
// current broadcast. Connections remain open for a later restart.
func (s *Session) StopBroadcasting() error {
	return s.do(func() error {
		if s.role != RoleBroadcaster {
			return ErrWrongRole
		}
		if !s.isBroadcasting() {
			return nil
		}
		s.media.DetachLocalAudio(s.bindings)
		s.bindings = nil
		s.setBroadcasting(false)
		return nil
	})
}

// ListenToBroadcaster asks the broadcaster to start offer generation toward
// this receiver and arms remote-track playback. Calling it while already
// listening is rejected with ErrAlreadyListening; StopListening first.
func (s *Session) ListenToBroadcaster() error {
	return s.do(func() error {
		if s.role != RoleReceiver {
			return ErrWrongRole
		}
		return s.startListening()
	})
}

// StopListening announces the departure and replaces the local connection
// with a fresh one so a later listen renegotiates cleanly. It is a no-op
// when not listening.
func (s *Session) StopListening() error {
	return s.do(func() error {
		if s.role != RoleReceiver {
			return ErrWrongRole
		}
		if !s.isListening() {
			return nil
		}
		err := s.send(envelope.Envelope{
			Kind:          envelope.KindLeaveChannel,
			BroadcasterID: s.room.BroadcasterID,
			ReceiverID:    s.localID,
		})
		if rerr := s.resetReceiverConn(); rerr != nil && err == nil {
			err = rerr
		}
		return err
	})
}

// ActiveConnections returns the identities with a live peer connection on
// this side, sorted. For UI presence indicators.
func (s *Session) ActiveConnections() []string {
	return s.reg.Users()
}

// ConnectedUsers returns the receiver-side view of who is currently in the
// audio channel, sorted.
func (s *Session) ConnectedUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.connected))
	for userID := range s.connected {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Role returns the fixed role resolved at construction.
func (s *Session) Role() Role { return s.role }

// ConnectionState reports the negotiation state toward userID, or false if
// no connection exists.
func (s *Session) ConnectionState(userID string) (registry.State, bool) {
	conn, ok := s.reg.Get(userID)
	if !ok {
		return 0, false
	}
	return conn.State(), true
}

// ---------------------------------------------------------------------------
// Coordinator plumbing
// ---------------------------------------------------------------------------

// do runs fn on the coordinator goroutine and waits for its result.
func (s *Session) do(fn func() error) error {
	o := op{fn: fn, reply: make(chan error, 1)}
	select {
	case s.ops <- o:
	case <-s.done:
		return signaling.ErrChannelClosed
	}
	select {
	case err := <-o.reply:
		return err
	case <-s.done:
		return signaling.ErrChannelClosed
	}
}

// post schedules fn on the coordinator goroutine without waiting. Used by
// transport callbacks that fire on pion goroutines.
func (s *Session) post(fn func() error) {
	o := op{fn: fn, reply: make(chan error, 1)}
	select {
	case s.ops <- o:
	case <-s.done:
	}
}

// send writes one envelope over the signaling channel.
func (s *Session) send(env envelope.Envelope) error {
	return s.ch.Send(env)
}

// wirePeer registers the transport callbacks for a freshly created
// connection: trickle-ICE forwarding, connection-state bookkeeping and,
// on the receiver side, remote-track playback.
func (s *Session) wirePeer(conn *registry.Conn) {
	userID := conn.UserID

	conn.Peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		env := envelope.Envelope{
			Kind:          envelope.KindCandidate,
			BroadcasterID: s.room.BroadcasterID,
			Candidate:     &init,
		}
		if s.role == RoleBroadcaster {
			env.ReceiverID = userID
		} else {
			env.ReceiverID = s.localID
		}
		// Best-effort: a candidate lost to channel teardown is irrelevant.
		if err := s.send(env); err != nil {
			util.LogDebug("candidate send failed: %v", err)
		}
	})

	conn.Peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer %s connection state: %s", userID, state)
		if state != webrtc.PeerConnectionStateConnected {
			return
		}
		s.post(func() error {
			if cur, ok := s.reg.Get(userID); ok && cur == conn && cur.State() == registry.StateAnswered {
				cur.SetState(registry.StateEstablished)
			}
			return nil
		})
	})

	conn.Peer.OnTrack(func(track rtc.RemoteTrack) {
		if s.role != RoleReceiver || !s.isListening() {
			return
		}
		if err := s.media.RenderRemoteAudio(track); err != nil {
			util.LogWarning("render remote audio: %v", err)
		}
	})
}

// failNegotiation contains a per-peer failure: log it, notify the optional
// observer, and leave every other connection alone.
func (s *Session) failNegotiation(userID string, err error) {
	nerr := &NegotiationError{UserID: userID, Err: err}
	util.LogError("%v", nerr)
	if s.onFailure != nil {
		s.onFailure(nerr)
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.reg.Clear()
		s.media.Close()
		s.ch.Close()
	})
}

func (s *Session) isListening() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listening
}

func (s *Session) setListening(v bool) {
	s.mu.Lock()
	s.listening = v
	s.mu.Unlock()
}

func (s *Session) isBroadcasting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadcasting
}

func (s *Session) setBroadcasting(v bool) {
	s.mu.Lock()
	s.broadcasting = v
	s.mu.Unlock()
}
