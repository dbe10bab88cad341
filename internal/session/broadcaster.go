package session

import (
	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/registry"
	"github.com/fireside-hq/campcast/internal/util"
)

// handleAsBroadcaster reacts to the broadcaster's subset of envelope kinds.
// Kinds emitted by the receiver role arrive here too, because the relay
// fans everything out to the whole room; those are deliberate no-ops.
func (s *Session) handleAsBroadcaster(env envelope.Envelope) {
	switch env.Kind {
	case envelope.KindUserJoined:
		s.onUserJoined(env.UserID)
	case envelope.KindJoinChannel:
		s.onJoinChannelRequest(env.UserID)
	case envelope.KindAnswer:
		s.onAnswer(env)
	case envelope.KindCandidate:
		s.onBroadcasterCandidate(env)
	case envelope.KindUserLeft:
		s.onUserLeft(env.UserID)
	case envelope.KindOffer, envelope.KindLeaveChannel, envelope.KindStartedBroadcast:
		// Other-role traffic fanned out by the relay. Ignore.
	}
}

// onUserJoined creates the connection for the new member and invites them
// into the audio channel. The offer itself is deferred until the member
// signals readiness with its own join-channel-request.
func (s *Session) onUserJoined(userID string) {
	if userID == "" || userID == s.localID {
		return
	}

	peer, err := s.newPeer()
	if err != nil {
		util.LogError("create peer connection for %s: %v", userID, err)
		return
	}
	conn, err := s.reg.Create(userID, peer)
	if err != nil {
		// Invariant violation (duplicate join without a leave): reject the
		// operation, keep the existing connection.
		peer.Close()
		util.LogWarning("connection for %s already exists: %v", userID, err)
		return
	}
	s.wirePeer(conn)

	// A member joining mid-broadcast gets the running track immediately, so
	// the deferred offer already carries it.
	if s.isBroadcasting() {
		binding, err := s.media.AttachTo(conn)
		if err != nil {
			s.failNegotiation(userID, err)
		} else {
			s.bindings = append(s.bindings, binding)
		}
	}

	if err := s.send(envelope.Envelope{
		Kind:          envelope.KindJoinChannel,
		BroadcasterID: s.localID,
		ReceiverID:    userID,
	}); err != nil {
		util.LogWarning("invite %s: %v", userID, err)
	}
}

// onJoinChannelRequest generates and sends the offer toward a member that
// asked to listen. Unknown members are dropped silently: the request may
// race with their user-left.
func (s *Session) onJoinChannelRequest(userID string) {
	conn, ok := s.reg.Get(userID)
	if !ok {
		return
	}

	offer, err := conn.Peer.CreateOffer()
	if err != nil {
		s.failNegotiation(userID, err)
		return
	}
	if err := conn.Peer.SetLocalDescription(offer); err != nil {
		s.failNegotiation(userID, err)
		return
	}
	conn.SetState(registry.StateOfferSent)

	if err := s.send(envelope.Envelope{
		Kind:          envelope.KindOffer,
		BroadcasterID: s.localID,
		ReceiverID:    userID,
		Offer:         &offer,
	}); err != nil {
		s.failNegotiation(userID, err)
	}
}

// onAnswer applies a member's answer. Absent connections and stale or
// duplicate answers are no-ops.
func (s *Session) onAnswer(env envelope.Envelope) {
	conn, ok := s.reg.Get(env.UserID)
	if !ok || env.Answer == nil {
		return
	}
	if conn.State() != registry.StateOfferSent {
		return
	}
	if err := conn.Peer.SetRemoteDescription(*env.Answer); err != nil {
		s.failNegotiation(env.UserID, err)
		return
	}
	conn.SetState(registry.StateAnswered)
}

// onBroadcasterCandidate adds a member's ICE candidate regardless of
// negotiation state — candidates may arrive before or after the answer.
func (s *Session) onBroadcasterCandidate(env envelope.Envelope) {
	conn, ok := s.reg.Get(env.UserID)
	if !ok || env.Candidate == nil {
		return
	}
	if err := conn.Peer.AddICECandidate(*env.Candidate); err != nil {
		util.LogDebug("add candidate from %s: %v", env.UserID, err)
	}
}

// onUserLeft removes and closes the member's connection (idempotently) and
// acknowledges the departure toward the room.
func (s *Session) onUserLeft(userID string) {
	if userID == "" {
		return
	}
	s.reg.Remove(userID)

	// Drop the member's sender binding; the track itself keeps flowing to
	// everyone else.
	kept := s.bindings[:0]
	for _, b := range s.bindings {
		if b.UserID != userID {
			kept = append(kept, b)
		}
	}
	s.bindings = kept

	if err := s.send(envelope.Envelope{
		Kind:          envelope.KindLeaveChannel,
		BroadcasterID: s.localID,
		ReceiverID:    userID,
	}); err != nil {
		util.LogDebug("leave ack for %s: %v", userID, err)
	}
}
