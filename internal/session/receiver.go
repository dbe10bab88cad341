package session

import (
	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/registry"
	"github.com/fireside-hq/campcast/internal/util"
)

// handleAsReceiver reacts to the receiver's subset of envelope kinds
// against the single connection held toward the broadcaster.
func (s *Session) handleAsReceiver(env envelope.Envelope) {
	switch env.Kind {
	case envelope.KindOffer:
		s.onOffer(env)
	case envelope.KindCandidate:
		s.onReceiverCandidate(env)
	case envelope.KindUserJoined:
		s.onPeerJoined(env.UserID)
	case envelope.KindUserLeft:
		s.onPeerLeft(env.UserID)
	case envelope.KindStartedBroadcast:
		s.onStartedBroadcast()
	case envelope.KindLeaveChannel:
		s.onLeaveChannel(env)
	case envelope.KindAnswer, envelope.KindJoinChannel:
		// Broadcaster-role traffic fanned out by the relay. Ignore.
	}
}

// onOffer applies the broadcaster's offer and replies with an answer:
// created → offer-received → answered in one envelope handling, since the
// answer generation is local.
func (s *Session) onOffer(env envelope.Envelope) {
	conn, ok := s.reg.Get(s.room.BroadcasterID)
	if !ok || env.Offer == nil {
		return
	}

	if err := conn.Peer.SetRemoteDescription(*env.Offer); err != nil {
		s.failNegotiation(s.room.BroadcasterID, err)
		return
	}
	conn.SetState(registry.StateOfferReceived)

	answer, err := conn.Peer.CreateAnswer()
	if err != nil {
		s.failNegotiation(s.room.BroadcasterID, err)
		return
	}
	if err := conn.Peer.SetLocalDescription(answer); err != nil {
		s.failNegotiation(s.room.BroadcasterID, err)
		return
	}
	conn.SetState(registry.StateAnswered)

	if err := s.send(envelope.Envelope{
		Kind:          envelope.KindAnswer,
		BroadcasterID: s.room.BroadcasterID,
		ReceiverID:    s.localID,
		Answer:        &answer,
	}); err != nil {
		s.failNegotiation(s.room.BroadcasterID, err)
	}
}

// onReceiverCandidate adds the broadcaster's ICE candidate unconditionally.
func (s *Session) onReceiverCandidate(env envelope.Envelope) {
	conn, ok := s.reg.Get(s.room.BroadcasterID)
	if !ok || env.Candidate == nil {
		return
	}
	if err := conn.Peer.AddICECandidate(*env.Candidate); err != nil {
		util.LogDebug("add candidate from broadcaster: %v", err)
	}
}

// onPeerJoined and onPeerLeft keep the receiver-side presence list.
func (s *Session) onPeerJoined(userID string) {
	if userID == "" || userID == s.localID {
		return
	}
	s.mu.Lock()
	s.connected[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) onPeerLeft(userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	delete(s.connected, userID)
	s.mu.Unlock()

	// The broadcaster going away invalidates the negotiated connection;
	// replace it so a later listen starts from scratch.
	if userID == s.room.BroadcasterID {
		if err := s.resetReceiverConn(); err != nil {
			util.LogError("replace receiver connection: %v", err)
		}
	}
}

// onStartedBroadcast optionally re-joins the audio channel when the session
// is configured to auto-listen.
func (s *Session) onStartedBroadcast() {
	if !s.autoListen || s.isListening() {
		return
	}
	if err := s.startListening(); err != nil {
		util.LogWarning("auto-listen: %v", err)
	}
}

// onLeaveChannel handles the broadcaster ending this receiver's channel
// membership: tear down and recreate a fresh connection so a later
// ListenToBroadcaster renegotiates cleanly.
func (s *Session) onLeaveChannel(env envelope.Envelope) {
	if env.ReceiverID != s.localID {
		return
	}
	if err := s.resetReceiverConn(); err != nil {
		util.LogError("replace receiver connection: %v", err)
	}
}

// startListening emits the join-channel-request that triggers offer
// generation on the broadcaster side. Runs on the coordinator goroutine.
func (s *Session) startListening() error {
	if s.isListening() {
		return ErrAlreadyListening
	}
	if _, ok := s.reg.Get(s.room.BroadcasterID); !ok {
		// Defensive: the eager connection should always exist.
		if err := s.createReceiverConn(); err != nil {
			return err
		}
	}
	s.setListening(true)
	return s.send(envelope.Envelope{
		Kind:          envelope.KindJoinChannel,
		BroadcasterID: s.room.BroadcasterID,
		ReceiverID:    s.localID,
	})
}

// createReceiverConn installs the single eager connection toward the
// broadcaster, held until the first real negotiation.
func (s *Session) createReceiverConn() error {
	peer, err := s.newPeer()
	if err != nil {
		return err
	}
	conn, err := s.reg.Create(s.room.BroadcasterID, peer)
	if err != nil {
		peer.Close()
		return err
	}
	s.wirePeer(conn)
	return nil
}

// resetReceiverConn discards the current connection toward the broadcaster
// and replaces it with a fresh, unnegotiated one.
func (s *Session) resetReceiverConn() error {
	s.reg.Remove(s.room.BroadcasterID)
	s.setListening(false)
	return s.createReceiverConn()
}
