package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/fireside-hq/campcast/internal/envelope"
	"github.com/fireside-hq/campcast/internal/media"
	"github.com/fireside-hq/campcast/internal/registry"
	"github.com/fireside-hq/campcast/internal/rtc/rtctest"
	"github.com/fireside-hq/campcast/internal/signaling"
)

const (
	roomID        = "camp1"
	broadcasterID = "bcast"
	receiverID    = "recv"
)

// fakeChannel is an in-memory signaling.Channel: tests inject inbound
// envelopes with deliver and inspect everything the session sent.
type fakeChannel struct {
	inbox chan envelope.Envelope
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	sent []envelope.Envelope
}

var _ signaling.Channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbox: make(chan envelope.Envelope, 64),
		done:  make(chan struct{}),
	}
}

func (c *fakeChannel) Send(env envelope.Envelope) error {
	select {
	case <-c.done:
		return signaling.ErrChannelClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Messages() <-chan envelope.Envelope { return c.inbox }
func (c *fakeChannel) Done() <-chan struct{}              { return c.done }

func (c *fakeChannel) Close() error {
	c.once.Do(func() {
		close(c.done)
		close(c.inbox)
	})
	return nil
}

func (c *fakeChannel) deliver(env envelope.Envelope) {
	c.inbox <- env
}

func (c *fakeChannel) sentOfKind(kind envelope.Kind) []envelope.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []envelope.Envelope
	for _, env := range c.sent {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeCapture satisfies media.CaptureSource without touching a device.
type fakeCapture struct {
	err error

	mu      sync.Mutex
	started bool
}

func (f *fakeCapture) Start(func([]int16)) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

type harness struct {
	sess    *Session
	ch      *fakeChannel
	peers   *rtctest.Factory
	capture *fakeCapture
	errCh   chan error
	cancel  context.CancelFunc

	waitOnce sync.Once
	runErr   error
}

// wait blocks until the coordinator goroutine returns and caches the result
// so the test body and cleanup can both observe it.
func (h *harness) wait(t *testing.T) error {
	t.Helper()
	h.waitOnce.Do(func() {
		select {
		case h.runErr = <-h.errCh:
		case <-time.After(time.Second):
			t.Error("session did not stop")
		}
	})
	return h.runErr
}

// startSession builds a session for localID and runs its coordinator until
// the test ends.
func startSession(t *testing.T, localID string, autoListen bool) *harness {
	t.Helper()

	h := &harness{
		ch:      newFakeChannel(),
		peers:   &rtctest.Factory{},
		capture: &fakeCapture{},
		errCh:   make(chan error, 1),
	}

	sess, err := New(Config{
		Room:        Room{ID: roomID, BroadcasterID: broadcasterID},
		LocalUserID: localID,
		Channel:     h.ch,
		Media:       media.NewController(h.capture),
		NewPeer:     h.peers.New,
		AutoListen:  autoListen,
	})
	require.NoError(t, err)
	h.sess = sess

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errCh <- sess.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		h.wait(t)
	})
	return h
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 2*time.Millisecond, msg)
}

// ---------------------------------------------------------------------------
// Role resolution
// ---------------------------------------------------------------------------

func TestResolveRole(t *testing.T) {
	room := Room{ID: roomID, BroadcasterID: broadcasterID}
	require.Equal(t, RoleBroadcaster, ResolveRole(room, broadcasterID))
	require.Equal(t, RoleReceiver, ResolveRole(room, receiverID))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Channel: newFakeChannel(), Room: Room{ID: roomID}, LocalUserID: "u"})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Broadcaster role
// ---------------------------------------------------------------------------

func TestBroadcasterMembershipDrivesRegistry(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"})

	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 2 }, "two connections")
	require.Equal(t, []string{"u1", "u2"}, h.sess.ActiveConnections())

	invites := h.ch.sentOfKind(envelope.KindJoinChannel)
	require.Len(t, invites, 2)
	require.Equal(t, broadcasterID, invites[0].BroadcasterID)
	require.Equal(t, "u1", invites[0].ReceiverID)
	require.Equal(t, "u2", invites[1].ReceiverID)

	// u1 leaves: connection removed and closed, departure acknowledged.
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserLeft, UserID: "u1"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "u1 removed")
	require.Equal(t, []string{"u2"}, h.sess.ActiveConnections())
	require.True(t, h.peers.Peers()[0].IsClosed())

	leaves := h.ch.sentOfKind(envelope.KindLeaveChannel)
	require.Len(t, leaves, 1)
	require.Equal(t, "u1", leaves[0].ReceiverID)

	// Repeated user-left and a late candidate for u1 are no-ops.
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserLeft, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{
		Kind:      envelope.KindCandidate,
		UserID:    "u1",
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:late"},
	})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u3"}) // fence
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 2 }, "u3 joined")
	require.Equal(t, []string{"u2", "u3"}, h.sess.ActiveConnections())
}

func TestBroadcasterDuplicateJoinRejected(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})

	eventually(t, func() bool { return len(h.peers.Peers()) == 2 }, "both joins processed")
	require.Equal(t, []string{"u1"}, h.sess.ActiveConnections())
	// The connection created for the duplicate join is released.
	require.True(t, h.peers.Peers()[1].IsClosed())
	require.False(t, h.peers.Peers()[0].IsClosed())
}

func TestBroadcasterOfferAnswerFlow(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "u1 joined")

	state, ok := h.sess.ConnectionState("u1")
	require.True(t, ok)
	require.Equal(t, registry.StateCreated, state)
	require.Empty(t, h.ch.sentOfKind(envelope.KindOffer), "offer is deferred until readiness")

	// The member signals readiness.
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindJoinChannel, UserID: "u1"})
	eventually(t, func() bool { return len(h.ch.sentOfKind(envelope.KindOffer)) == 1 }, "offer sent")

	offer := h.ch.sentOfKind(envelope.KindOffer)[0]
	require.Equal(t, "u1", offer.ReceiverID)
	require.Equal(t, broadcasterID, offer.BroadcasterID)
	require.NotNil(t, offer.Offer)

	peer := h.peers.Peers()[0]
	require.NotNil(t, peer.LocalDescription())
	state, _ = h.sess.ConnectionState("u1")
	require.Equal(t, registry.StateOfferSent, state)

	// Answer arrives.
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindAnswer, UserID: "u1", Answer: &answer})
	eventually(t, func() bool {
		state, _ := h.sess.ConnectionState("u1")
		return state == registry.StateAnswered
	}, "answered")
	require.Equal(t, "v=0 answer", peer.RemoteDescription().SDP)

	// ICE completes.
	peer.FireConnectionState(webrtc.PeerConnectionStateConnected)
	eventually(t, func() bool {
		state, _ := h.sess.ConnectionState("u1")
		return state == registry.StateEstablished
	}, "established")

	// Late candidates are accepted without state regression.
	h.ch.deliver(envelope.Envelope{
		Kind:      envelope.KindCandidate,
		UserID:    "u1",
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	eventually(t, func() bool { return len(peer.Candidates()) == 1 }, "candidate added")
	state, _ = h.sess.ConnectionState("u1")
	require.Equal(t, registry.StateEstablished, state)
}

func TestAnswerAndCandidateForUnknownUserAreNoOps(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindAnswer, UserID: "ghost", Answer: &answer})
	h.ch.deliver(envelope.Envelope{
		Kind:      envelope.KindCandidate,
		UserID:    "ghost",
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"}) // fence

	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "only u1")
	require.Equal(t, []string{"u1"}, h.sess.ActiveConnections())
	require.Zero(t, h.ch.sentCount()-len(h.ch.sentOfKind(envelope.KindJoinChannel)),
		"nothing but the invite was sent")
}

func TestBroadcasterIgnoresReceiverKinds(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindOffer, UserID: "u1", Offer: &offer})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindStartedBroadcast, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"}) // fence

	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "only the join acted")
	require.Len(t, h.peers.Peers(), 1)
}

func TestStartStopBroadcasting(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 2 }, "two members")

	require.NoError(t, h.sess.StartBroadcasting())
	require.Len(t, h.ch.sentOfKind(envelope.KindStartedBroadcast), 1)
	for _, peer := range h.peers.Peers() {
		require.Len(t, peer.Tracks(), 1)
	}
	require.ErrorIs(t, h.sess.StartBroadcasting(), ErrAlreadyBroadcasting)

	// Stopping removes exactly the attached senders; connections stay open.
	require.NoError(t, h.sess.StopBroadcasting())
	for _, peer := range h.peers.Peers() {
		require.Len(t, peer.RemovedSenders(), 1)
		require.False(t, peer.IsClosed())
	}
	require.Equal(t, []string{"u1", "u2"}, h.sess.ActiveConnections())

	// Stop without a broadcast is a no-op, and a new broadcast can start.
	require.NoError(t, h.sess.StopBroadcasting())
	require.NoError(t, h.sess.StartBroadcasting())
}

func TestMidBroadcastJoinerGetsTrack(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "u1 joined")
	require.NoError(t, h.sess.StartBroadcasting())

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 2 }, "u2 joined")
	require.Len(t, h.peers.Last().Tracks(), 1, "late joiner gets the running track")
}

func TestMediaAcquisitionFailureLeavesConnectionsIntact(t *testing.T) {
	h := startSession(t, broadcasterID, false)
	h.capture.err = errors.New("device busy")

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "u1 joined")

	err := h.sess.StartBroadcasting()
	require.ErrorIs(t, err, media.ErrMediaAcquisition)

	require.Empty(t, h.ch.sentOfKind(envelope.KindStartedBroadcast))
	require.Equal(t, []string{"u1"}, h.sess.ActiveConnections())
	require.Empty(t, h.peers.Peers()[0].Tracks())

	// Recovery: fix the device and broadcast normally.
	h.capture.err = nil
	require.NoError(t, h.sess.StartBroadcasting())
}

func TestBroadcasterCannotListen(t *testing.T) {
	h := startSession(t, broadcasterID, false)
	require.ErrorIs(t, h.sess.ListenToBroadcaster(), ErrWrongRole)
	require.ErrorIs(t, h.sess.StopListening(), ErrWrongRole)
}

// ---------------------------------------------------------------------------
// Receiver role
// ---------------------------------------------------------------------------

func TestReceiverEagerConnection(t *testing.T) {
	h := startSession(t, receiverID, false)

	require.Equal(t, []string{broadcasterID}, h.sess.ActiveConnections())
	state, ok := h.sess.ConnectionState(broadcasterID)
	require.True(t, ok)
	require.Equal(t, registry.StateCreated, state)
}

func TestReceiverListenFlow(t *testing.T) {
	h := startSession(t, receiverID, false)

	require.NoError(t, h.sess.ListenToBroadcaster())

	joins := h.ch.sentOfKind(envelope.KindJoinChannel)
	require.Len(t, joins, 1)
	require.Equal(t, broadcasterID, joins[0].BroadcasterID)
	require.Equal(t, receiverID, joins[0].ReceiverID)

	// Listening twice without stopping is rejected deterministically.
	require.ErrorIs(t, h.sess.ListenToBroadcaster(), ErrAlreadyListening)
	require.Len(t, h.ch.sentOfKind(envelope.KindJoinChannel), 1)

	// The broadcaster's offer round-trips into exactly one answer.
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindOffer, UserID: broadcasterID, Offer: &offer})

	eventually(t, func() bool { return len(h.ch.sentOfKind(envelope.KindAnswer)) == 1 }, "answer sent")
	answers := h.ch.sentOfKind(envelope.KindAnswer)
	require.Equal(t, receiverID, answers[0].ReceiverID)
	require.NotNil(t, answers[0].Answer)

	state, _ := h.sess.ConnectionState(broadcasterID)
	require.Equal(t, registry.StateAnswered, state)

	peer := h.peers.Peers()[0]
	require.Equal(t, "v=0 offer", peer.RemoteDescription().SDP)
	require.NotNil(t, peer.LocalDescription())

	// Candidates land unconditionally.
	h.ch.deliver(envelope.Envelope{
		Kind:      envelope.KindCandidate,
		UserID:    broadcasterID,
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	eventually(t, func() bool { return len(peer.Candidates()) == 1 }, "candidate added")
}

func TestStopListeningReplacesConnection(t *testing.T) {
	h := startSession(t, receiverID, false)

	require.NoError(t, h.sess.ListenToBroadcaster())
	first := h.peers.Peers()[0]

	require.NoError(t, h.sess.StopListening())

	leaves := h.ch.sentOfKind(envelope.KindLeaveChannel)
	require.Len(t, leaves, 1)
	require.Equal(t, receiverID, leaves[0].ReceiverID)

	require.True(t, first.IsClosed())
	require.Len(t, h.peers.Peers(), 2, "a fresh connection replaces the old one")
	state, ok := h.sess.ConnectionState(broadcasterID)
	require.True(t, ok)
	require.Equal(t, registry.StateCreated, state)

	// A later listen renegotiates cleanly.
	require.NoError(t, h.sess.ListenToBroadcaster())

	// Stop when not listening is a no-op.
	require.NoError(t, h.sess.StopListening())
	require.NoError(t, h.sess.StopListening())
}

func TestReceiverPresenceList(t *testing.T) {
	h := startSession(t, receiverID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u3"})
	eventually(t, func() bool { return len(h.sess.ConnectedUsers()) == 2 }, "presence grows")
	require.Equal(t, []string{"u2", "u3"}, h.sess.ConnectedUsers())

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserLeft, UserID: "u2"})
	eventually(t, func() bool { return len(h.sess.ConnectedUsers()) == 1 }, "presence shrinks")
	require.Equal(t, []string{"u3"}, h.sess.ConnectedUsers())
}

func TestReceiverResetsWhenBroadcasterLeaves(t *testing.T) {
	h := startSession(t, receiverID, false)

	require.NoError(t, h.sess.ListenToBroadcaster())
	first := h.peers.Peers()[0]

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserLeft, UserID: broadcasterID})
	eventually(t, func() bool { return first.IsClosed() }, "stale connection closed")
	eventually(t, func() bool { return len(h.peers.Peers()) == 2 }, "replacement created")

	state, ok := h.sess.ConnectionState(broadcasterID)
	require.True(t, ok)
	require.Equal(t, registry.StateCreated, state)

	// The reset also cleared the listening flag.
	require.NoError(t, h.sess.ListenToBroadcaster())
}

func TestAutoListenReactsToStartedBroadcast(t *testing.T) {
	h := startSession(t, receiverID, true)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindStartedBroadcast, UserID: broadcasterID})
	eventually(t, func() bool { return len(h.ch.sentOfKind(envelope.KindJoinChannel)) == 1 }, "auto join")

	// Repeated announcements do not re-join.
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindStartedBroadcast, UserID: broadcasterID})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u9"}) // fence
	eventually(t, func() bool { return len(h.sess.ConnectedUsers()) == 1 }, "fence processed")
	require.Len(t, h.ch.sentOfKind(envelope.KindJoinChannel), 1)
}

func TestReceiverWithoutAutoListenIgnoresStartedBroadcast(t *testing.T) {
	h := startSession(t, receiverID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindStartedBroadcast, UserID: broadcasterID})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u9"}) // fence
	eventually(t, func() bool { return len(h.sess.ConnectedUsers()) == 1 }, "fence processed")
	require.Empty(t, h.ch.sentOfKind(envelope.KindJoinChannel))
}

func TestReceiverIgnoresBroadcasterKinds(t *testing.T) {
	h := startSession(t, receiverID, false)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindAnswer, UserID: "u2", Answer: &answer})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindJoinChannel, UserID: "u2"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"}) // fence

	eventually(t, func() bool { return len(h.sess.ConnectedUsers()) == 1 }, "fence processed")
	require.Nil(t, h.peers.Peers()[0].RemoteDescription())
	require.Zero(t, h.ch.sentCount())
}

func TestReceiverCannotBroadcast(t *testing.T) {
	h := startSession(t, receiverID, false)
	require.ErrorIs(t, h.sess.StartBroadcasting(), ErrWrongRole)
	require.ErrorIs(t, h.sess.StopBroadcasting(), ErrWrongRole)
}

// ---------------------------------------------------------------------------
// Failure containment and teardown
// ---------------------------------------------------------------------------

func TestNegotiationFailureIsIsolatedPerPeer(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []*NegotiationError
	)

	h := &harness{
		ch:      newFakeChannel(),
		peers:   &rtctest.Factory{},
		capture: &fakeCapture{},
		errCh:   make(chan error, 1),
	}
	sess, err := New(Config{
		Room:        Room{ID: roomID, BroadcasterID: broadcasterID},
		LocalUserID: broadcasterID,
		Channel:     h.ch,
		Media:       media.NewController(h.capture),
		NewPeer:     h.peers.New,
		OnNegotiationFailure: func(nerr *NegotiationError) {
			mu.Lock()
			failures = append(failures, nerr)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.sess = sess

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { h.errCh <- sess.Run(ctx) }()

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u2"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 2 }, "two members")

	// Break offer generation for u1 only.
	h.peers.Peers()[0].OfferErr = errors.New("sdp generation failed")

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindJoinChannel, UserID: "u1"})
	h.ch.deliver(envelope.Envelope{Kind: envelope.KindJoinChannel, UserID: "u2"})

	eventually(t, func() bool { return len(h.ch.sentOfKind(envelope.KindOffer)) == 1 }, "u2 still negotiates")
	require.Equal(t, "u2", h.ch.sentOfKind(envelope.KindOffer)[0].ReceiverID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	require.Equal(t, "u1", failures[0].UserID)

	// The failed peer's connection is kept; no sibling was torn down.
	require.Equal(t, []string{"u1", "u2"}, h.sess.ActiveConnections())
}

func TestChannelClosureEndsSession(t *testing.T) {
	h := startSession(t, broadcasterID, false)

	h.ch.deliver(envelope.Envelope{Kind: envelope.KindUserJoined, UserID: "u1"})
	eventually(t, func() bool { return len(h.sess.ActiveConnections()) == 1 }, "u1 joined")

	h.ch.Close()
	require.ErrorIs(t, h.wait(t), signaling.ErrChannelClosed)

	// Teardown released every connection.
	require.True(t, h.peers.Peers()[0].IsClosed())
	require.Empty(t, h.sess.ActiveConnections())

	// Public operations now fail fast.
	require.ErrorIs(t, h.sess.StartBroadcasting(), signaling.ErrChannelClosed)
}

func TestOutboundCandidateIgnoresEndOfGathering(t *testing.T) {
	h := startSession(t, receiverID, false)

	// pion signals end-of-gathering with a nil candidate.
	h.peers.Peers()[0].FireICECandidate(nil)
	require.Empty(t, h.ch.sentOfKind(envelope.KindCandidate))
}
