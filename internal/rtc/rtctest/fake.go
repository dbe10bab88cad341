// Package rtctest provides in-memory fakes of the rtc interfaces for
// exercising the signaling state machine without any network or media
// stack.
package rtctest

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/fireside-hq/campcast/internal/rtc"
)

// FakeSender is an opaque sender handle handed out by FakePeer.
type FakeSender struct {
	track webrtc.TrackLocal
}

func (s *FakeSender) Track() webrtc.TrackLocal { return s.track }

// FakePeer implements rtc.Peer, recording every call so tests can assert
// on negotiation behavior. Error fields make individual operations fail.
type FakePeer struct {
	mu sync.Mutex

	OfferErr     error
	AnswerErr    error
	SetLocalErr  error
	SetRemoteErr error
	AddTrackErr  error

	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	removed    []rtc.Sender
	closed     bool

	onICE   func(*webrtc.ICECandidate)
	onTrack func(rtc.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

var _ rtc.Peer = (*FakePeer)(nil)

func (p *FakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	if p.OfferErr != nil {
		return webrtc.SessionDescription{}, p.OfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (p *FakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	if p.AnswerErr != nil {
		return webrtc.SessionDescription{}, p.AnswerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (p *FakePeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	if p.SetLocalErr != nil {
		return p.SetLocalErr
	}
	p.mu.Lock()
	p.localDesc = &sdp
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if p.SetRemoteErr != nil {
		return p.SetRemoteErr
	}
	p.mu.Lock()
	p.remoteDesc = &sdp
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	p.candidates = append(p.candidates, candidate)
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *FakePeer) OnTrack(fn func(rtc.RemoteTrack)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *FakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *FakePeer) AddAudioTrack(track webrtc.TrackLocal) (rtc.Sender, error) {
	if p.AddTrackErr != nil {
		return nil, p.AddTrackErr
	}
	sender := &FakeSender{track: track}
	p.mu.Lock()
	p.tracks = append(p.tracks, track)
	p.mu.Unlock()
	return sender, nil
}

func (p *FakePeer) RemoveTrack(s rtc.Sender) error {
	p.mu.Lock()
	p.removed = append(p.removed, s)
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// FireICECandidate invokes the registered ICE callback, as pion would from
// its gathering goroutine.
func (p *FakePeer) FireICECandidate(c *webrtc.ICECandidate) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// FireTrack invokes the registered remote-track callback.
func (p *FakePeer) FireTrack(track rtc.RemoteTrack) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(track)
	}
}

// FireConnectionState invokes the registered state-change callback.
func (p *FakePeer) FireConnectionState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (p *FakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localDesc
}

func (p *FakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteDesc
}

func (p *FakePeer) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *FakePeer) Tracks() []webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), p.tracks...)
}

func (p *FakePeer) RemovedSenders() []rtc.Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]rtc.Sender(nil), p.removed...)
}

func (p *FakePeer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Factory hands out FakePeers and remembers them in creation order.
type Factory struct {
	mu    sync.Mutex
	peers []*FakePeer

	// NewErr makes the next creation fail.
	NewErr error
}

// New is an rtc.Factory.
func (f *Factory) New() (rtc.Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	p := &FakePeer{}
	f.peers = append(f.peers, p)
	return p, nil
}

// Peers returns every peer created so far, in order.
func (f *Factory) Peers() []*FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakePeer(nil), f.peers...)
}

// Last returns the most recently created peer, or nil.
func (f *Factory) Last() *FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}
