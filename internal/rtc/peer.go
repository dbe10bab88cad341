// Package rtc wraps pion peer connections behind a narrow interface so the
// signaling state machine can be exercised against fakes in tests.
package rtc

import (
	"errors"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN — connectivity beyond a
// public STUN server is outside the product's scope.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
}

// Sender is an opaque handle for a local track attached to a peer
// connection. It exists so a broadcast can later be stopped per recipient
// by removing exactly the matching track.
type Sender interface {
	// Track returns the local track this sender transmits.
	Track() webrtc.TrackLocal
}

// RemoteTrack is the subset of *webrtc.TrackRemote the media layer reads.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Peer is one negotiated transport toward a single remote user.
// *webrtc.PeerConnection backs the production implementation.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate registers a callback invoked whenever a new local ICE
	// candidate is gathered. A nil candidate signals the end of gathering.
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(RemoteTrack))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	AddAudioTrack(webrtc.TrackLocal) (Sender, error)
	RemoveTrack(Sender) error
	Close() error
}

// Factory creates fresh peer connections; the session holds one so tests
// can substitute fakes.
type Factory func() (Peer, error)

// NewPeer creates a Peer backed by a pion PeerConnection configured with
// the public Google STUN server.
func NewPeer() (Peer, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

type pionSender struct {
	raw *webrtc.RTPSender
}

func (s *pionSender) Track() webrtc.TrackLocal { return s.raw.Track() }

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

func (p *pionPeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

func (p *pionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionPeer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

func (p *pionPeer) OnTrack(fn func(RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *pionPeer) AddAudioTrack(track webrtc.TrackLocal) (Sender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return &pionSender{raw: sender}, nil
}

func (p *pionPeer) RemoveTrack(s Sender) error {
	ps, ok := s.(*pionSender)
	if !ok {
		return errors.New("sender does not belong to this peer connection")
	}
	return p.pc.RemoveTrack(ps.raw)
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
