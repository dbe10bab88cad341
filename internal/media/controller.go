// Package media attaches microphone audio to peer connections on the
// broadcaster side and renders inbound remote tracks on the receiver side.
package media

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/fireside-hq/campcast/internal/registry"
	"github.com/fireside-hq/campcast/internal/rtc"
	"github.com/fireside-hq/campcast/internal/util"
)

// ErrMediaAcquisition is returned when the local microphone cannot be
// acquired (permission denied, no device). A failed acquisition has no side
// effects: no tracks are attached and no capture is left running.
var ErrMediaAcquisition = errors.New("audio capture unavailable")

// Binding records which outbound track sender is attached to which
// recipient's connection, so a broadcast can be stopped per recipient by
// removing exactly the matching track.
type Binding struct {
	UserID string
	Peer   rtc.Peer
	Sender rtc.Sender
}

type encoder interface {
	encode([]int16) ([]byte, error)
}

type decoder interface {
	decode([]byte) ([]int16, error)
}

// Controller owns the microphone capture pipeline and the playback of
// remote tracks. One Controller serves one session.
type Controller struct {
	capture    CaptureSource
	newPlayer  func() (Player, error)
	newEncoder func() (encoder, error)
	newDecoder func() (decoder, error)

	mu        sync.Mutex
	capturing bool
	track     *webrtc.TrackLocalStaticSample
	rendered  map[string]chan struct{} // remote track ID → stop signal

	// pending accumulates capture chunks into full 20 ms frames. Guarded
	// separately because the device callback runs on the capture goroutine.
	pmu      sync.Mutex
	pending  []int16
	enc      encoder
	outTrack *webrtc.TrackLocalStaticSample
}

// NewController creates a Controller around the given capture source.
func NewController(capture CaptureSource) *Controller {
	return &Controller{
		capture:   capture,
		newPlayer: NewSpeakerPlayer,
		newEncoder: func() (encoder, error) {
			return newOpusEncoder()
		},
		newDecoder: func() (decoder, error) {
			return newOpusDecoder()
		},
		rendered: make(map[string]chan struct{}),
	}
}

// AttachLocalAudio acquires the microphone (once), creates the outbound
// Opus track, and attaches it to every given connection. It returns one
// binding per connection that accepted the track. Acquisition failure
// surfaces as ErrMediaAcquisition and leaves all connections untouched;
// a per-connection attach failure is logged and skipped so one bad peer
// does not block the broadcast to the others.
func (c *Controller) AttachLocalAudio(conns []*registry.Conn) ([]Binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		if err := c.startCapture(); err != nil {
			return nil, err
		}
	}

	bindings := make([]Binding, 0, len(conns))
	for _, conn := range conns {
		sender, err := conn.Peer.AddAudioTrack(c.track)
		if err != nil {
			util.LogWarning("attach audio to %s failed: %v", conn.UserID, err)
			continue
		}
		bindings = append(bindings, Binding{UserID: conn.UserID, Peer: conn.Peer, Sender: sender})
	}
	return bindings, nil
}

// AttachTo attaches the already-running outbound track to one more
// connection, for users who join mid-broadcast. It is an error to call it
// before a successful AttachLocalAudio.
func (c *Controller) AttachTo(conn *registry.Conn) (Binding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return Binding{}, fmt.Errorf("%w: no active broadcast track", ErrMediaAcquisition)
	}
	sender, err := conn.Peer.AddAudioTrack(c.track)
	if err != nil {
		return Binding{}, err
	}
	return Binding{UserID: conn.UserID, Peer: conn.Peer, Sender: sender}, nil
}

// startCapture initializes the encoder and outbound track, then acquires
// the microphone. Called with c.mu held.
func (c *Controller) startCapture() error {
	enc, err := c.newEncoder()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: channels},
		"audio", "campcast",
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}

	c.pmu.Lock()
	c.enc = enc
	c.outTrack = track
	c.pending = nil
	c.pmu.Unlock()

	if err := c.capture.Start(c.onPCM); err != nil {
		c.pmu.Lock()
		c.enc = nil
		c.outTrack = nil
		c.pmu.Unlock()
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	c.track = track
	c.capturing = true
	return nil
}

// onPCM accumulates captured chunks into 20 ms frames, encodes each and
// writes it to the outbound track. Runs on the capture device goroutine.
func (c *Controller) onPCM(chunk []int16) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if c.enc == nil || c.outTrack == nil {
		return
	}
	c.pending = append(c.pending, chunk...)
	for len(c.pending) >= frameSamples {
		frame := c.pending[:frameSamples]
		c.pending = c.pending[frameSamples:]

		data, err := c.enc.encode(frame)
		if err != nil {
			util.LogDebug("opus encode failed: %v", err)
			continue
		}
		if err := c.outTrack.WriteSample(pionmedia.Sample{
			Data:     data,
			Duration: frameSizeMs * time.Millisecond,
		}); err != nil {
			util.LogDebug("write sample failed: %v", err)
		}
	}
}

// DetachLocalAudio removes exactly the given sender bindings and releases
// the microphone. The connections themselves stay open.
func (c *Controller) DetachLocalAudio(bindings []Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range bindings {
		if err := b.Peer.RemoveTrack(b.Sender); err != nil {
			util.LogWarning("detach audio from %s failed: %v", b.UserID, err)
		}
	}

	if c.capturing {
		c.capture.Stop()
		c.capturing = false
		c.track = nil
		c.pmu.Lock()
		c.enc = nil
		c.outTrack = nil
		c.pending = nil
		c.pmu.Unlock()
	}
}

// RenderRemoteAudio begins local playback of an inbound audio track. It is
// idempotent per track: rendering an already-playing track is a no-op.
// Non-audio tracks are ignored.
func (c *Controller) RenderRemoteAudio(track rtc.RemoteTrack) error {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return nil
	}

	c.mu.Lock()
	if _, ok := c.rendered[track.ID()]; ok {
		c.mu.Unlock()
		return nil
	}
	dec, err := c.newDecoder()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	player, err := c.newPlayer()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("open playback: %w", err)
	}
	stop := make(chan struct{})
	c.rendered[track.ID()] = stop
	c.mu.Unlock()

	go c.renderLoop(track, dec, player, stop)
	return nil
}

// renderLoop pumps RTP payloads from track into the player until the track
// errors out or the controller shuts down.
func (c *Controller) renderLoop(track rtc.RemoteTrack, dec decoder, player Player, stop chan struct{}) {
	defer func() {
		player.Close()
		c.mu.Lock()
		// Only clear our own entry: the track may have been re-rendered
		// after a Close raced with this loop.
		if cur, ok := c.rendered[track.ID()]; ok && cur == stop {
			delete(c.rendered, track.ID())
		}
		c.mu.Unlock()
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		pcm, err := dec.decode(pkt.Payload)
		if err != nil {
			util.LogDebug("opus decode failed: %v", err)
			continue
		}
		player.Play(pcm)
	}
}

// Close releases the microphone and stops every active playback.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.capturing {
		c.capture.Stop()
		c.capturing = false
		c.track = nil
	}
	for id, stop := range c.rendered {
		close(stop)
		delete(c.rendered, id)
	}
	c.mu.Unlock()

	c.pmu.Lock()
	c.enc = nil
	c.outTrack = nil
	c.pending = nil
	c.pmu.Unlock()
}
