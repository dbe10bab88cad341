package media

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/fireside-hq/campcast/internal/util"
)

// malgoPlayer renders decoded PCM through the default output device. The
// device pulls from an internal buffer; Play appends to it. Underruns play
// silence rather than blocking the device callback.
type malgoPlayer struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	mu  sync.Mutex
	buf []byte
}

// NewSpeakerPlayer opens the default output device and starts playback.
func NewSpeakerPlayer() (Player, error) {
	p := &malgoPlayer{}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		util.LogDebug("malgo: %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = channels
	config.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			p.fill(output)
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("start playback device: %w", err)
	}

	p.ctx = ctx
	p.dev = dev
	return p, nil
}

func (p *malgoPlayer) Play(pcm []int16) {
	data := int16sToBytes(pcm)
	p.mu.Lock()
	p.buf = append(p.buf, data...)
	p.mu.Unlock()
}

func (p *malgoPlayer) fill(output []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(output, p.buf)
	p.buf = p.buf[n:]
	for i := n; i < len(output); i++ {
		output[i] = 0
	}
}

func (p *malgoPlayer) Close() {
	if p.dev != nil {
		p.dev.Uninit()
		p.dev = nil
	}
	if p.ctx != nil {
		p.ctx.Uninit()
		p.ctx = nil
	}
}
