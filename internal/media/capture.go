package media

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/fireside-hq/campcast/internal/util"
)

// CaptureSource is a scoped microphone resource. Start acquires the device
// and begins delivering interleaved S16LE PCM chunks (arbitrary sizes) to
// onPCM from the device's capture goroutine; Stop releases the device.
type CaptureSource interface {
	Start(onPCM func([]int16)) error
	Stop()
}

// Player is a scoped audio output resource fed with interleaved PCM.
type Player interface {
	Play([]int16)
	Close()
}

// malgoSource captures microphone audio via the miniaudio bindings.
type malgoSource struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device
}

// NewMicrophoneSource returns the default system microphone as a
// CaptureSource.
func NewMicrophoneSource() CaptureSource {
	return &malgoSource{}
}

func (s *malgoSource) Start(onPCM func([]int16)) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		util.LogDebug("malgo: %s", message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = channels
	config.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onPCM(bytesToInt16s(input))
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		ctx.Uninit()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.ctx = ctx
	s.dev = dev
	return nil
}

func (s *malgoSource) Stop() {
	if s.dev != nil {
		s.dev.Uninit()
		s.dev = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx = nil
	}
}

// bytesToInt16s converts little-endian bytes to interleaved int16 samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// int16sToBytes converts interleaved int16 samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b
}
