package media

import (
	"fmt"

	"layeh.com/gopus"
)

// The broadcast audio path runs 48 kHz stereo Opus at 20 ms frame size,
// matching the WebRTC default audio codec configuration.
const (
	sampleRate  = 48000
	channels    = 2
	frameSizeMs = 20
	// frameSize is the number of samples per channel per 20 ms frame.
	frameSize = sampleRate * frameSizeMs / 1000 // 960
	// frameSamples is the number of interleaved samples per frame.
	frameSamples = frameSize * channels
	maxOpusBytes = 4000
)

// opusEncoder wraps a gopus Opus encoder for the outbound microphone track.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("media: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one 20 ms frame of interleaved PCM int16 samples.
func (e *opusEncoder) encode(pcm []int16) ([]byte, error) {
	data, err := e.enc.Encode(pcm, frameSize, maxOpusBytes)
	if err != nil {
		return nil, fmt.Errorf("media: opus encode: %w", err)
	}
	return data, nil
}

// opusDecoder wraps a gopus Opus decoder for one inbound remote track.
// Each track gets its own decoder to keep decoder state consistent across
// consecutive frames.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("media: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes an Opus packet into interleaved PCM int16 samples.
func (d *opusDecoder) decode(opus []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(opus, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("media: opus decode: %w", err)
	}
	return pcm, nil
}
