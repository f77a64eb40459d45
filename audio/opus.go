// Package audio adapts the Opus codec to the stream decoder interface and
// prepares PCM for the channel emulator.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/room4-2/zellolink/stream"
)

const maxFrameMs = 120 // longest Opus packet duration

// ErrShortPCM is returned when PCM data is not a whole number of samples
var ErrShortPCM = errors.New("pcm length is not a whole number of samples")

// OpusDecoder decodes one stream's packets to little-endian 16-bit PCM
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
	pcm        []int16
}

// NewOpusDecoder is a stream.DecoderFactory
func NewOpusDecoder(sampleRateHz, channels int) (stream.FrameDecoder, error) {
	dec, err := opus.NewDecoder(sampleRateHz, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder at %d Hz: %w", sampleRateHz, err)
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRateHz, channels: channels}, nil
}

// Decode decodes packet, which holds frameSize samples per channel. A
// non-positive frameSize allows the longest packet Opus can carry.
func (d *OpusDecoder) Decode(packet []byte, frameSize int) ([]byte, error) {
	if frameSize <= 0 {
		frameSize = d.sampleRate * maxFrameMs / 1000
	}
	need := frameSize * d.channels
	if cap(d.pcm) < need {
		d.pcm = make([]int16, need)
	}

	n, err := d.dec.Decode(packet, d.pcm[:need])
	if err != nil {
		return nil, err
	}
	return Int16ToBytes(d.pcm[:n*d.channels]), nil
}

// OpusEncoder splits PCM into fixed-duration Opus packets
type OpusEncoder struct {
	enc       *opus.Encoder
	channels  int
	frameSize int
	maxPacket int
}

// NewOpusEncoder creates a VoIP encoder emitting frameMs packets
func NewOpusEncoder(sampleRateHz, channels, frameMs int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRateHz, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder at %d Hz: %w", sampleRateHz, err)
	}
	return &OpusEncoder{
		enc:       enc,
		channels:  channels,
		frameSize: sampleRateHz * frameMs / 1000,
		maxPacket: 4000,
	}, nil
}

// Encode returns one packet per frame. The last frame is padded with silence.
func (e *OpusEncoder) Encode(pcm []int16) ([][]byte, error) {
	step := e.frameSize * e.channels
	var packets [][]byte
	for off := 0; off < len(pcm); off += step {
		frame := make([]int16, step)
		copy(frame, pcm[off:])

		buf := make([]byte, e.maxPacket)
		n, err := e.enc.Encode(frame, buf)
		if err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", off/step, err)
		}
		packets = append(packets, buf[:n])
	}
	return packets, nil
}

// Int16ToBytes packs samples little-endian
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// BytesToInt16 unpacks little-endian samples
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, ErrShortPCM
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}
