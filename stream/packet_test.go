package stream

import (
	"bytes"
	"errors"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAudioPacketLayout(t *testing.T) {
	got := EncodeAudioPacket(0x01020304, 0x0A0B0C0D, []byte{0xFF, 0xEE})
	want := []byte{
		0x01,                   // Type: audio
		0x01, 0x02, 0x03, 0x04, // StreamID
		0x0A, 0x0B, 0x0C, 0x0D, // PacketID
		0xFF, 0xEE, // Payload
	}
	assert.Equal(t, want, got)
}

func TestEncodeImagePacketLayout(t *testing.T) {
	got := EncodeImagePacket(42, ImageThumbnail, nil)
	want := []byte{
		0x02,
		0x00, 0x00, 0x00, 0x2A,
		0x00, 0x00, 0x00, 0x02,
	}
	assert.Equal(t, want, got)
}

func TestAudioPacketRoundTrip(t *testing.T) {
	roundTrip := func(streamID, packetID uint32, payload []byte) bool {
		p, err := DecodePacket(EncodeAudioPacket(streamID, packetID, payload))
		return err == nil &&
			p.Kind == KindAudio &&
			p.ID1 == streamID &&
			p.ID2 == packetID &&
			bytes.Equal(p.Payload, payload)
	}
	require.NoError(t, quick.Check(roundTrip, nil))
}

func TestImagePacketRoundTrip(t *testing.T) {
	roundTrip := func(imageID uint32, thumbnail bool, payload []byte) bool {
		imageType := uint32(ImageFull)
		if thumbnail {
			imageType = ImageThumbnail
		}
		p, err := DecodePacket(EncodeImagePacket(imageID, imageType, payload))
		return err == nil &&
			p.Kind == KindImage &&
			p.ID1 == imageID &&
			p.ID2 == imageType &&
			bytes.Equal(p.Payload, payload)
	}
	require.NoError(t, quick.Check(roundTrip, nil))
}

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected *Packet
		errorMsg string
	}{
		{
			name:     "header only audio",
			data:     []byte{0x01, 0, 0, 0, 7, 0, 0, 0, 1},
			expected: &Packet{Kind: KindAudio, ID1: 7, ID2: 1, Payload: []byte{}},
		},
		{
			name:     "image with payload",
			data:     []byte{0x02, 0, 0, 1, 0, 0, 0, 0, 1, 0xAB},
			expected: &Packet{Kind: KindImage, ID1: 256, ID2: ImageFull, Payload: []byte{0xAB}},
		},
		{
			name:     "empty",
			data:     []byte{},
			errorMsg: "packet too short",
		},
		{
			name:     "eight bytes",
			data:     []byte{0x01, 0, 0, 0, 1, 0, 0, 0},
			errorMsg: "packet too short",
		},
		{
			name:     "zero type",
			data:     []byte{0x00, 0, 0, 0, 1, 0, 0, 0, 1},
			errorMsg: "invalid packet type 0x00",
		},
		{
			name:     "unknown type",
			data:     []byte{0x03, 0, 0, 0, 1, 0, 0, 0, 1, 0xFF},
			errorMsg: "invalid packet type 0x03",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePacket(tt.data)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Nil(t, p)
				assert.ErrorIs(t, err, ErrMalformedPacket)
				assert.Contains(t, err.Error(), tt.errorMsg)

				var pktErr *MalformedPacketError
				require.True(t, errors.As(err, &pktErr))
				assert.Equal(t, len(tt.data), pktErr.Length)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestDecodePacketCopiesPayload(t *testing.T) {
	data := EncodeAudioPacket(1, 1, []byte{1, 2, 3})
	p, err := DecodePacket(data)
	require.NoError(t, err)

	data[HeaderSize] = 0x99
	assert.Equal(t, []byte{1, 2, 3}, p.Payload)
}

func TestPacketString(t *testing.T) {
	p := &Packet{Kind: KindAudio, ID1: 12345, ID2: 3, Payload: make([]byte, 160)}
	s := p.String()
	assert.Contains(t, s, "audio")
	assert.Contains(t, s, "12345")
	assert.Contains(t, s, "160")
	assert.Equal(t, "unknown(0x07)", Kind(7).String())
}
