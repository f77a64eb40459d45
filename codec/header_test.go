package codec

import (
	"encoding/base64"
	"errors"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderGolden(t *testing.T) {
	encoded := EncodeHeader(Header{SampleRateHz: 16000, FramesPerPacket: 1, FrameSizeMs: 60})
	assert.Equal(t, "gD4BPA==", encoded)

	decoded, err := DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, Header{SampleRateHz: 16000, FramesPerPacket: 1, FrameSizeMs: 60}, decoded)
}

func TestHeaderRoundTrip(t *testing.T) {
	roundTrip := func(rate uint16, twoFrames bool, frameMs uint8) bool {
		h := Header{SampleRateHz: rate, FramesPerPacket: 1, FrameSizeMs: frameMs}
		if twoFrames {
			h.FramesPerPacket = 2
		}
		got, err := DecodeHeader(EncodeHeader(h))
		return err == nil && got == h
	}
	require.NoError(t, quick.Check(roundTrip, &quick.Config{MaxCount: 2000}))
}

func TestHeaderRoundTripBounds(t *testing.T) {
	for _, h := range []Header{
		{},
		{SampleRateHz: 65535, FramesPerPacket: 2, FrameSizeMs: 255},
		{SampleRateHz: 8000, FramesPerPacket: 2, FrameSizeMs: 20},
		{SampleRateHz: 48000, FramesPerPacket: 1, FrameSizeMs: 0},
	} {
		got, err := DecodeHeader(EncodeHeader(h))
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		errorMsg string
	}{
		{
			name:     "invalid base64",
			input:    "not base64!",
			errorMsg: "invalid base64",
		},
		{
			name:     "too short",
			input:    base64.StdEncoding.EncodeToString([]byte{0x80, 0x3e, 0x01}),
			errorMsg: "expected 4 bytes, got 3",
		},
		{
			name:     "too long",
			input:    base64.StdEncoding.EncodeToString([]byte{0x80, 0x3e, 0x01, 0x3c, 0x00}),
			errorMsg: "expected 4 bytes, got 5",
		},
		{
			name:     "empty",
			input:    "",
			errorMsg: "expected 4 bytes, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := DecodeHeader(tt.input)
			require.Error(t, err)
			assert.Equal(t, Header{}, h)
			assert.ErrorIs(t, err, ErrMalformedHeader)
			assert.Contains(t, err.Error(), tt.errorMsg)

			var headerErr *MalformedHeaderError
			require.True(t, errors.As(err, &headerErr))
			assert.Equal(t, tt.input, headerErr.Input)
		})
	}
}
