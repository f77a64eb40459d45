package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the length of the packed codec header before base64
const HeaderSize = 4

// ErrMalformedHeader is matched by every header decode failure
var ErrMalformedHeader = errors.New("malformed codec header")

// Header describes the audio format of an incoming stream.
// Packed little-endian as [SampleRateHz:2][FramesPerPacket:1][FrameSizeMs:1].
type Header struct {
	SampleRateHz    uint16
	FramesPerPacket uint8 // 1 or 2
	FrameSizeMs     uint8
}

// MalformedHeaderError reports why a codec header could not be decoded
type MalformedHeaderError struct {
	Input  string
	Reason string
	Err    error
}

func (e *MalformedHeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %s: %v", ErrMalformedHeader, e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", ErrMalformedHeader, e.Input, e.Reason)
}

func (e *MalformedHeaderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedHeader, e.Err}
	}
	return []error{ErrMalformedHeader}
}

// EncodeHeader packs h and returns its standard base64 form
func EncodeHeader(h Header) string {
	var packed [HeaderSize]byte
	binary.LittleEndian.PutUint16(packed[0:2], h.SampleRateHz)
	packed[2] = h.FramesPerPacket
	packed[3] = h.FrameSizeMs
	return base64.StdEncoding.EncodeToString(packed[:])
}

// DecodeHeader parses the base64 codec header sent with on_stream_start
func DecodeHeader(s string) (Header, error) {
	packed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Header{}, &MalformedHeaderError{Input: s, Reason: "invalid base64", Err: err}
	}
	if len(packed) != HeaderSize {
		return Header{}, &MalformedHeaderError{
			Input:  s,
			Reason: fmt.Sprintf("expected %d bytes, got %d", HeaderSize, len(packed)),
		}
	}

	return Header{
		SampleRateHz:    binary.LittleEndian.Uint16(packed[0:2]),
		FramesPerPacket: packed[2],
		FrameSizeMs:     packed[3],
	}, nil
}

// String returns a human-readable representation of the header
func (h Header) String() string {
	return fmt.Sprintf("Header{SampleRate:%dHz, FramesPerPacket:%d, FrameSize:%dms}",
		h.SampleRateHz, h.FramesPerPacket, h.FrameSizeMs)
}
