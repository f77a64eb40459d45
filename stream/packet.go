package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet type tags as they appear in the first byte of a binary frame
const (
	TypeAudio = 0x01
	TypeImage = 0x02
)

// Image subtypes carried in the second identifier of an image packet
const (
	ImageFull      = 0x01
	ImageThumbnail = 0x02
)

// HeaderSize is the fixed length of a binary packet header:
// [Type:1][ID1:4][ID2:4], big-endian
const HeaderSize = 9

// ErrMalformedPacket is matched by every packet decode failure
var ErrMalformedPacket = errors.New("malformed stream packet")

// Kind distinguishes audio packets from image packets
type Kind uint8

const (
	KindAudio Kind = TypeAudio
	KindImage Kind = TypeImage
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}

// Packet is a decoded binary frame.
// For audio, ID1 is the stream id and ID2 the packet sequence.
// For images, ID1 is the image id and ID2 the image subtype.
type Packet struct {
	Kind    Kind
	ID1     uint32
	ID2     uint32
	Payload []byte
}

// MalformedPacketError reports why a binary frame could not be decoded
type MalformedPacketError struct {
	Length int
	Type   byte
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("%s: %s (length %d)", ErrMalformedPacket, e.Reason, e.Length)
}

func (e *MalformedPacketError) Unwrap() error {
	return ErrMalformedPacket
}

// EncodeAudioPacket builds [0x01][streamID][packetID][payload]
func EncodeAudioPacket(streamID, packetID uint32, payload []byte) []byte {
	return encodePacket(TypeAudio, streamID, packetID, payload)
}

// EncodeImagePacket builds [0x02][imageID][imageType][payload]
func EncodeImagePacket(imageID, imageType uint32, payload []byte) []byte {
	return encodePacket(TypeImage, imageID, imageType, payload)
}

func encodePacket(packetType byte, id1, id2 uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = packetType
	binary.BigEndian.PutUint32(buf[1:5], id1)
	binary.BigEndian.PutUint32(buf[5:9], id2)
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodePacket parses a binary frame. The payload is copied so the caller
// may reuse data.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, &MalformedPacketError{
			Length: len(data),
			Reason: fmt.Sprintf("packet too short: expected at least %d bytes", HeaderSize),
		}
	}

	packetType := data[0]
	if packetType != TypeAudio && packetType != TypeImage {
		return nil, &MalformedPacketError{
			Length: len(data),
			Type:   packetType,
			Reason: fmt.Sprintf("invalid packet type 0x%02x", packetType),
		}
	}

	payload := make([]byte, len(data)-HeaderSize)
	copy(payload, data[HeaderSize:])

	return &Packet{
		Kind:    Kind(packetType),
		ID1:     binary.BigEndian.Uint32(data[1:5]),
		ID2:     binary.BigEndian.Uint32(data[5:9]),
		Payload: payload,
	}, nil
}

// String returns a human-readable representation of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("Packet{Kind:%s, ID1:%d, ID2:%d, PayloadLen:%d}", p.Kind, p.ID1, p.ID2, len(p.Payload))
}
