package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Inbound command names
const (
	CommandChannelStatus = "on_channel_status"
	CommandStreamStart   = "on_stream_start"
	CommandStreamStop    = "on_stream_stop"
	CommandImage         = "on_image"
	CommandTextMessage   = "on_text_message"
	CommandLocation      = "on_location"
)

// Channel statuses
const (
	StatusOnline     = "online"
	StatusOffline    = "offline"
	StatusConnecting = "connecting"
)

// Event is a decoded control message with neither a recognised command
// nor an error. It keeps every field the server sent.
type Event map[string]any

// Command returns the event's command name, if any
func (e Event) Command() string {
	cmd, _ := e["command"].(string)
	return cmd
}

// ChannelStatus reports a channel connecting, going offline, or changing
// its online user count or supported features
type ChannelStatus struct {
	Command            string `json:"command"`
	Channel            string `json:"channel"`
	Status             string `json:"status"`
	UsersOnline        int    `json:"users_online"`
	ImagesSupported    bool   `json:"images_supported"`
	TextingSupported   bool   `json:"texting_supported"`
	LocationsSupported bool   `json:"locations_supported"`
	Error              string `json:"error,omitempty"`
	ErrorType          string `json:"error_type,omitempty"`
}

// StreamStart announces a new incoming audio stream
type StreamStart struct {
	Command        string `json:"command"`
	Type           string `json:"type"`
	Codec          string `json:"codec"`
	CodecHeader    string `json:"codec_header"`
	PacketDuration int    `json:"packet_duration"`
	StreamID       uint32 `json:"stream_id"`
	Channel        string `json:"channel"`
	From           string `json:"from"`
	For            string `json:"for,omitempty"`
	Key            string `json:"key,omitempty"`
}

// StreamStop ends an incoming audio stream
type StreamStop struct {
	Command  string `json:"command"`
	StreamID uint32 `json:"stream_id"`
}

// Image announces an image whose bytes follow as binary packets
type Image struct {
	Command   string `json:"command"`
	Channel   string `json:"channel"`
	From      string `json:"from"`
	For       string `json:"for,omitempty"`
	MessageID uint32 `json:"message_id"`
	Type      string `json:"type"`
	Height    int    `json:"height,omitempty"`
	Width     int    `json:"width,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Location is a shared user location
type Location struct {
	Command          string  `json:"command"`
	Channel          string  `json:"channel"`
	From             string  `json:"from"`
	For              string  `json:"for,omitempty"`
	MessageID        uint32  `json:"message_id"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Accuracy         float64 `json:"accuracy"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
}

// TextMessage is a text sent to the channel
type TextMessage struct {
	Command   string `json:"command"`
	Channel   string `json:"channel"`
	From      string `json:"from"`
	For       string `json:"for,omitempty"`
	MessageID uint32 `json:"message_id"`
	Text      string `json:"text"`
}

// ImageData is the binary half of an image: one packet of the full image
// or its thumbnail
type ImageData struct {
	ImageID   uint32
	ImageType uint32
	Data      []byte
}

// Decode unmarshals a control message into one of the typed events above
func Decode[T any](raw []byte) (*T, error) {
	var v T
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return &v, nil
}

// DecodeEvent converts an already parsed event into a typed one
func DecodeEvent[T any](e Event) (*T, error) {
	raw, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return Decode[T](raw)
}
