package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/stream"
)

var (
	// ErrUnknownHandler is returned by HandlersFromMap for a name outside the callback set
	ErrUnknownHandler = errors.New("unknown handler name")

	// ErrHandlerSignature is returned by HandlersFromMap when a callback has the wrong type
	ErrHandlerSignature = errors.New("handler has wrong signature")
)

// Handlers receives session events. All callbacks except OnStream run on the
// session loop and must not block; OnStream runs in its own goroutine and
// must consume the stream with Decode or Drain. Nil callbacks log the event.
type Handlers struct {
	OnChannelStatus           func(status *messages.ChannelStatus)
	OnStream                  func(ctx context.Context, start *messages.StreamStart, st *stream.IncomingAudioStream)
	OnImage                   func(image *messages.Image)
	OnImageData               func(data *messages.ImageData)
	OnUnknownCommand          func(command string, event messages.Event)
	OnUnknownMessage          func(raw []byte, err error)
	OnTransportError          func(err error)
	OnTransportClosed         func(err error)
	OnUnknownBinary           func(data []byte, err error)
	OnUnknownTransportMessage func(frame Frame)
}

// HandlersFromMap builds Handlers from callbacks keyed by event name:
// on_channel_status, on_stream, on_image, on_unknown_command,
// on_unknown_message, on_transport_error, on_transport_closed,
// on_unknown_binary and on_unknown_transport_message.
//
// on_image takes either func(*messages.Image) for announcements only, or
// func(*messages.Image, *messages.ImageData) which is called with exactly
// one non-nil argument for both the announcement and its binary packets.
func HandlersFromMap(callbacks map[string]any) (Handlers, error) {
	var h Handlers
	for name, fn := range callbacks {
		var ok bool
		switch name {
		case "on_channel_status":
			h.OnChannelStatus, ok = fn.(func(*messages.ChannelStatus))
		case "on_stream":
			h.OnStream, ok = fn.(func(context.Context, *messages.StreamStart, *stream.IncomingAudioStream))
		case "on_image":
			switch f := fn.(type) {
			case func(*messages.Image):
				h.OnImage, ok = f, true
			case func(*messages.Image, *messages.ImageData):
				h.OnImage = func(image *messages.Image) { f(image, nil) }
				h.OnImageData = func(data *messages.ImageData) { f(nil, data) }
				ok = true
			}
		case "on_unknown_command":
			h.OnUnknownCommand, ok = fn.(func(string, messages.Event))
		case "on_unknown_message":
			h.OnUnknownMessage, ok = fn.(func([]byte, error))
		case "on_transport_error":
			h.OnTransportError, ok = fn.(func(error))
		case "on_transport_closed":
			h.OnTransportClosed, ok = fn.(func(error))
		case "on_unknown_binary":
			h.OnUnknownBinary, ok = fn.(func([]byte, error))
		case "on_unknown_transport_message":
			h.OnUnknownTransportMessage, ok = fn.(func(Frame))
		default:
			return Handlers{}, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
		}
		if !ok {
			return Handlers{}, fmt.Errorf("%w: %q is %T", ErrHandlerSignature, name, fn)
		}
	}
	return h, nil
}

// withDefaults fills every nil callback with one that logs the event
func (h Handlers) withDefaults(log logrus.FieldLogger) Handlers {
	if h.OnChannelStatus == nil {
		h.OnChannelStatus = func(status *messages.ChannelStatus) {
			entry := log.WithFields(logrus.Fields{
				"channel": status.Channel,
				"status":  status.Status,
				"users":   status.UsersOnline,
			})
			switch status.Status {
			case messages.StatusOffline:
				if status.Error != "" {
					entry = entry.WithField("error", status.Error)
				}
				entry.Warn("📴 Channel offline")
			case messages.StatusConnecting:
				entry.Debug("⏳ Channel connecting")
			default:
				entry.Info("📡 Channel status")
			}
		}
	}
	if h.OnStream == nil {
		h.OnStream = func(ctx context.Context, start *messages.StreamStart, st *stream.IncomingAudioStream) {
			if err := st.Drain(ctx); err != nil {
				log.WithField("stream_id", st.ID).WithError(err).Warn("⚠️ Failed to drain stream")
			}
		}
	}
	if h.OnImage == nil {
		h.OnImage = func(image *messages.Image) {
			log.WithFields(logrus.Fields{
				"channel":    image.Channel,
				"from":       image.From,
				"message_id": image.MessageID,
			}).Info("🖼️ Image announced")
		}
	}
	if h.OnImageData == nil {
		h.OnImageData = func(data *messages.ImageData) {
			log.WithFields(logrus.Fields{
				"image_id":   data.ImageID,
				"image_type": data.ImageType,
				"bytes":      len(data.Data),
			}).Debug("🖼️ Image data")
		}
	}
	if h.OnUnknownCommand == nil {
		h.OnUnknownCommand = func(command string, event messages.Event) {
			logUnhandledCommand(log, command, event)
		}
	}
	if h.OnUnknownMessage == nil {
		h.OnUnknownMessage = func(raw []byte, err error) {
			entry := log.WithField("bytes", len(raw))
			if err != nil {
				entry.WithError(err).Warn("⚠️ Malformed control message")
				return
			}
			entry.Debug("📥 Unrecognized control message")
		}
	}
	if h.OnTransportError == nil {
		h.OnTransportError = func(err error) {
			log.WithError(err).Error("❌ Transport error")
		}
	}
	if h.OnTransportClosed == nil {
		h.OnTransportClosed = func(err error) {
			log.Info("🔌 Transport closed")
		}
	}
	if h.OnUnknownBinary == nil {
		h.OnUnknownBinary = func(data []byte, err error) {
			log.WithField("bytes", len(data)).WithError(err).Warn("⚠️ Unrecognized binary frame")
		}
	}
	if h.OnUnknownTransportMessage == nil {
		h.OnUnknownTransportMessage = func(frame Frame) {
			log.WithField("message_type", frame.MessageType).Warn("⚠️ Unknown transport message")
		}
	}
	return h
}

// logUnhandledCommand logs the commands the session has no typed callback
// for, decoding the ones it knows the shape of
func logUnhandledCommand(log logrus.FieldLogger, command string, event messages.Event) {
	entry := log.WithField("command", command)
	switch command {
	case messages.CommandTextMessage:
		msg, err := messages.DecodeEvent[messages.TextMessage](event)
		if err != nil {
			entry.WithError(err).Warn("⚠️ Malformed text message")
			return
		}
		entry.WithFields(logrus.Fields{
			"channel": msg.Channel,
			"from":    msg.From,
			"text":    msg.Text,
		}).Info("💬 Text message")
	case messages.CommandLocation:
		loc, err := messages.DecodeEvent[messages.Location](event)
		if err != nil {
			entry.WithError(err).Warn("⚠️ Malformed location")
			return
		}
		entry.WithFields(logrus.Fields{
			"channel":   loc.Channel,
			"from":      loc.From,
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		}).Info("📍 Location shared")
	default:
		entry.Info("⚠️ Unknown command")
	}
}
