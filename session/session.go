package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/codec"
	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/metrics"
	"github.com/room4-2/zellolink/stream"
)

var (
	// ErrTokenIssue wraps a token collaborator failure; nothing is sent
	ErrTokenIssue = errors.New("failed to issue auth token")

	// ErrTransport wraps a transport read failure that ended the session
	ErrTransport = errors.New("transport error")

	// ErrUnknownStream is matched by a *StreamError
	ErrUnknownStream = errors.New("unknown stream")

	// ErrMalformedLogon is returned when a malformed frame arrives before
	// the server has acknowledged the logon
	ErrMalformedLogon = errors.New("malformed frame during logon")
)

// StreamPolicy decides what happens when an audio packet or a stop refers
// to a stream id that is not open
type StreamPolicy int

const (
	// PolicyStrict ends the session with a *StreamError
	PolicyStrict StreamPolicy = iota
	// PolicyLenient reports the event to OnUnknownBinary or OnUnknownMessage and carries on
	PolicyLenient
)

// ParseStreamPolicy accepts "strict" or "lenient"
func ParseStreamPolicy(s string) (StreamPolicy, error) {
	switch s {
	case "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	default:
		return PolicyStrict, fmt.Errorf("invalid stream policy %q: must be 'strict' or 'lenient'", s)
	}
}

// StreamError reports an audio packet ("audio") or a stop ("stop") for a
// stream id that was never started or has already stopped
type StreamError struct {
	StreamID uint32
	Event    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s %d: unexpected %s", ErrUnknownStream, e.StreamID, e.Event)
}

func (e *StreamError) Unwrap() error {
	return ErrUnknownStream
}

// TokenIssuer supplies the bearer token sent with logon
type TokenIssuer interface {
	Issue() (string, error)
}

// Config holds the logon credentials and dispatch policy
type Config struct {
	Username     string
	Password     string
	Channels     []string
	StreamPolicy StreamPolicy
}

// Session is one logged-on connection to the channel server. It owns the
// stream map; only the Run loop reads or writes it.
type Session struct {
	ID string

	config    Config
	transport Transport
	issuer    TokenIssuer
	decoders  stream.DecoderFactory
	handlers  Handlers
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics

	seq      int
	logonSeq int
	loggedOn bool
	streams  map[uint32]*stream.IncomingAudioStream
	active   atomic.Int64
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger; the session id is added as a field
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics sets the collectors the session reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// New creates a session. Decode routines build their frame decoder from decoders.
func New(cfg Config, transport Transport, issuer TokenIssuer, decoders stream.DecoderFactory, handlers Handlers, opts ...Option) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		config:    cfg,
		transport: transport,
		issuer:    issuer,
		decoders:  decoders,
		logger:    logrus.StandardLogger(),
		streams:   make(map[uint32]*stream.IncomingAudioStream),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	s.logger = s.logger.WithField("session", s.ID[:8])
	s.handlers = handlers.withDefaults(s.logger)
	return s
}

// ActiveStreams returns the number of open streams. Safe from any goroutine.
func (s *Session) ActiveStreams() int {
	return int(s.active.Load())
}

// LoggedOn reports whether the server acknowledged the logon. Only
// meaningful from the session's own callbacks.
func (s *Session) LoggedOn() bool {
	return s.loggedOn
}

func (s *Session) nextSeq() int {
	s.seq++
	return s.seq
}

// Run issues a token, logs on and dispatches inbound frames until the
// transport closes, the server reports an error, or ctx is done.
// A clean close returns nil. Streams still open when Run returns are
// closed so their consumers finish; Run never waits for them.
func (s *Session) Run(ctx context.Context) error {
	token, err := s.issuer.Issue()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}

	defer s.closeOpenStreams()

	if err := s.logon(ctx, token); err != nil {
		return err
	}

	frames := s.transport.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				s.handlers.OnTransportClosed(nil)
				return nil
			}
			done, err := s.handleFrame(ctx, frame)
			if err != nil || done {
				return err
			}
		}
	}
}

func (s *Session) logon(ctx context.Context, token string) error {
	s.logonSeq = s.nextSeq()
	req := messages.NewLogonRequest(s.logonSeq, token, s.config.Username, s.config.Password, s.config.Channels)

	raw, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode logon: %w", err)
	}
	if err := s.transport.Send(ctx, raw); err != nil {
		return fmt.Errorf("failed to send logon: %w", err)
	}

	s.logger.WithField("channels", s.config.Channels).Info("📤 Sent logon")
	return nil
}

// handleFrame dispatches one frame; done is set when the loop must stop
func (s *Session) handleFrame(ctx context.Context, frame Frame) (done bool, err error) {
	s.metrics.FramesReceived.WithLabelValues(frame.Kind.String()).Inc()

	switch frame.Kind {
	case FrameText:
		return false, s.handleText(ctx, frame.Data)
	case FrameBinary:
		return false, s.handleBinary(frame.Data)
	case FrameError:
		s.handlers.OnTransportError(frame.Err)
		return true, fmt.Errorf("%w: %w", ErrTransport, frame.Err)
	case FrameClosed:
		s.handlers.OnTransportClosed(frame.Err)
		return true, nil
	default:
		s.handlers.OnUnknownTransportMessage(frame)
		return false, nil
	}
}

func (s *Session) handleText(ctx context.Context, raw []byte) error {
	var event messages.Event
	if err := sonic.Unmarshal(raw, &event); err != nil || event == nil {
		if err == nil {
			err = errors.New("control message is not a JSON object")
		}
		return s.malformedText(raw, "json", fmt.Errorf("invalid control message: %w", err))
	}

	if code, ok := event["error"]; ok {
		return s.serverError(code)
	}

	cmdValue, ok := event["command"]
	if !ok {
		s.acknowledge(event)
		s.handlers.OnUnknownMessage(raw, nil)
		return nil
	}
	command, _ := cmdValue.(string)
	s.metrics.ControlMessages.WithLabelValues(command).Inc()
	s.loggedOn = true

	switch command {
	case messages.CommandChannelStatus:
		status, err := messages.Decode[messages.ChannelStatus](raw)
		if err != nil {
			return s.malformedText(raw, "json", err)
		}
		s.handlers.OnChannelStatus(status)

	case messages.CommandStreamStart:
		return s.startStream(ctx, raw)

	case messages.CommandStreamStop:
		return s.stopStream(raw)

	case messages.CommandImage:
		image, err := messages.Decode[messages.Image](raw)
		if err != nil {
			return s.malformedText(raw, "json", err)
		}
		s.handlers.OnImage(image)

	default:
		s.handlers.OnUnknownCommand(command, event)
	}
	return nil
}

// acknowledge marks the logon as established when the server answers it
func (s *Session) acknowledge(event messages.Event) {
	seq, ok := event["seq"].(float64)
	if !ok || int(seq) != s.logonSeq {
		return
	}
	if success, _ := event["success"].(bool); success && !s.loggedOn {
		s.loggedOn = true
		s.logger.Info("✅ Logged on")
	}
}

func (s *Session) serverError(code any) error {
	str, ok := code.(string)
	if !ok {
		str = fmt.Sprint(code)
	}
	serverErr := messages.NewServerError(str)
	s.metrics.ServerErrors.WithLabelValues(serverErr.Kind.String()).Inc()
	s.logger.WithField("code", str).Error("❌ Server error")
	return serverErr
}

// malformedText reports an undecodable control message. It is fatal only
// before the logon is established.
func (s *Session) malformedText(raw []byte, reason string, err error) error {
	s.metrics.MalformedFrames.WithLabelValues(reason).Inc()
	s.handlers.OnUnknownMessage(raw, err)
	if !s.loggedOn {
		return fmt.Errorf("%w: %w", ErrMalformedLogon, err)
	}
	return nil
}

func (s *Session) startStream(ctx context.Context, raw []byte) error {
	start, err := messages.Decode[messages.StreamStart](raw)
	if err != nil {
		return s.malformedText(raw, "json", err)
	}
	header, err := codec.DecodeHeader(start.CodecHeader)
	if err != nil {
		return s.malformedText(raw, "codec_header", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"stream_id": start.StreamID,
		"channel":   start.Channel,
		"from":      start.From,
	})

	if old, exists := s.streams[start.StreamID]; exists {
		log.Warn("⚠️ Stream restarted before stop, closing previous")
		s.removeStream(start.StreamID, old)
	}

	st := stream.NewIncomingAudioStream(start.StreamID, header, s.decoders)
	s.streams[start.StreamID] = st
	s.active.Add(1)
	s.metrics.StreamsStarted.Inc()
	s.metrics.ActiveStreams.Inc()
	log.WithField("codec", header.String()).Info("🎙️ Stream started")

	// The routine is never joined; it ends when it consumes the sentinel.
	go s.handlers.OnStream(context.WithoutCancel(ctx), start, st)
	return nil
}

func (s *Session) stopStream(raw []byte) error {
	stop, err := messages.Decode[messages.StreamStop](raw)
	if err != nil {
		return s.malformedText(raw, "json", err)
	}

	st, exists := s.streams[stop.StreamID]
	if !exists {
		return s.unknownStream(stop.StreamID, "stop", func(err error) {
			s.handlers.OnUnknownMessage(raw, err)
		})
	}

	s.removeStream(stop.StreamID, st)
	s.logger.WithFields(logrus.Fields{
		"stream_id": stop.StreamID,
		"packets":   st.Received(),
	}).Info("🛑 Stream stopped")
	return nil
}

func (s *Session) removeStream(id uint32, st *stream.IncomingAudioStream) {
	delete(s.streams, id)
	if err := st.Close(); err != nil {
		s.logger.WithField("stream_id", id).WithError(err).Warn("⚠️ Stream already closed")
	}
	s.active.Add(-1)
	s.metrics.StreamsStopped.Inc()
	s.metrics.ActiveStreams.Dec()
}

func (s *Session) closeOpenStreams() {
	for id, st := range s.streams {
		s.logger.WithField("stream_id", id).Warn("⚠️ Closing stream left open at session end")
		s.removeStream(id, st)
	}
}

func (s *Session) handleBinary(data []byte) error {
	packet, err := stream.DecodePacket(data)
	if err != nil {
		s.metrics.MalformedFrames.WithLabelValues("packet").Inc()
		s.handlers.OnUnknownBinary(data, err)
		if !s.loggedOn {
			return fmt.Errorf("%w: %w", ErrMalformedLogon, err)
		}
		return nil
	}

	switch packet.Kind {
	case stream.KindAudio:
		st, exists := s.streams[packet.ID1]
		if !exists {
			return s.unknownStream(packet.ID1, "audio", func(err error) {
				s.handlers.OnUnknownBinary(data, err)
			})
		}
		if err := st.Push(packet.Payload); err != nil {
			return s.unknownStream(packet.ID1, "audio", func(err error) {
				s.handlers.OnUnknownBinary(data, err)
			})
		}
		s.metrics.AudioPackets.Inc()

	case stream.KindImage:
		s.metrics.ImagePackets.Inc()
		s.handlers.OnImageData(&messages.ImageData{
			ImageID:   packet.ID1,
			ImageType: packet.ID2,
			Data:      packet.Payload,
		})
	}
	return nil
}

// unknownStream applies the stream policy to an event for a stream that is not open
func (s *Session) unknownStream(id uint32, event string, report func(error)) error {
	s.metrics.UnknownStreamEvents.WithLabelValues(event).Inc()
	streamErr := &StreamError{StreamID: id, Event: event}
	log := s.logger.WithFields(logrus.Fields{"stream_id": id, "event": event})

	if s.config.StreamPolicy == PolicyStrict {
		log.Error("❌ Event for unknown stream")
		return streamErr
	}
	log.Warn("⚠️ Event for unknown stream")
	report(streamErr)
	return nil
}
