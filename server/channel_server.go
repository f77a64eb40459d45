package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/room4-2/zellolink/codec"
	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/stream"
)

// ScriptFrame is one frame the emulator writes after a successful logon.
// Exactly one of Text or Binary is set. Delay is waited before writing.
type ScriptFrame struct {
	Text   []byte
	Binary []byte
	Delay  time.Duration
}

// TextFrame marshals v as a control message
func TextFrame(v any) ScriptFrame {
	data, err := sonic.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("script frame: %v", err))
	}
	return ScriptFrame{Text: data}
}

// StreamScript plays one transmission on channel: stream start, one audio
// packet per entry of packets, then stream stop
func StreamScript(channel, from string, streamID uint32, header codec.Header, packets [][]byte, interval time.Duration) []ScriptFrame {
	frames := make([]ScriptFrame, 0, len(packets)+2)
	frames = append(frames, TextFrame(messages.StreamStart{
		Command:        messages.CommandStreamStart,
		Type:           "audio",
		Codec:          "opus",
		CodecHeader:    codec.EncodeHeader(header),
		PacketDuration: int(header.FrameSizeMs) * int(header.FramesPerPacket),
		StreamID:       streamID,
		Channel:        channel,
		From:           from,
	}))
	for i, p := range packets {
		frames = append(frames, ScriptFrame{
			Binary: stream.EncodeAudioPacket(streamID, uint32(i), p),
			Delay:  interval,
		})
	}
	frames = append(frames, TextFrame(messages.StreamStop{
		Command:  messages.CommandStreamStop,
		StreamID: streamID,
	}))
	return frames
}

// ChannelServer emulates the channel server side of the protocol. It
// accepts a logon, acknowledges it, plays Script and then closes the
// connection normally unless KeepOpen is set.
type ChannelServer struct {
	Script   []ScriptFrame
	Password string // logons with any other password get "invalid password"
	KeepOpen bool

	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     logrus.FieldLogger

	mu     sync.Mutex
	logons []messages.LogonRequest
}

// NewChannelServer creates an emulator listening on port
func NewChannelServer(port int, script []ScriptFrame, logger logrus.FieldLogger) *ChannelServer {
	s := &ChannelServer{
		Script: script,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	// No ReadTimeout/WriteTimeout; the websocket layer sets its own deadlines.
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Handler returns the route multiplexer
func (s *ChannelServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until Shutdown
func (s *ChannelServer) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("📡 Channel emulator starting, endpoint /ws")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Start on an existing listener
func (s *ChannelServer) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *ChannelServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Logons returns every logon request received so far
func (s *ChannelServer) Logons() []messages.LogonRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.LogonRequest(nil), s.logons...)
}

func (s *ChannelServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("⚠️ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logon, err := s.readLogon(conn)
	if err != nil {
		s.logger.WithError(err).Warn("⚠️ Bad logon")
		s.writeText(conn, map[string]any{"error": messages.ErrorInvalidRequest.String()})
		return
	}
	s.logger.WithField("username", logon.Username).Info("✅ Client logged on")

	if s.Password != "" && logon.Password != s.Password {
		s.writeText(conn, map[string]any{"seq": logon.Seq, "error": messages.ErrorInvalidPassword.String()})
		return
	}
	if err := s.writeText(conn, map[string]any{"seq": logon.Seq, "success": true}); err != nil {
		return
	}

	for _, frame := range s.Script {
		if frame.Delay > 0 {
			select {
			case <-time.After(frame.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if err := s.writeFrame(conn, frame); err != nil {
			s.logger.WithError(err).Warn("⚠️ Failed to write script frame")
			return
		}
	}

	if s.KeepOpen {
		// Wait for the client to hang up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	// Let the close handshake finish before the deferred Close.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *ChannelServer) readLogon(conn *websocket.Conn) (*messages.LogonRequest, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read logon: %w", err)
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("expected text logon, got message type %d", messageType)
	}

	var logon messages.LogonRequest
	if err := sonic.Unmarshal(data, &logon); err != nil {
		return nil, fmt.Errorf("invalid logon: %w", err)
	}
	if logon.Command != messages.CommandLogon {
		return nil, fmt.Errorf("expected logon, got %q", logon.Command)
	}

	s.mu.Lock()
	s.logons = append(s.logons, logon)
	s.mu.Unlock()
	return &logon, nil
}

func (s *ChannelServer) writeText(conn *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeFrame(conn, ScriptFrame{Text: data})
}

func (s *ChannelServer) writeFrame(conn *websocket.Conn, frame ScriptFrame) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if frame.Binary != nil {
		return conn.WriteMessage(websocket.BinaryMessage, frame.Binary)
	}
	return conn.WriteMessage(websocket.TextMessage, frame.Text)
}
