package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	readLimit        = 512 * 1024 // 512KB max message
	frameBufferSize  = 256
)

// ErrTransportClosed is returned by Send after Close
var ErrTransportClosed = errors.New("transport closed")

// FrameKind tags an inbound transport frame
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FrameError
	FrameClosed
	FrameOther
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameError:
		return "error"
	case FrameClosed:
		return "closed"
	default:
		return "other"
	}
}

// Frame is one inbound transport event. Err is set for FrameError and may
// carry the close reason for FrameClosed. MessageType holds the raw
// transport type for FrameOther.
type Frame struct {
	Kind        FrameKind
	Data        []byte
	Err         error
	MessageType int
}

// Transport carries control messages out and every inbound frame in.
// Frames is read by a single session loop; the channel is closed after a
// FrameError or FrameClosed.
type Transport interface {
	Send(ctx context.Context, text []byte) error
	Frames() <-chan Frame
	Close() error
}

// WebSocketTransport adapts a gorilla websocket connection
type WebSocketTransport struct {
	conn   *websocket.Conn
	frames chan Frame

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// DialWebSocket connects to the channel server at url
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   64 * 1024, // 64KB for audio packets
		WriteBufferSize:  16 * 1024,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}

// NewWebSocketTransport starts reading frames from conn
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	conn.SetReadLimit(readLimit)

	t := &WebSocketTransport{
		conn:   conn,
		frames: make(chan Frame, frameBufferSize),
		closed: make(chan struct{}),
	}
	go t.readPump()
	return t
}

// Frames returns the inbound frame channel
func (t *WebSocketTransport) Frames() <-chan Frame {
	return t.frames
}

// Send writes a text frame
func (t *WebSocketTransport) Send(ctx context.Context, text []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)

	if err := t.conn.WriteMessage(websocket.TextMessage, text); err != nil {
		return fmt.Errorf("failed to write text frame: %w", err)
	}
	return nil
}

// Close sends a normal close message and closes the connection
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.writeMu.Lock()
		t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		t.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}

func (t *WebSocketTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// readPump is the only reader of the connection
func (t *WebSocketTransport) readPump() {
	defer close(t.frames)

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.deliver(t.terminalFrame(err))
			return
		}

		var frame Frame
		switch messageType {
		case websocket.TextMessage:
			frame = Frame{Kind: FrameText, Data: data}
		case websocket.BinaryMessage:
			frame = Frame{Kind: FrameBinary, Data: data}
		default:
			frame = Frame{Kind: FrameOther, Data: data, MessageType: messageType}
		}

		if !t.deliver(frame) {
			return
		}
	}
}

func (t *WebSocketTransport) terminalFrame(err error) Frame {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || t.isClosed() {
		return Frame{Kind: FrameClosed, Err: err}
	}
	return Frame{Kind: FrameError, Err: err}
}

func (t *WebSocketTransport) deliver(frame Frame) bool {
	select {
	case t.frames <- frame:
		return true
	case <-t.closed:
		return false
	}
}
