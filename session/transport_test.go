package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/zellolink/codec"
	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/server"
	"github.com/room4-2/zellolink/stream"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// echoServer upgrades, writes the given frames, echoes text back once and
// then closes with code
func echoServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, data)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, "bye"), time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nextFrame(t *testing.T, tr Transport) (Frame, bool) {
	t.Helper()
	select {
	case f, ok := <-tr.Frames():
		return f, ok
	case <-time.After(5 * time.Second):
		t.Fatal("no frame")
		return Frame{}, false
	}
}

func TestWebSocketTransportFrames(t *testing.T) {
	srv := echoServer(t, websocket.CloseNormalClosure)
	tr, err := DialWebSocket(context.Background(), wsURL(srv, "/"))
	require.NoError(t, err)
	defer tr.Close()

	f, ok := nextFrame(t, tr)
	require.True(t, ok)
	assert.Equal(t, FrameBinary, f.Kind)
	assert.Equal(t, []byte{1, 2, 3}, f.Data)

	require.NoError(t, tr.Send(context.Background(), []byte(`{"command":"logon"}`)))
	f, _ = nextFrame(t, tr)
	assert.Equal(t, FrameText, f.Kind)
	assert.Equal(t, `{"command":"logon"}`, string(f.Data))

	f, _ = nextFrame(t, tr)
	assert.Equal(t, FrameClosed, f.Kind)

	_, ok = nextFrame(t, tr)
	assert.False(t, ok, "frames must be closed after the terminal frame")
}

func TestWebSocketTransportAbnormalClose(t *testing.T) {
	srv := echoServer(t, websocket.CloseInternalServerErr)
	tr, err := DialWebSocket(context.Background(), wsURL(srv, "/"))
	require.NoError(t, err)
	defer tr.Close()

	nextFrame(t, tr)
	require.NoError(t, tr.Send(context.Background(), []byte("x")))
	nextFrame(t, tr)

	f, _ := nextFrame(t, tr)
	assert.Equal(t, FrameError, f.Kind)
	assert.True(t, websocket.IsCloseError(f.Err, websocket.CloseInternalServerErr))
}

func TestWebSocketTransportSendAfterClose(t *testing.T) {
	srv := echoServer(t, websocket.CloseNormalClosure)
	tr, err := DialWebSocket(context.Background(), wsURL(srv, "/"))
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send(context.Background(), []byte("x")), ErrTransportClosed)
	assert.NoError(t, tr.Close())
}

func TestDialWebSocketFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), wsURL(srv, "/ws"))
	assert.Error(t, err)
}

func TestSessionAgainstChannelServer(t *testing.T) {
	header := codec.Header{SampleRateHz: 16000, FramesPerPacket: 1, FrameSizeMs: 60}
	script := []server.ScriptFrame{
		server.TextFrame(messages.ChannelStatus{
			Command:     messages.CommandChannelStatus,
			Channel:     "aiozello",
			Status:      messages.StatusOnline,
			UsersOnline: 2,
		}),
	}
	script = append(script, server.StreamScript("aiozello", "bob", 11, header,
		[][]byte{[]byte("one"), []byte("two")}, time.Millisecond)...)

	logger, _ := logtest.NewNullLogger()
	emulator := server.NewChannelServer(0, script, logger)
	srv := httptest.NewServer(emulator.Handler())
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv, "/ws"))
	require.NoError(t, err)
	defer tr.Close()

	var status *messages.ChannelStatus
	pcm := make(chan []string, 1)
	s, _, _ := newTestSession(tr, Handlers{
		OnChannelStatus: func(cs *messages.ChannelStatus) { status = cs },
		OnStream: func(ctx context.Context, start *messages.StreamStart, st *stream.IncomingAudioStream) {
			var got []string
			for chunk, err := range st.Decode(ctx).All() {
				if err != nil {
					break
				}
				got = append(got, string(chunk))
			}
			pcm <- got
		},
	}, PolicyStrict)

	require.NoError(t, s.Run(context.Background()))

	select {
	case got := <-pcm:
		assert.Equal(t, []string{"pcm:one", "pcm:two"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("stream not decoded")
	}

	require.NotNil(t, status)
	assert.Equal(t, 2, status.UsersOnline)

	logons := emulator.Logons()
	require.Len(t, logons, 1)
	assert.Equal(t, "jwt-token", logons[0].AuthToken)
	assert.Equal(t, "alice", logons[0].Username)
}

func TestSessionRejectedByChannelServer(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	emulator := server.NewChannelServer(0, nil, logger)
	emulator.Password = "other"
	srv := httptest.NewServer(emulator.Handler())
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv, "/ws"))
	require.NoError(t, err)
	defer tr.Close()

	s, _, _ := newTestSession(tr, Handlers{}, PolicyStrict)
	err = s.Run(context.Background())
	assert.ErrorIs(t, err, messages.ErrInvalidPassword)
}
