package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer upgrades one connection, records subscribe messages and sends
// the given payloads.
func feedServer(t *testing.T, payloads []string, subs chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err == nil {
			subs <- sub["session"]
		}
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestClientStreamsTickFrames(t *testing.T) {
	subs := make(chan string, 1)
	srv := feedServer(t, []string{
		`{"type":"heartbeat"}`,
		`not json`,
		`{"type":"tick","data":[{"session_id":"s1","t":1700000000,"samples":[1,2,3,4,5]},{"session_id":"s1","t":1700000001,"samples":[2,3,4,5,6]}]}`,
	}, subs)
	defer srv.Close()

	c := New(wsURL(srv), WithToken("secret"), WithSessions("s1"), WithPingInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "s1", <-subs)

	frames, errs := c.Read(ctx)
	first := <-frames
	second := <-frames
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, first.Samples)
	assert.Equal(t, int64(1700000001), second.Timestamp)

	cancel()
	for range frames {
	}
	for err := range errs {
		assert.NoError(t, err)
	}
	_ = c.Close()
	assert.False(t, c.IsConnected())
}

func TestClientConnectRejected(t *testing.T) {
	srv := feedServer(t, nil, make(chan string, 1))
	defer srv.Close()

	c := New(wsURL(srv), WithToken("wrong"))
	err := c.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Subscribe(context.Background()), errNotConnected)
}

func TestClientReadWithoutConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1")
	frames, errs := c.Read(context.Background())
	assert.ErrorIs(t, <-errs, errNotConnected)
	_, open := <-frames
	assert.False(t, open)
}

func TestReconnectHonoursContext(t *testing.T) {
	c := New("ws://127.0.0.1:1", WithReconnectDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reconnect(ctx), context.Canceled)
}
