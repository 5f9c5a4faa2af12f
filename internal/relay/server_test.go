package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/crypto-crawler/internal/config"
)

func newTestServer(t *testing.T, h *Hub, cfg config.RelayServer) *httptest.Server {
	t.Helper()
	s := NewServer(h, cfg, nil)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return srv
}

// httptestServer serves handler on every upgraded connection.
func httptestServer(t *testing.T, handler func(*websocket.Conn), upgrader websocket.Upgrader) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func recv(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServer_SubscribeFlow(t *testing.T) {
	h := NewHub([]string{testDest}, 100, nil, nil)
	require.NoError(t, h.Broadcast(testDest, event(1)))
	srv := newTestServer(t, h, config.RelayServer{})
	conn := dial(t, srv)

	send(t, conn, Frame{Command: CmdConnect})
	connected := recv(t, conn)
	assert.Equal(t, CmdConnected, connected.Command)
	assert.Equal(t, ProtocolVersion, connected.Version)
	assert.NotEmpty(t, connected.Session)

	send(t, conn, Frame{Command: CmdSubscribe, Destination: testDest, ID: "sub-0", Receipt: "r1"})
	receipt := recv(t, conn)
	assert.Equal(t, CmdReceipt, receipt.Command)
	assert.Equal(t, "r1", receipt.Receipt)

	replay := recv(t, conn)
	assert.Equal(t, CmdMessage, replay.Command)
	assert.True(t, replay.Replay)
	assert.JSONEq(t, string(event(1)), string(replay.Body))

	require.Eventually(t, func() bool { return h.Stats().Subscribers == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, h.Broadcast(testDest, event(2)))

	live := recv(t, conn)
	assert.Equal(t, CmdMessage, live.Command)
	assert.False(t, live.Replay)
	assert.Equal(t, "sub-0", live.Subscription)
	assert.JSONEq(t, string(event(2)), string(live.Body))

	send(t, conn, Frame{Command: CmdUnsubscribe, ID: "sub-0"})
	assert.Equal(t, CmdReceipt, recv(t, conn).Command)
	assert.Equal(t, 0, h.Stats().Subscribers)

	send(t, conn, Frame{Command: CmdDisconnect, Receipt: "bye"})
	assert.Equal(t, "bye", recv(t, conn).Receipt)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err = %v", err)
	require.Eventually(t, func() bool { return h.Stats().Peers == 0 }, time.Second, 10*time.Millisecond)
}

func TestServer_Errors(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	srv := newTestServer(t, h, config.RelayServer{})
	conn := dial(t, srv)

	send(t, conn, Frame{Command: CmdSubscribe, Destination: testDest, ID: "a"})
	f := recv(t, conn)
	assert.Equal(t, CmdError, f.Command)
	assert.Equal(t, ErrNotConnected.Error(), f.Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, CmdError, recv(t, conn).Command)

	send(t, conn, Frame{Command: CmdConnect})
	assert.Equal(t, CmdConnected, recv(t, conn).Command)

	tests := []struct {
		frame Frame
		want  error
	}{
		{Frame{Command: CmdSubscribe, Destination: "/topic/nope", ID: "a"}, ErrUnknownDestination},
		{Frame{Command: CmdSubscribe, Destination: testDest}, ErrMissingID},
		{Frame{Command: CmdUnsubscribe, ID: "zzz"}, ErrUnknownID},
		{Frame{Command: "SEND"}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		send(t, conn, tt.frame)
		f := recv(t, conn)
		assert.Equal(t, CmdError, f.Command)
		assert.Equal(t, tt.want.Error(), f.Message)
	}
}

func TestServer_OriginCheck(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	srv := newTestServer(t, h, config.RelayServer{AllowedOrigins: []string{"http://dashboard.local:3000/"}})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://dashboard.local:3000")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	conn.Close()
}

func TestServer_CloseDisconnectsPeers(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)
	s := NewServer(h, config.RelayServer{}, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dial(t, srv)
	send(t, conn, Frame{Command: CmdConnect})
	recv(t, conn)

	s.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHealthHandler(t *testing.T) {
	h := NewHub([]string{testDest}, 10, nil, nil)

	rec := httptest.NewRecorder()
	HealthHandler(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Nil(t, body["seconds_since_last_event"])

	require.NoError(t, h.Broadcast(testDest, event(1)))
	rec = httptest.NewRecorder()
	HealthHandler(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body["seconds_since_last_event"])
}
