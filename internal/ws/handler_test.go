package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-realtime/internal/mocks"
)

type staticTokens map[string]string

func (s staticTokens) ParseToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func newTestServer(t *testing.T, tokens TokenParser) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(new(mocks.ChatServiceMock), nil, HubOptions{})
	r := gin.New()
	r.GET("/ws", NewHandler(hub, tokens, 8).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandlerJoinRoundTrip(t *testing.T) {
	hub, srv := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventJoin, "data": "alice"}))
	env := readFrame(t, conn)
	assert.Equal(t, EventJoined, env.Event)

	var joined JoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, "alice", joined.UserID)
	assert.Equal(t, []string{"alice"}, hub.Registry().ListOnline())

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventPing}))
	assert.Equal(t, EventPong, readFrame(t, conn).Event)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return len(hub.Registry().ListOnline()) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandlerRejectsBadToken(t *testing.T) {
	_, srv := newTestServer(t, staticTokens{"good": "alice"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerBindsTokenUserToJoin(t *testing.T) {
	hub, srv := newTestServer(t, staticTokens{"good": "alice"})

	header := http.Header{}
	header.Set("Authorization", "Bearer good")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventJoin, "data": map[string]string{"userId": "bob"}}))
	env := readFrame(t, conn)
	require.Equal(t, EventError, env.Event)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "Forbidden", payload.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventJoin, "data": "alice"}))
	assert.Equal(t, EventJoined, readFrame(t, conn).Event)
	assert.Equal(t, []string{"alice"}, hub.Registry().ListOnline())
}

func TestJoinPayloadShapes(t *testing.T) {
	var p JoinPayload
	require.NoError(t, json.Unmarshal([]byte(`"alice"`), &p))
	assert.Equal(t, "alice", p.UserID)

	p = JoinPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"bob"}`), &p))
	assert.Equal(t, "bob", p.UserID)

	assert.Error(t, decodePayload([]byte(`{}`), &JoinPayload{}))
	assert.Error(t, decodePayload(nil, &JoinPayload{}))
}
