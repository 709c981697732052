package gateway_test

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

	"github.com/quizwire/quizwire/internal/quiz/countdown"
	"github.com/quizwire/quizwire/internal/quiz/events"
	"github.com/quizwire/quizwire/internal/quiz/fanout"
	"github.com/quizwire/quizwire/internal/quiz/gateway"
	"github.com/quizwire/quizwire/internal/quiz/room"
	"github.com/quizwire/quizwire/internal/quiz/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	registry := room.NewRegistry()
	fan := fanout.NewFanout(registry)
	cd := countdown.NewCoordinator(fan)
	controller := session.NewController(registry, fan, cd)
	gw := gateway.NewGateway(controller, gateway.DefaultConfig())

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data map[string]any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	require.NoError(t, conn.WriteJSON(events.Envelope{Event: event, Data: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	var payload map[string]any
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &payload))
	}
	return env.Event, payload
}

func TestGateway_JoinAndLeave(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "test")
	writeEvent(t, alice, events.NewUserRequest, map[string]any{"displayName": "alice"})

	event, payload := readEnvelope(t, alice)
	require.Equal(t, events.NewUserOk, event)
	require.NotEmpty(t, payload["userId"])
	assert.Equal(t, "alice", payload["displayName"])

	bob := dial(t, srv, "test")
	writeEvent(t, bob, events.NewUserRequest, map[string]any{"displayName": "bob"})

	event, payload = readEnvelope(t, bob)
	require.Equal(t, events.NewUserOk, event)
	bobID := payload["userId"]

	// Alice hears about bob, not about herself.
	event, payload = readEnvelope(t, alice)
	require.Equal(t, events.NewUser, event)
	assert.Equal(t, bobID, payload["userId"])

	// Closing bob's socket is the disconnect notification.
	bob.Close()

	event, payload = readEnvelope(t, alice)
	require.Equal(t, events.UserLeftTheRoom, event)
	assert.Equal(t, bobID, payload["userId"])
}

func TestGateway_RoomsAreIsolated(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "roomA")
	writeEvent(t, alice, events.NewUserRequest, map[string]any{"displayName": "alice"})
	event, _ := readEnvelope(t, alice)
	require.Equal(t, events.NewUserOk, event)

	other := dial(t, srv, "roomB")
	writeEvent(t, other, events.NewUserRequest, map[string]any{"displayName": "eve"})
	event, _ = readEnvelope(t, other)
	require.Equal(t, events.NewUserOk, event)

	// Alice must not see a join from another room.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var env events.Envelope
	err := alice.ReadJSON(&env)
	assert.Error(t, err, "expected no cross-room frame, got %+v", env)
}

func TestGateway_MalformedFrameIsDropped(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "test")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and still accepts real frames.
	writeEvent(t, alice, events.NewUserRequest, map[string]any{"displayName": "alice"})
	event, _ := readEnvelope(t, alice)
	assert.Equal(t, events.NewUserOk, event)
}

func TestGateway_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
