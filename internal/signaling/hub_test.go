package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCoordinator authorizes a fixed set of users and records calls.
type fakeCoordinator struct {
	mu         sync.Mutex
	authorized map[uuid.UUID]bool
	joined     []uuid.UUID
	left       []uuid.UUID
	ended      []string
}

func newFakeCoordinator(users ...uuid.UUID) *fakeCoordinator {
	authorized := make(map[uuid.UUID]bool)
	for _, u := range users {
		authorized[u] = true
	}
	return &fakeCoordinator{authorized: authorized}
}

func (f *fakeCoordinator) CanUserJoinRoom(_ context.Context, _ string, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized[userID], nil
}

func (f *fakeCoordinator) UserJoinedRoom(_ context.Context, _ string, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, userID)
	return nil
}

func (f *fakeCoordinator) UserLeftRoom(_ context.Context, _ string, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, userID)
	return nil
}

func (f *fakeCoordinator) EndCall(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, roomID)
	return nil
}

func (f *fakeCoordinator) leftUsers() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.left...)
}

func (f *fakeCoordinator) endedRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

// testRelay is a hub behind a live websocket server.
type testRelay struct {
	hub    *Hub
	coord  *fakeCoordinator
	server *httptest.Server
}

func newTestRelay(t *testing.T, users ...uuid.UUID) *testRelay {
	t.Helper()

	coord := newFakeCoordinator(users...)
	hub := NewHub(coord, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		hub.HandleWS(w, r, userID)
	}))
	t.Cleanup(server.Close)

	return &testRelay{hub: hub, coord: coord, server: server}
}

func (tr *testRelay) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(tr.server.URL, "http") + "?user=" + userID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: data}))
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()

	send(t, conn, EventJoinRoom, JoinPayload{RoomID: roomID})
	env := readEvent(t, conn)
	require.Equal(t, EventJoinedRoom, env.Event)
}

func TestJoinRoom(t *testing.T) {
	practitioner := uuid.New()
	patient := uuid.New()

	t.Run("authorized user gets joined-room", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		conn := relay.dial(t, practitioner)

		send(t, conn, EventJoinRoom, JoinPayload{RoomID: "room_1_abc"})

		env := readEvent(t, conn)
		require.Equal(t, EventJoinedRoom, env.Event)

		var payload JoinedRoomPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "room_1_abc", payload.RoomID)
		assert.Equal(t, practitioner.String(), payload.UserID)
	})

	t.Run("stranger gets an error event", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		conn := relay.dial(t, uuid.New())

		send(t, conn, EventJoinRoom, JoinPayload{RoomID: "room_1_abc"})

		env := readEvent(t, conn)
		require.Equal(t, EventError, env.Event)

		var payload ErrorPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Contains(t, payload.Message, "not authorized")
	})

	t.Run("identity comes from the connection, not the payload", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		conn := relay.dial(t, uuid.New())

		// Claiming the practitioner's id in the payload changes nothing.
		send(t, conn, EventJoinRoom, JoinPayload{RoomID: "room_1_abc", UserID: practitioner.String()})

		env := readEvent(t, conn)
		assert.Equal(t, EventError, env.Event)
	})

	t.Run("peer is told about the new arrival", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")

		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")

		env := readEvent(t, first)
		require.Equal(t, EventUserJoined, env.Event)

		var payload UserPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, patient.String(), payload.UserID)
	})

	t.Run("malformed payload gets an error event", func(t *testing.T) {
		relay := newTestRelay(t, practitioner)
		conn := relay.dial(t, practitioner)

		send(t, conn, EventJoinRoom, map[string]any{})

		env := readEvent(t, conn)
		assert.Equal(t, EventError, env.Event)
	})
}

func TestSignalRelay(t *testing.T) {
	practitioner := uuid.New()
	patient := uuid.New()

	t.Run("signal reaches the peer with the sender stamped", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")
		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")
		readEvent(t, first) // user-joined

		offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
		send(t, second, EventWebRTCSignal, SignalPayload{RoomID: "room_1_abc", Signal: offer})

		env := readEvent(t, first)
		require.Equal(t, EventWebRTCSignal, env.Event)

		var payload SignalOutPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.JSONEq(t, string(offer), string(payload.Signal))
		assert.Equal(t, patient.String(), payload.UserID)
	})

	t.Run("signal outside a room is rejected", func(t *testing.T) {
		relay := newTestRelay(t, practitioner)
		conn := relay.dial(t, practitioner)

		send(t, conn, EventWebRTCSignal, SignalPayload{Signal: json.RawMessage(`{}`)})

		env := readEvent(t, conn)
		require.Equal(t, EventError, env.Event)

		var payload ErrorPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Contains(t, payload.Message, "not in a room")
	})

	t.Run("toggle relays the enabled flag", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")
		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")
		readEvent(t, first) // user-joined

		send(t, second, EventToggleAudio, TogglePayload{RoomID: "room_1_abc", IsEnabled: false})

		env := readEvent(t, first)
		require.Equal(t, EventAudioToggled, env.Event)

		var payload ToggledPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.False(t, payload.IsEnabled)
		assert.Equal(t, patient.String(), payload.UserID)
	})

	t.Run("screen share presence reaches the peer", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")
		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")
		readEvent(t, first) // user-joined

		send(t, second, EventScreenShareStart, struct{}{})

		env := readEvent(t, first)
		assert.Equal(t, EventScreenShareStarted, env.Event)
	})
}

func TestLeaveAndDisconnect(t *testing.T) {
	practitioner := uuid.New()
	patient := uuid.New()

	t.Run("explicit leave notifies the peer", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")
		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")
		readEvent(t, first) // user-joined

		send(t, second, EventLeaveRoom, struct{}{})

		env := readEvent(t, first)
		require.Equal(t, EventUserLeft, env.Event)

		var payload UserPayload
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, patient.String(), payload.UserID)
	})

	t.Run("dropped connection synthesizes a leave", func(t *testing.T) {
		relay := newTestRelay(t, practitioner, patient)
		first := relay.dial(t, practitioner)
		joinRoom(t, first, "room_1_abc")
		second := relay.dial(t, patient)
		joinRoom(t, second, "room_1_abc")
		readEvent(t, first) // user-joined

		second.Close()

		env := readEvent(t, first)
		assert.Equal(t, EventUserLeft, env.Event)

		require.Eventually(t, func() bool {
			left := relay.coord.leftUsers()
			return len(left) == 1 && left[0] == patient
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestEndCall(t *testing.T) {
	practitioner := uuid.New()
	patient := uuid.New()

	relay := newTestRelay(t, practitioner, patient)
	first := relay.dial(t, practitioner)
	joinRoom(t, first, "room_1_abc")
	second := relay.dial(t, patient)
	joinRoom(t, second, "room_1_abc")
	readEvent(t, first) // user-joined

	send(t, first, EventEndCall, struct{}{})

	// Both participants get call-ended, the ender included.
	for _, conn := range []*websocket.Conn{first, second} {
		env := readEvent(t, conn)
		require.Equal(t, EventCallEnded, env.Event)
	}

	assert.Equal(t, []string{"room_1_abc"}, relay.coord.endedRooms())

	// The relay closes both connections after the final frame.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
}

func TestFrameAfterEndCall(t *testing.T) {
	practitioner := uuid.New()
	patient := uuid.New()

	relay := newTestRelay(t, practitioner, patient)
	first := relay.dial(t, practitioner)
	joinRoom(t, first, "room_1_abc")
	second := relay.dial(t, patient)
	joinRoom(t, second, "room_1_abc")
	readEvent(t, first) // user-joined

	// Pipeline a frame behind end-call. The relay is tearing the connection
	// down and must discard the late frame instead of replying to it.
	send(t, first, EventEndCall, struct{}{})
	_ = first.WriteJSON(Envelope{Event: "no-such-event"})

	env := readEvent(t, first)
	require.Equal(t, EventCallEnded, env.Event)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	// The relay is still serving fresh connections afterwards.
	third := relay.dial(t, patient)
	send(t, third, EventJoinRoom, JoinPayload{RoomID: "room_2_def"})
	env = readEvent(t, third)
	assert.Equal(t, EventJoinedRoom, env.Event)
}

func TestUnknownEvent(t *testing.T) {
	practitioner := uuid.New()

	relay := newTestRelay(t, practitioner)
	conn := relay.dial(t, practitioner)

	send(t, conn, "no-such-event", struct{}{})

	env := readEvent(t, conn)
	require.Equal(t, EventError, env.Event)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Contains(t, payload.Message, "unknown event")
}
