package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Coordinator is the slice of the video-call service the relay needs. The
// relay never mutates persisted room state itself.
type Coordinator interface {
	CanUserJoinRoom(ctx context.Context, roomID string, userID uuid.UUID) (bool, error)
	UserJoinedRoom(ctx context.Context, roomID string, userID uuid.UUID) error
	UserLeftRoom(ctx context.Context, roomID string, userID uuid.UUID) error
	EndCall(ctx context.Context, roomID string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans signaling frames out between the participants of a room. Its
// connection map is an ephemeral cache; the coordinator's persisted room
// state is the source of truth.
type Hub struct {
	coord Coordinator
	log   zerolog.Logger

	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(coord Coordinator, log zerolog.Logger) *Hub {
	return &Hub{
		coord: coord,
		log:   log.With().Str("component", "signaling").Logger(),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// HandleWS upgrades an authenticated request and starts the client pumps.
// Identity comes from the transport's bearer token, never from payloads.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}

	h.log.Debug().Stringer("user_id", userID).Msg("client connected")

	go client.writePump()
	go client.readPump()
}

func (h *Hub) dispatch(c *Client, env Envelope) {
	switch env.Event {
	case EventJoinRoom:
		h.handleJoin(c, env.Data)
	case EventLeaveRoom:
		h.handleLeave(c)
	case EventWebRTCSignal:
		h.handleSignal(c, env.Data)
	case EventScreenShareStart:
		h.relayPresence(c, EventScreenShareStarted)
	case EventScreenShareStop:
		h.relayPresence(c, EventScreenShareStopped)
	case EventToggleVideo:
		h.handleToggle(c, env.Data, EventVideoToggled)
	case EventToggleAudio:
		h.handleToggle(c, env.Data, EventAudioToggled)
	case EventEndCall:
		h.handleEndCall(c)
	default:
		c.sendError("unknown event: " + env.Event)
	}
}

func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		c.sendError("malformed join-room payload")
		return
	}

	ctx := context.Background()

	canJoin, err := h.coord.CanUserJoinRoom(ctx, payload.RoomID, c.userID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", payload.RoomID).Msg("authorization check failed")
		c.sendError("failed to join room")
		return
	}
	if !canJoin {
		c.sendError("not authorized to join this room")
		return
	}

	// A connection belongs to at most one room.
	if prev := c.currentRoom(); prev != "" && prev != payload.RoomID {
		h.departRoom(c, prev)
	}

	h.mu.Lock()
	members, ok := h.rooms[payload.RoomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[payload.RoomID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
	c.setRoom(payload.RoomID)

	if err := h.coord.UserJoinedRoom(ctx, payload.RoomID, c.userID); err != nil {
		h.leaveRoom(c, payload.RoomID)
		h.log.Error().Err(err).Str("room_id", payload.RoomID).Msg("join failed")
		c.sendError("failed to join room")
		return
	}

	h.broadcast(payload.RoomID, c, EventUserJoined, UserPayload{UserID: c.userID.String()})
	c.sendEvent(EventJoinedRoom, JoinedRoomPayload{RoomID: payload.RoomID, UserID: c.userID.String()})

	h.log.Info().Stringer("user_id", c.userID).Str("room_id", payload.RoomID).Msg("user joined room")
}

func (h *Hub) handleLeave(c *Client) {
	roomID := c.currentRoom()
	if roomID == "" {
		return
	}

	h.departRoom(c, roomID)
}

// departRoom removes the connection from the room, records the leave with the
// coordinator, and tells the remaining peer.
func (h *Hub) departRoom(c *Client, roomID string) {
	h.leaveRoom(c, roomID)

	if err := h.coord.UserLeftRoom(context.Background(), roomID, c.userID); err != nil {
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("record leave failed")
	}

	h.broadcast(roomID, c, EventUserLeft, UserPayload{UserID: c.userID.String()})
}

func (h *Hub) handleSignal(c *Client, data json.RawMessage) {
	roomID := c.currentRoom()
	if roomID == "" {
		c.sendError("not in a room")
		return
	}

	var payload SignalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("malformed webrtc-signal payload")
		return
	}

	h.broadcast(roomID, c, EventWebRTCSignal, SignalOutPayload{
		Signal: payload.Signal,
		UserID: c.userID.String(),
	})
}

func (h *Hub) relayPresence(c *Client, outEvent string) {
	roomID := c.currentRoom()
	if roomID == "" {
		c.sendError("not in a room")
		return
	}

	h.broadcast(roomID, c, outEvent, UserPayload{UserID: c.userID.String()})
}

func (h *Hub) handleToggle(c *Client, data json.RawMessage, outEvent string) {
	roomID := c.currentRoom()
	if roomID == "" {
		c.sendError("not in a room")
		return
	}

	var payload TogglePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("malformed toggle payload")
		return
	}

	h.broadcast(roomID, c, outEvent, ToggledPayload{
		UserID:    c.userID.String(),
		IsEnabled: payload.IsEnabled,
	})
}

func (h *Hub) handleEndCall(c *Client) {
	roomID := c.currentRoom()
	if roomID == "" {
		c.sendError("not in a room")
		return
	}

	if err := h.coord.EndCall(context.Background(), roomID); err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("end call failed")
		c.sendError("failed to end call")
		return
	}

	h.mu.Lock()
	members := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	msg := mustMarshal(EventCallEnded, UserPayload{UserID: c.userID.String()})
	for member := range members {
		member.setRoom("")
		member.enqueue(msg)
		// The queued call-ended frame is flushed before the close frame.
		member.shutdown()
	}

	h.log.Info().Stringer("user_id", c.userID).Str("room_id", roomID).Msg("call ended")
}

// disconnect synthesizes a leave for whichever room the dying connection was
// in.
func (h *Hub) disconnect(c *Client) {
	roomID := c.currentRoom()
	if roomID == "" {
		return
	}

	h.departRoom(c, roomID)

	h.log.Debug().Stringer("user_id", c.userID).Str("room_id", roomID).Msg("client disconnected")
}

func (h *Hub) leaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
	c.setRoom("")
}

// broadcast fans a frame out to every room member except the sender.
func (h *Hub) broadcast(roomID string, sender *Client, event string, payload any) {
	msg := mustMarshal(event, payload)

	h.mu.Lock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for member := range h.rooms[roomID] {
		if member != sender {
			members = append(members, member)
		}
	}
	h.mu.Unlock()

	for _, member := range members {
		member.enqueue(msg)
	}
}

func mustMarshal(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	msg, _ := json.Marshal(Envelope{Event: event, Data: data})
	return msg
}
