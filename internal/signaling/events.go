package signaling

import "encoding/json"

// Inbound event names.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventWebRTCSignal     = "webrtc-signal"
	EventScreenShareStart = "screen-share-start"
	EventScreenShareStop  = "screen-share-stop"
	EventToggleVideo      = "toggle-video"
	EventToggleAudio      = "toggle-audio"
	EventEndCall          = "end-call"
)

// Outbound event names.
const (
	EventJoinedRoom         = "joined-room"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventVideoToggled       = "video-toggled"
	EventAudioToggled       = "audio-toggled"
	EventCallEnded          = "call-ended"
	EventError              = "error"
)

// Envelope is the wire frame of every relay message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// SignalPayload carries a WebRTC offer, answer, or ICE candidate. The signal
// blob is opaque and relayed verbatim.
type SignalPayload struct {
	RoomID string          `json:"roomId"`
	Signal json.RawMessage `json:"signal"`
	UserID string          `json:"userId,omitempty"`
}

type TogglePayload struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId,omitempty"`
	IsEnabled bool   `json:"isEnabled"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type ToggledPayload struct {
	UserID    string `json:"userId"`
	IsEnabled bool   `json:"isEnabled"`
}

type SignalOutPayload struct {
	Signal json.RawMessage `json:"signal"`
	UserID string          `json:"userId"`
}

type JoinedRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
