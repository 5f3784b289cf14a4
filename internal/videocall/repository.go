package videocall

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNotParticipant      = errors.New("not a participant of this room")
)

// ParticipantRole selects which joined flag a join/leave event touches. The
// two flags are independent fields so concurrent joins by the two
// participants never race on the same column.
type ParticipantRole string

const (
	RolePractitioner ParticipantRole = "practitioner"
	RolePatient      ParticipantRole = "patient"
)

// Repository contains all DB interactions needed by the coordinator.
type Repository interface {
	InTx(ctx context.Context, fn func(r Repository) error) error

	GetRoomByRoomID(ctx context.Context, roomID string) (*Room, error)
	GetRoomByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Room, error)
	GetRoomDetailByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*RoomDetail, error)
	CreateRoom(ctx context.Context, appointmentID uuid.UUID, roomID string) (*Room, error)

	// GetRoomParticipants resolves the appointment behind a room to its two
	// authorized identities.
	GetRoomParticipants(ctx context.Context, roomID string) (Participants, error)

	SetJoined(ctx context.Context, roomID string, role ParticipantRole, joined bool) error
	// PromoteToInProgress transitions Waiting -> InProgress iff both joined
	// flags are set in the current row, and reports whether it did.
	PromoteToInProgress(ctx context.Context, roomID string) (bool, error)
	EndRoom(ctx context.Context, roomID string) (*Room, error)
}
