package videocall

import (
	"time"

	"github.com/google/uuid"
)

type RoomStatus string

const (
	StatusWaiting    RoomStatus = "Waiting"
	StatusInProgress RoomStatus = "InProgress"
	StatusEnded      RoomStatus = "Ended"
)

// Room pairs one appointment with one realtime call session. Rooms are never
// deleted; an ended room is the call's history.
type Room struct {
	ID                 uuid.UUID
	AppointmentID      uuid.UUID
	RoomID             string
	Status             RoomStatus
	PractitionerJoined bool
	PatientJoined      bool
	StartedAt          *time.Time
	EndedAt            *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Participants are the only two identities authorized for a room.
type Participants struct {
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
}

func (p Participants) Includes(userID uuid.UUID) bool {
	return userID == p.PractitionerID || userID == p.PatientID
}

type PersonSummary struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
}

// RoomDetail is the read projection returned to a participant fetching the
// room for an appointment.
type RoomDetail struct {
	Room
	ScheduledAt  time.Time
	Practitioner PersonSummary
	Patient      PersonSummary
}
