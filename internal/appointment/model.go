package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PendingPatientConfirmation"
	StatusScheduled Status = "Scheduled"
	StatusCancelled Status = "Cancelled"
	StatusCompleted Status = "Completed"
	StatusNoShow    Status = "NoShow"
)

// Terminal reports whether no further mutation of the appointment is allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

type Type string

const (
	TypeInitialAssessment  Type = "InitialAssessment"
	TypeFollowUp           Type = "FollowUp"
	TypeBraceFitting       Type = "BraceFitting"
	TypeRemoteConsultation Type = "RemoteConsultation"
)

func ValidType(t Type) bool {
	switch t {
	case TypeInitialAssessment, TypeFollowUp, TypeBraceFitting, TypeRemoteConsultation:
		return true
	}
	return false
}

type Appointment struct {
	ID              uuid.UUID
	PractitionerID  uuid.UUID
	PatientID       uuid.UUID
	DateTime        time.Time
	DurationMinutes int
	Type            Type
	Status          Status
	Notes           *string
	ResponseMessage *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is the exclusive upper bound of the appointment's interval.
func (a *Appointment) End() time.Time {
	return a.DateTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Participant is the slice of a practitioner or patient record the scheduling
// engine needs for authorization and notifications.
type Participant struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

type AppointmentDetail struct {
	Appointment
	Patient      *Participant
	Practitioner *Participant
}

// UpdatePatch carries the optional fields of a partial appointment update.
// Nil means "leave unchanged".
type UpdatePatch struct {
	DateTime        *time.Time
	DurationMinutes *int
	Type            *Type
	Notes           *string
}

// TimeChanged reports whether the patch moves the appointment's interval,
// which is what forces a fresh conflict check.
func (p UpdatePatch) TimeChanged() bool {
	return p.DateTime != nil || p.DurationMinutes != nil
}

// ListFilter scopes a read projection. The API layer fills it from the
// caller's role: practitioners filter by their own id (optionally narrowed to
// one patient), patients only ever see their own rows.
type ListFilter struct {
	PractitionerID *uuid.UUID
	PatientID      *uuid.UUID
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
	SortDesc       bool
}

type Page struct {
	Data        []AppointmentDetail
	TotalCount  int
	CurrentPage int
	PageSize    int
	TotalPages  int
}
