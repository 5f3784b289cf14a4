package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found or does not belong to this practitioner")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// InTx runs fn against a transaction-bound repository. The conflict check
	// and the subsequent write of a booking happen inside one such boundary.
	InTx(ctx context.Context, fn func(r Repository) error) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// ListBookedIntervals is the conflict pre-filter: non-cancelled intervals
	// of the practitioner starting before the proposed end, minus excludeID.
	// Pass uuid.Nil for excludeID when not rescheduling.
	ListBookedIntervals(ctx context.Context, practitionerID uuid.UUID, startingBefore time.Time, excludeID uuid.UUID) ([]Interval, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateAppointmentRow persists the already-resolved field values; the
	// service computes them from the current row and the patch.
	UpdateAppointmentRow(ctx context.Context, id uuid.UUID, dateTime time.Time, durationMinutes int, typ Type, notes *string, status Status) (*Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, to Status, responseMessage *string) (*Appointment, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error)

	PatientBelongsToPractitioner(ctx context.Context, patientID, practitionerID uuid.UUID) (bool, error)
	GetPatient(ctx context.Context, patientID uuid.UUID) (*Participant, error)

	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error)
	// ListAppointmentDates returns the distinct calendar days in [start, end]
	// on which the given participant has non-cancelled appointments.
	ListAppointmentDates(ctx context.Context, f ListFilter, start, end time.Time) ([]time.Time, error)
}
