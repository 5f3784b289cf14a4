package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSlotConflict    = errors.New("time slot conflicts with another appointment")
	ErrTerminalState   = errors.New("appointment is in a terminal state")
	ErrNotPending      = errors.New("appointment is not awaiting patient confirmation")
	ErrNotScheduled    = errors.New("appointment is not in scheduled state")
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
)

// RoomCreator is the slice of the video-call coordinator the scheduler needs:
// remote consultations get their room as soon as they are booked.
type RoomCreator interface {
	CreateRoomForAppointment(ctx context.Context, appointmentID uuid.UUID) (string, error)
}

// Notifier delivers appointment emails. Failures are logged and swallowed,
// never surfaced to the caller.
type Notifier interface {
	AppointmentUpdated(ctx context.Context, patient Participant, appt *Appointment) error
}

type Service struct {
	repo     Repository
	rooms    RoomCreator
	notifier Notifier
	log      zerolog.Logger
}

func NewService(repo Repository, rooms RoomCreator, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		rooms:    rooms,
		notifier: notifier,
		log:      log.With().Str("component", "appointment").Logger(),
	}
}

// isTimeSlotTaken runs the conflict detector against the practitioner's
// non-cancelled intervals. excludeID carves out the appointment being
// rescheduled so it never conflicts with itself; pass uuid.Nil otherwise.
func isTimeSlotTaken(ctx context.Context, repo Repository, practitionerID uuid.UUID, start time.Time, durationMinutes int, excludeID uuid.UUID) (bool, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	candidates, err := repo.ListBookedIntervals(ctx, practitionerID, end, excludeID)
	if err != nil {
		return false, fmt.Errorf("list booked intervals: %w", err)
	}

	return HasConflict(start, durationMinutes, candidates), nil
}

// statusAfterEdit is the status side effect of a practitioner edit: any change
// to a Scheduled appointment invalidates the patient's prior confirmation and
// sends it back for a fresh response. Other states keep their status.
func statusAfterEdit(current Status) Status {
	if current == StatusScheduled {
		return StatusPending
	}
	return current
}

// CheckAvailability reports whether the proposed slot is free on the
// practitioner's calendar. Read-only, nothing is reserved.
func (s *Service) CheckAvailability(ctx context.Context, practitionerID uuid.UUID, dateTime time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, ErrInvalidDuration
	}

	taken, err := isTimeSlotTaken(ctx, s.repo, practitionerID, dateTime, durationMinutes, uuid.Nil)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

type CreateInput struct {
	PatientID       uuid.UUID
	DateTime        time.Time
	DurationMinutes int
	Type            Type
	Notes           *string
}

// CreateAppointment books a slot for one of the practitioner's own patients.
// The conflict check and the insert share one transaction so two concurrent
// requests for the same slot cannot both pass the check.
func (s *Service) CreateAppointment(ctx context.Context, practitionerID uuid.UUID, in CreateInput) (*Appointment, error) {
	if in.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	var created *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		owned, err := r.PatientBelongsToPractitioner(ctx, in.PatientID, practitionerID)
		if err != nil {
			return fmt.Errorf("check patient ownership: %w", err)
		}
		if !owned {
			return ErrPatientNotFound
		}

		taken, err := isTimeSlotTaken(ctx, r, practitionerID, in.DateTime, in.DurationMinutes, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}

		created, err = r.CreateAppointment(ctx, &Appointment{
			PractitionerID:  practitionerID,
			PatientID:       in.PatientID,
			DateTime:        in.DateTime,
			DurationMinutes: in.DurationMinutes,
			Type:            in.Type,
			Status:          StatusPending,
			Notes:           in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Remote consultations get their room up front. Room creation failing
	// must not undo the booking.
	if created.Type == TypeRemoteConsultation && s.rooms != nil {
		if _, err := s.rooms.CreateRoomForAppointment(ctx, created.ID); err != nil {
			s.log.Warn().Err(err).Stringer("appointment_id", created.ID).Msg("failed to create video room for remote appointment")
		}
	}

	return created, nil
}

// UpdateAppointment applies a partial edit on behalf of the owning
// practitioner. Moving the interval re-runs the conflict detector with the
// appointment's own id excluded, so an idempotent reschedule to the same slot
// succeeds.
func (s *Service) UpdateAppointment(ctx context.Context, practitionerID, appointmentID uuid.UUID, patch UpdatePatch) (*Appointment, error) {
	if patch.DurationMinutes != nil && *patch.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	var updated *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PractitionerID != practitionerID {
			return ErrAppointmentNotFound
		}
		if appt.Status.Terminal() {
			return ErrTerminalState
		}

		newStart := appt.DateTime
		if patch.DateTime != nil {
			newStart = *patch.DateTime
		}
		newDuration := appt.DurationMinutes
		if patch.DurationMinutes != nil {
			newDuration = *patch.DurationMinutes
		}
		newType := appt.Type
		if patch.Type != nil {
			newType = *patch.Type
		}
		newNotes := appt.Notes
		if patch.Notes != nil {
			newNotes = patch.Notes
		}

		if patch.TimeChanged() {
			taken, err := isTimeSlotTaken(ctx, r, practitionerID, newStart, newDuration, appointmentID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotConflict
			}
		}

		updated, err = r.UpdateAppointmentRow(ctx, appointmentID, newStart, newDuration, newType, newNotes, statusAfterEdit(appt.Status))
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyPatientUpdated(ctx, updated)

	return updated, nil
}

// RespondToAppointment records the patient's accept or decline of a pending
// appointment.
func (s *Service) RespondToAppointment(ctx context.Context, patientID, appointmentID uuid.UUID, accepted bool, message *string) (*Appointment, error) {
	var responded *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PatientID != patientID {
			return ErrAppointmentNotFound
		}
		if appt.Status != StatusPending {
			return ErrNotPending
		}

		to := StatusCancelled
		if accepted {
			to = StatusScheduled
		}

		responded, err = r.SetStatus(ctx, appointmentID, to, message)
		if err != nil {
			return fmt.Errorf("respond to appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return responded, nil
}

// CancelAppointment is available to either participant while the appointment
// is not yet terminal.
func (s *Service) CancelAppointment(ctx context.Context, userID, appointmentID uuid.UUID) (*Appointment, error) {
	var cancelled *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PractitionerID != userID && appt.PatientID != userID {
			return ErrAppointmentNotFound
		}
		if appt.Status.Terminal() {
			return ErrTerminalState
		}

		cancelled, err = r.SetStatus(ctx, appointmentID, StatusCancelled, nil)
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// CompleteAppointment marks a scheduled appointment as held.
func (s *Service) CompleteAppointment(ctx context.Context, practitionerID, appointmentID uuid.UUID) (*Appointment, error) {
	return s.closeOut(ctx, practitionerID, appointmentID, StatusCompleted)
}

// MarkNoShow records that the patient did not attend.
func (s *Service) MarkNoShow(ctx context.Context, practitionerID, appointmentID uuid.UUID) (*Appointment, error) {
	return s.closeOut(ctx, practitionerID, appointmentID, StatusNoShow)
}

func (s *Service) closeOut(ctx context.Context, practitionerID, appointmentID uuid.UUID, to Status) (*Appointment, error) {
	var closed *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PractitionerID != practitionerID {
			return ErrAppointmentNotFound
		}
		if appt.Status != StatusScheduled {
			return ErrNotScheduled
		}

		closed, err = r.SetStatus(ctx, appointmentID, to, nil)
		if err != nil {
			return fmt.Errorf("close out appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return closed, nil
}

// UpdateNotes replaces the clinical notes without touching the status or the
// patient's confirmation.
func (s *Service) UpdateNotes(ctx context.Context, practitionerID, appointmentID uuid.UUID, notes string) (*Appointment, error) {
	var updated *Appointment

	err := s.repo.InTx(ctx, func(r Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.PractitionerID != practitionerID {
			return ErrAppointmentNotFound
		}
		if appt.Status.Terminal() {
			return ErrTerminalState
		}

		updated, err = r.UpdateNotes(ctx, appointmentID, notes)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetAppointments returns a role-scoped page; the API layer fills the filter
// from the caller's identity.
func (s *Service) GetAppointments(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	data, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	totalPages := (total + f.PageSize - 1) / f.PageSize

	return &Page{
		Data:        data,
		TotalCount:  total,
		CurrentPage: f.Page,
		PageSize:    f.PageSize,
		TotalPages:  totalPages,
	}, nil
}

// GetAppointmentDates returns the distinct days with bookings in the range.
func (s *Service) GetAppointmentDates(ctx context.Context, f ListFilter, start, end time.Time) ([]time.Time, error) {
	return s.repo.ListAppointmentDates(ctx, f, start, end)
}

// GetAppointmentDetails loads one appointment; only its participants may see
// it.
func (s *Service) GetAppointmentDetails(ctx context.Context, callerID, appointmentID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if detail.PractitionerID != callerID && detail.PatientID != callerID {
		return nil, ErrAppointmentNotFound
	}
	return detail, nil
}

func (s *Service) notifyPatientUpdated(ctx context.Context, appt *Appointment) {
	if s.notifier == nil {
		return
	}

	// Outbound email is outside the request's transaction and must never
	// fail the update.
	go func(ctx context.Context) {
		patient, err := s.repo.GetPatient(ctx, appt.PatientID)
		if err != nil {
			s.log.Warn().Err(err).Stringer("patient_id", appt.PatientID).Msg("load patient for update notification")
			return
		}
		if err := s.notifier.AppointmentUpdated(ctx, *patient, appt); err != nil {
			s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("send appointment update notification")
		}
	}(context.WithoutCancel(ctx))
}
