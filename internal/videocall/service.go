package videocall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/scoliocare/clinic-backend/internal/redis"
)

// Service is the coordinator for video-call room state: it owns every
// transition of a room and is the sole authorization gate consulted by the
// signaling relay.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log.With().Str("component", "videocall").Logger(),
	}
}

// CreateRoomForAppointment returns the appointment's room token, creating the
// room in Waiting state on first call. The Redis lock plus the unique
// appointment_id constraint make this idempotent under concurrent requests.
func (s *Service) CreateRoomForAppointment(ctx context.Context, appointmentID uuid.UUID) (string, error) {
	existing, err := s.repo.GetRoomByAppointmentID(ctx, appointmentID)
	if err == nil {
		return existing.RoomID, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return "", fmt.Errorf("load room: %w", err)
	}

	var roomID string

	err = s.locker.WithRoomLock(ctx, appointmentID, func(lockCtx context.Context) error {
		// Re-check inside the critical section.
		existing, err := s.repo.GetRoomByAppointmentID(lockCtx, appointmentID)
		if err == nil {
			roomID = existing.RoomID
			return nil
		}
		if !errors.Is(err, ErrRoomNotFound) {
			return fmt.Errorf("load room: %w", err)
		}

		room, err := s.repo.CreateRoom(lockCtx, appointmentID, newRoomID())
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		roomID = room.RoomID
		return nil
	})

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		// Another request holds the lock; its room will exist momentarily.
		room, rerr := s.repo.GetRoomByAppointmentID(ctx, appointmentID)
		if rerr != nil {
			return "", err
		}
		return room.RoomID, nil
	}
	if err != nil {
		return "", err
	}

	return roomID, nil
}

// CanUserJoinRoom is the sole authorization gate before any join, relay, or
// room mutation: only the appointment's practitioner or patient pass.
// An unknown room is simply not joinable.
func (s *Service) CanUserJoinRoom(ctx context.Context, roomID string, userID uuid.UUID) (bool, error) {
	p, err := s.repo.GetRoomParticipants(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load room participants: %w", err)
	}

	return p.Includes(userID), nil
}

// UserJoinedRoom marks the matching participant present. The
// Waiting -> InProgress transition is recomputed from the post-update row in
// the same transaction, so two concurrent joins cannot miss it.
func (s *Service) UserJoinedRoom(ctx context.Context, roomID string, userID uuid.UUID) error {
	return s.repo.InTx(ctx, func(r Repository) error {
		role, err := participantRole(ctx, r, roomID, userID)
		if err != nil {
			return err
		}

		if err := r.SetJoined(ctx, roomID, role, true); err != nil {
			return fmt.Errorf("set joined: %w", err)
		}

		promoted, err := r.PromoteToInProgress(ctx, roomID)
		if err != nil {
			return fmt.Errorf("promote room: %w", err)
		}
		if promoted {
			s.log.Info().Str("room_id", roomID).Msg("call in progress")
		}
		return nil
	})
}

// UserLeftRoom clears the matching joined flag. Status never changes here: a
// room stays InProgress with one participant absent until an explicit end.
func (s *Service) UserLeftRoom(ctx context.Context, roomID string, userID uuid.UUID) error {
	role, err := participantRole(ctx, s.repo, roomID, userID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		return err
	}

	return s.repo.SetJoined(ctx, roomID, role, false)
}

// EndCall forces the room to its terminal state and clears both joined flags.
func (s *Service) EndCall(ctx context.Context, roomID string) error {
	room, err := s.repo.EndRoom(ctx, roomID)
	if err != nil {
		return err
	}

	s.log.Info().Str("room_id", roomID).Stringer("appointment_id", room.AppointmentID).Msg("call ended")
	return nil
}

// GetRoomByAppointmentID returns the room projection for one of its
// participants.
func (s *Service) GetRoomByAppointmentID(ctx context.Context, appointmentID, userID uuid.UUID) (*RoomDetail, error) {
	detail, err := s.repo.GetRoomDetailByAppointmentID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	p := Participants{PractitionerID: detail.Practitioner.ID, PatientID: detail.Patient.ID}
	if !p.Includes(userID) {
		return nil, ErrNotParticipant
	}

	return detail, nil
}

func participantRole(ctx context.Context, r Repository, roomID string, userID uuid.UUID) (ParticipantRole, error) {
	p, err := r.GetRoomParticipants(ctx, roomID)
	if err != nil {
		return "", err
	}

	switch userID {
	case p.PractitionerID:
		return RolePractitioner, nil
	case p.PatientID:
		return RolePatient, nil
	default:
		return "", ErrNotParticipant
	}
}

// newRoomID generates the external-facing room token.
func newRoomID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("room_%d_%s", time.Now().UnixMilli(), suffix)
}
