package videocall

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(r Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const roomColumns = `id, appointment_id, room_id, status, practitioner_joined, patient_joined, started_at, ended_at, created_at, updated_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room

	err := row.Scan(
		&rm.ID,
		&rm.AppointmentID,
		&rm.RoomID,
		&rm.Status,
		&rm.PractitionerJoined,
		&rm.PatientJoined,
		&rm.StartedAt,
		&rm.EndedAt,
		&rm.CreatedAt,
		&rm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return &rm, nil
}

func (r *PgRepository) GetRoomByRoomID(ctx context.Context, roomID string) (*Room, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM video_call_rooms
		WHERE room_id = $1
	`, roomID)
	return scanRoom(row)
}

func (r *PgRepository) GetRoomByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Room, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM video_call_rooms
		WHERE appointment_id = $1
	`, appointmentID)
	return scanRoom(row)
}

func (r *PgRepository) GetRoomDetailByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*RoomDetail, error) {
	row := r.q.QueryRow(ctx, `
		SELECT v.id, v.appointment_id, v.room_id, v.status, v.practitioner_joined, v.patient_joined,
		       v.started_at, v.ended_at, v.created_at, v.updated_at,
		       a.appointment_date_time,
		       pr.id, pr.first_name, pr.last_name,
		       pt.id, pt.first_name, pt.last_name
		FROM video_call_rooms v
		JOIN appointments a ON a.id = v.appointment_id
		JOIN practitioners pr ON pr.id = a.practitioner_id
		JOIN patients pt ON pt.id = a.patient_id
		WHERE v.appointment_id = $1
	`, appointmentID)

	var d RoomDetail
	err := row.Scan(
		&d.ID,
		&d.AppointmentID,
		&d.RoomID,
		&d.Status,
		&d.PractitionerJoined,
		&d.PatientJoined,
		&d.StartedAt,
		&d.EndedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ScheduledAt,
		&d.Practitioner.ID, &d.Practitioner.FirstName, &d.Practitioner.LastName,
		&d.Patient.ID, &d.Patient.FirstName, &d.Patient.LastName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *PgRepository) CreateRoom(ctx context.Context, appointmentID uuid.UUID, roomID string) (*Room, error) {
	id := uuid.New()

	row := r.q.QueryRow(ctx, `
		INSERT INTO video_call_rooms (id, appointment_id, room_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+roomColumns+`
	`, id, appointmentID, roomID, StatusWaiting)

	room, err := scanRoom(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return room, nil
}

func (r *PgRepository) GetRoomParticipants(ctx context.Context, roomID string) (Participants, error) {
	var p Participants
	err := r.q.QueryRow(ctx, `
		SELECT a.practitioner_id, a.patient_id
		FROM video_call_rooms v
		JOIN appointments a ON a.id = v.appointment_id
		WHERE v.room_id = $1
	`, roomID).Scan(&p.PractitionerID, &p.PatientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Participants{}, ErrRoomNotFound
		}
		return Participants{}, err
	}
	return p, nil
}

func (r *PgRepository) SetJoined(ctx context.Context, roomID string, role ParticipantRole, joined bool) error {
	column := "practitioner_joined"
	if role == RolePatient {
		column = "patient_joined"
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE video_call_rooms
		SET `+column+` = $2,
		    updated_at = now()
		WHERE room_id = $1
	`, roomID, joined)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *PgRepository) PromoteToInProgress(ctx context.Context, roomID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE video_call_rooms
		SET status = $2,
		    started_at = now(),
		    updated_at = now()
		WHERE room_id = $1
		  AND status = $3
		  AND practitioner_joined
		  AND patient_joined
	`, roomID, StatusInProgress, StatusWaiting)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) EndRoom(ctx context.Context, roomID string) (*Room, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE video_call_rooms
		SET status = $2,
		    ended_at = now(),
		    practitioner_joined = false,
		    patient_joined = false,
		    updated_at = now()
		WHERE room_id = $1
		RETURNING `+roomColumns+`
	`, roomID, StatusEnded)

	return scanRoom(row)
}
