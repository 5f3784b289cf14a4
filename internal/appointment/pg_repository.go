package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// method works unchanged inside and outside a transaction.
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
		// Already transaction-bound, run in the same boundary.
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

// Helpers

const appointmentColumns = `id, practitioner_id, patient_id, appointment_date_time, duration_minutes, type, status, notes, response_message, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.DateTime,
		&a.DurationMinutes,
		&a.Type,
		&a.Status,
		&a.Notes,
		&a.ResponseMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant

	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}

	return &p, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.q.QueryRow(ctx, `
		SELECT a.id, a.practitioner_id, a.patient_id, a.appointment_date_time, a.duration_minutes,
		       a.type, a.status, a.notes, a.response_message, a.created_at, a.updated_at,
		       pt.id, pt.first_name, pt.last_name, pt.email,
		       pr.id, pr.first_name, pr.last_name, pr.email
		FROM appointments a
		JOIN patients pt ON pt.id = a.patient_id
		JOIN practitioners pr ON pr.id = a.practitioner_id
		WHERE a.id = $1
	`, id)
	return scanAppointmentDetail(row)
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var pt, pr Participant

	err := row.Scan(
		&d.ID,
		&d.PractitionerID,
		&d.PatientID,
		&d.DateTime,
		&d.DurationMinutes,
		&d.Type,
		&d.Status,
		&d.Notes,
		&d.ResponseMessage,
		&d.CreatedAt,
		&d.UpdatedAt,
		&pt.ID, &pt.FirstName, &pt.LastName, &pt.Email,
		&pr.ID, &pr.FirstName, &pr.LastName, &pr.Email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Patient = &pt
	d.Practitioner = &pr
	return &d, nil
}

func (r *PgRepository) ListBookedIntervals(ctx context.Context, practitionerID uuid.UUID, startingBefore time.Time, excludeID uuid.UUID) ([]Interval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT appointment_date_time, duration_minutes
		FROM appointments
		WHERE practitioner_id = $1
		  AND status <> $2
		  AND id <> $3
		  AND appointment_date_time < $4
	`, practitionerID, StatusCancelled, excludeID, startingBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.DurationMinutes); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, patient_id, appointment_date_time, duration_minutes, type, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PractitionerID, a.PatientID, a.DateTime, a.DurationMinutes, a.Type, a.Status, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentRow(ctx context.Context, id uuid.UUID, dateTime time.Time, durationMinutes int, typ Type, notes *string, status Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date_time = $2,
		    duration_minutes = $3,
		    type = $4,
		    notes = $5,
		    status = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, dateTime, durationMinutes, typ, notes, status)

	return scanAppointment(row)
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, to Status, responseMessage *string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    response_message = COALESCE($3, response_message),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, to, responseMessage)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, notes)

	return scanAppointment(row)
}

func (r *PgRepository) PatientBelongsToPractitioner(ctx context.Context, patientID, practitionerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients
			WHERE id = $1 AND practitioner_id = $2
		)
	`, patientID, practitionerID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) GetPatient(ctx context.Context, patientID uuid.UUID) (*Participant, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, first_name, last_name, email
		FROM patients
		WHERE id = $1
	`, patientID)
	return scanParticipant(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	where, args := listWhere(f)

	order := "ASC"
	if f.SortDesc {
		order = "DESC"
	}

	offset := (f.Page - 1) * f.PageSize
	args = append(args, f.PageSize, offset)

	query := fmt.Sprintf(`
		SELECT a.id, a.practitioner_id, a.patient_id, a.appointment_date_time, a.duration_minutes,
		       a.type, a.status, a.notes, a.response_message, a.created_at, a.updated_at,
		       pt.id, pt.first_name, pt.last_name, pt.email,
		       pr.id, pr.first_name, pr.last_name, pr.email
		FROM appointments a
		JOIN patients pt ON pt.id = a.patient_id
		JOIN practitioners pr ON pr.id = a.practitioner_id
		%s
		ORDER BY a.appointment_date_time %s
		LIMIT $%d OFFSET $%d
	`, where, order, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countWhere, countArgs := listWhere(f)
	var total int
	err = r.q.QueryRow(ctx, "SELECT count(*) FROM appointments a "+countWhere, countArgs...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func listWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.PractitionerID != nil {
		add("a.practitioner_id = $%d", *f.PractitionerID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.From != nil {
		add("a.appointment_date_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.appointment_date_time < $%d", *f.To)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PgRepository) ListAppointmentDates(ctx context.Context, f ListFilter, start, end time.Time) ([]time.Time, error) {
	from := start
	to := end
	f.From = &from
	f.To = &to
	where, args := listWhere(f)

	if where == "" {
		where = "WHERE a.status <> $1"
		args = append(args, StatusCancelled)
	} else {
		args = append(args, StatusCancelled)
		where += fmt.Sprintf(" AND a.status <> $%d", len(args))
	}

	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT date_trunc('day', a.appointment_date_time) AS day
		FROM appointments a
		`+where+`
		ORDER BY day
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return days, nil
}
