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

	"github.com/hackgods/clinic-appointments/internal/apperr"
)

const (
	pgExclusionViolation = "23P01"
	pgCheckViolation     = "23514"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const appointmentColumns = `
	id, doctor_id, patient_id, appointment_date, start_minute, end_minute,
	status, appointment_type, reason, symptoms, notes, doctor_notes, priority,
	meeting_link, is_virtual, cancellation_reason, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end int

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&start,
		&end,
		&a.Status,
		&a.Type,
		&a.Reason,
		&a.Symptoms,
		&a.Notes,
		&a.DoctorNotes,
		&a.Priority,
		&a.MeetingLink,
		&a.IsVirtual,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime, a.EndTime = TimeOfDay(start), TimeOfDay(end)
	a.Date = DateOf(a.Date)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return ErrTimeSlotNotAvailable
		case pgCheckViolation:
			return apperr.Invalid("appointment violates %s", pgErr.ConstraintName)
		}
	}
	return apperr.Unavailable(op, err)
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	if a.Symptoms == nil {
		a.Symptoms = []string{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, appointment_date, start_minute, end_minute,
			status, appointment_type, reason, symptoms, notes, doctor_notes, priority,
			meeting_link, is_virtual, cancellation_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at
	`,
		a.ID, a.DoctorID, a.PatientID, a.Date, int(a.StartTime), int(a.EndTime),
		a.Status, a.Type, a.Reason, a.Symptoms, a.Notes, a.DoctorNotes, a.Priority,
		a.MeetingLink, a.IsVirtual, a.CancellationReason,
	)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapWriteError("insert appointment", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, apperr.Unavailable("get appointment", err)
	}
	return a, err
}

func (r *PgRepository) GetByIDForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND doctor_id = $2
	`, id, doctorID)
	a, err := scanAppointment(row)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, apperr.Unavailable("get appointment for doctor", err)
	}
	return a, err
}

func (r *PgRepository) FindConflictCandidates(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status IN ('PENDING', 'APPROVED')
		  AND id <> $3
		ORDER BY start_minute
	`, doctorID, date, excludeID)
	if err != nil {
		return nil, apperr.Unavailable("find conflict candidates", err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, apperr.Unavailable("scan conflict candidates", err)
	}
	return out, nil
}

func (r *PgRepository) List(ctx context.Context, q Query) ([]Appointment, int, error) {
	where, args := buildWhere(q)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Unavailable("count appointments", err)
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments` + where +
		` ORDER BY appointment_date, start_minute, id`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, apperr.Unavailable("list appointments", err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, apperr.Unavailable("scan appointments", err)
	}
	return out, total, nil
}

func buildWhere(q Query) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.DoctorID != nil {
		add("doctor_id = $%d", *q.DoctorID)
	}
	if q.PatientID != nil {
		add("patient_id = $%d", *q.PatientID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if q.Date != nil {
		add("appointment_date = $%d", DateOf(*q.Date))
	}
	if q.From != nil {
		add("appointment_date >= $%d", DateOf(*q.From))
	}
	if q.To != nil {
		add("appointment_date <= $%d", DateOf(*q.To))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = $3,
		    doctor_notes = $4,
		    cancellation_reason = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Status, a.Notes, a.DoctorNotes, a.CancellationReason)

	if err := row.Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return mapWriteError("update appointment", err)
	}
	return nil
}
