package followup

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
	"github.com/hackgods/clinic-appointments/internal/appointment"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

var _ Repository = (*PgRepository)(nil)

const followUpColumns = `
	id, original_appointment_id, doctor_id, patient_id, recommended_date,
	reason, status, notes, urgency_level, created_at, updated_at,
	completed_at, completed_by, cancellation_reason`

func scanFollowUp(row pgx.Row) (*FollowUp, error) {
	var f FollowUp
	err := row.Scan(
		&f.ID,
		&f.OriginalAppointmentID,
		&f.DoctorID,
		&f.PatientID,
		&f.RecommendedDate,
		&f.Reason,
		&f.Status,
		&f.Notes,
		&f.UrgencyLevel,
		&f.CreatedAt,
		&f.UpdatedAt,
		&f.CompletedAt,
		&f.CompletedBy,
		&f.CancellationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFollowUpNotFound
		}
		return nil, err
	}
	f.RecommendedDate = appointment.DateOf(f.RecommendedDate)
	return &f, nil
}

func collectFollowUps(rows pgx.Rows) ([]FollowUp, error) {
	defer rows.Close()

	var out []FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicateFollowUp
		case pgForeignKeyViolation:
			return ErrOriginalAppointmentNotFound
		case pgCheckViolation:
			return apperr.Invalid("follow-up violates %s", pgErr.ConstraintName)
		}
	}
	return apperr.Unavailable(op, err)
}

func (r *PgRepository) Create(ctx context.Context, f *FollowUp) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO follow_ups (
			id, original_appointment_id, doctor_id, patient_id, recommended_date,
			reason, status, notes, urgency_level
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at
	`,
		f.ID, f.OriginalAppointmentID, f.DoctorID, f.PatientID, f.RecommendedDate,
		f.Reason, f.Status, f.Notes, f.UrgencyLevel,
	)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return mapWriteError("insert follow-up", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+followUpColumns+` FROM follow_ups WHERE id = $1`, id)
	f, err := scanFollowUp(row)
	if err != nil && !errors.Is(err, ErrFollowUpNotFound) {
		return nil, apperr.Unavailable("get follow-up", err)
	}
	return f, err
}

func (r *PgRepository) ExistsFor(ctx context.Context, appointmentID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM follow_ups
			WHERE original_appointment_id = $1 AND recommended_date = $2 AND id <> $3
		)
	`, appointmentID, date, excludeID).Scan(&exists)
	if err != nil {
		return false, apperr.Unavailable("check duplicate follow-up", err)
	}
	return exists, nil
}

func (r *PgRepository) List(ctx context.Context, q Query) ([]FollowUp, int, error) {
	where, args := buildWhere(q)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM follow_ups`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Unavailable("count follow-ups", err)
	}

	sql := `SELECT ` + followUpColumns + ` FROM follow_ups` + where +
		` ORDER BY recommended_date, urgency_level DESC, id`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, apperr.Unavailable("list follow-ups", err)
	}
	out, err := collectFollowUps(rows)
	if err != nil {
		return nil, 0, apperr.Unavailable("scan follow-ups", err)
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
	if q.From != nil {
		add("recommended_date >= $%d", appointment.DateOf(*q.From))
	}
	if q.To != nil {
		add("recommended_date <= $%d", appointment.DateOf(*q.To))
	}
	if q.MinUrgency > 0 {
		add("urgency_level >= $%d", q.MinUrgency)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) FindOverdue(ctx context.Context, today time.Time) ([]FollowUp, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+followUpColumns+`
		FROM follow_ups
		WHERE status = 'PENDING' AND recommended_date < $1
		ORDER BY recommended_date, id
	`, appointment.DateOf(today))
	if err != nil {
		return nil, apperr.Unavailable("find overdue follow-ups", err)
	}
	out, err := collectFollowUps(rows)
	if err != nil {
		return nil, apperr.Unavailable("scan overdue follow-ups", err)
	}
	return out, nil
}

func (r *PgRepository) MarkOverdue(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_ups
		SET status = 'OVERDUE', updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, at)
	if err != nil {
		return false, apperr.Unavailable("mark follow-up overdue", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Update(ctx context.Context, f *FollowUp, expected Status) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE follow_ups
		SET status = $2,
		    notes = $3,
		    recommended_date = $4,
		    completed_at = $5,
		    completed_by = $6,
		    cancellation_reason = $7,
		    updated_at = now()
		WHERE id = $1 AND status = $8
		RETURNING updated_at
	`, f.ID, f.Status, f.Notes, f.RecommendedDate, f.CompletedAt, f.CompletedBy, f.CancellationReason, expected)

	if err := row.Scan(&f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missedUpdate(ctx, f.ID)
		}
		return mapWriteError("update follow-up", err)
	}
	return nil
}

// missedUpdate tells a vanished row from one whose status moved on.
func (r *PgRepository) missedUpdate(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM follow_ups WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return apperr.Unavailable("check follow-up", err)
	}
	if !exists {
		return ErrFollowUpNotFound
	}
	return ErrConcurrentUpdate
}
