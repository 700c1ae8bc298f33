package repository

import (
	"context"
	"database/sql"
	"time"

	"access.service/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FindSession looks up the single session row for (employee, calendar day).
func (r *AccessRepository) FindSession(ctx context.Context, employeeID int64, workDate time.Time) (*model.AttendanceSession, error) {
	query := `SELECT id, employee_id, work_date, check_in, check_out, session_minutes
	          FROM daily_attendance
	          WHERE employee_id = $1 AND work_date = $2`

	s := &model.AttendanceSession{}
	err := r.q.QueryRowContext(ctx, query, employeeID, workDate).Scan(
		&s.ID, &s.EmployeeID, &s.WorkDate, &s.CheckIn, &s.CheckOut, &s.SessionMinutes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

// CreateSession opens the day's session with check_out mirroring check_in.
func (r *AccessRepository) CreateSession(ctx context.Context, employeeID int64, workDate, checkIn time.Time) (int64, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("app.employeeId", employeeID))

	var id int64
	query := `INSERT INTO daily_attendance (employee_id, work_date, check_in, check_out, session_minutes)
	          VALUES ($1, $2, $3, $3, 0) RETURNING id`

	err := r.q.QueryRowContext(ctx, query, employeeID, workDate, checkIn).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// UpdateSessionCheckOut pushes the day's check_out forward.
func (r *AccessRepository) UpdateSessionCheckOut(ctx context.Context, id int64, checkOut time.Time, minutes int) error {
	query := `UPDATE daily_attendance
	          SET check_out = $1,
	              session_minutes = $2
	          WHERE id = $3`

	_, err := r.q.ExecContext(ctx, query, checkOut, minutes, id)
	return err
}
