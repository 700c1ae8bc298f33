package repository

import (
	"context"
	"database/sql"
	"errors"

	"access.service/internal/core/model"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// CreateFingerprint inserts a (device_id, slot_id) -> employee binding.
// A uniqueness violation comes back as ErrDuplicateBinding so the caller can
// report it as a failed enroll instead of a crash.
func (r *AccessRepository) CreateFingerprint(ctx context.Context, deviceID string, slotID int, employeeID int64) (int64, error) {
	var id int64
	query := `INSERT INTO fingerprints (device_id, slot_id, employee_id, enrolled_at)
	          VALUES ($1, $2, $3, NOW()) RETURNING id`

	err := r.q.QueryRowContext(ctx, query, deviceID, slotID, employeeID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrDuplicateBinding
		}
		return 0, err
	}

	return id, nil
}

// DeleteFingerprint removes a binding; the bool reports whether a row existed.
func (r *AccessRepository) DeleteFingerprint(ctx context.Context, deviceID string, slotID int) (bool, error) {
	query := `DELETE FROM fingerprints WHERE device_id = $1 AND slot_id = $2`

	res, err := r.q.ExecContext(ctx, query, deviceID, slotID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindFingerprint resolves a (device, slot) pair to its binding, or nil.
func (r *AccessRepository) FindFingerprint(ctx context.Context, deviceID string, slotID int) (*model.Fingerprint, error) {
	query := `SELECT id, device_id, slot_id, employee_id, enrolled_at
	          FROM fingerprints WHERE device_id = $1 AND slot_id = $2`

	fp := &model.Fingerprint{}
	err := r.q.QueryRowContext(ctx, query, deviceID, slotID).Scan(
		&fp.ID, &fp.DeviceID, &fp.SlotID, &fp.EmployeeID, &fp.EnrolledAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return fp, nil
}

// ListFingerprints returns all bindings on a device, slot-ordered.
func (r *AccessRepository) ListFingerprints(ctx context.Context, deviceID string) ([]model.Fingerprint, error) {
	query := `SELECT id, device_id, slot_id, employee_id, enrolled_at
	          FROM fingerprints WHERE device_id = $1 ORDER BY slot_id`

	rows, err := r.q.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fps []model.Fingerprint
	for rows.Next() {
		var fp model.Fingerprint
		if err := rows.Scan(&fp.ID, &fp.DeviceID, &fp.SlotID, &fp.EmployeeID, &fp.EnrolledAt); err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}

	return fps, rows.Err()
}

// BoundSlots returns the occupied slot ids on a device, ascending, for the
// slot allocator.
func (r *AccessRepository) BoundSlots(ctx context.Context, deviceID string) ([]int, error) {
	query := `SELECT slot_id FROM fingerprints WHERE device_id = $1 ORDER BY slot_id`

	rows, err := r.q.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}

	return slots, rows.Err()
}
