package repository

import (
	"context"
	"database/sql"

	"access.service/internal/core/model"
)

// AppendLog writes one audit row. The log is append-only; nothing in the
// service mutates or deletes rows.
func (r *AccessRepository) AppendLog(ctx context.Context, entry model.DeviceLog) (int64, error) {
	var id int64
	query := `INSERT INTO device_logs (device_id, event_type, slot_id, employee_id, success, message, ts)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := r.q.QueryRowContext(ctx, query,
		entry.DeviceID, entry.EventType, entry.SlotID, entry.EmployeeID,
		entry.Success, entry.Message, entry.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// RecentLogs returns the newest audit rows for a device.
func (r *AccessRepository) RecentLogs(ctx context.Context, deviceID string, limit int) ([]model.DeviceLog, error) {
	query := `SELECT id, device_id, event_type, slot_id, employee_id, success, message, ts
	          FROM device_logs
	          WHERE device_id = $1
	          ORDER BY ts DESC
	          LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogs(rows)
}

// LatestEnrollResult returns the newest enroll_resp row for a device+slot,
// used by the HTTP layer to poll for an asynchronous enroll outcome.
func (r *AccessRepository) LatestEnrollResult(ctx context.Context, deviceID string, slotID int) (*model.DeviceLog, error) {
	query := `SELECT id, device_id, event_type, slot_id, employee_id, success, message, ts
	          FROM device_logs
	          WHERE device_id = $1 AND slot_id = $2 AND event_type = $3
	          ORDER BY ts DESC
	          LIMIT 1`

	row := r.q.QueryRowContext(ctx, query, deviceID, slotID, model.EventEnrollResp)

	entry, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func scanLog(row *sql.Row) (*model.DeviceLog, error) {
	entry := &model.DeviceLog{}
	var slotID sql.NullInt64
	var employeeID sql.NullInt64
	var message sql.NullString

	err := row.Scan(
		&entry.ID, &entry.DeviceID, &entry.EventType,
		&slotID, &employeeID, &entry.Success, &message, &entry.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	applyNullables(entry, slotID, employeeID, message)
	return entry, nil
}

func scanLogs(rows *sql.Rows) ([]model.DeviceLog, error) {
	var logs []model.DeviceLog
	for rows.Next() {
		var entry model.DeviceLog
		var slotID sql.NullInt64
		var employeeID sql.NullInt64
		var message sql.NullString

		if err := rows.Scan(
			&entry.ID, &entry.DeviceID, &entry.EventType,
			&slotID, &employeeID, &entry.Success, &message, &entry.Timestamp,
		); err != nil {
			return nil, err
		}

		applyNullables(&entry, slotID, employeeID, message)
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

func applyNullables(entry *model.DeviceLog, slotID, employeeID sql.NullInt64, message sql.NullString) {
	if slotID.Valid {
		s := int(slotID.Int64)
		entry.SlotID = &s
	}
	if employeeID.Valid {
		e := employeeID.Int64
		entry.EmployeeID = &e
	}
	if message.Valid {
		entry.Message = message.String
	}
}
