package repository

import (
	"context"
	"database/sql"
	"time"

	"access.service/internal/core/model"
)

// DeviceExists checks membership against provisioned devices.
func (r *AccessRepository) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM devices WHERE device_id = $1)`

	err := r.q.QueryRowContext(ctx, query, deviceID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// GetDevice fetches the stored device row, including the raw connectivity
// flag. Callers needing the effective status go through core.DeviceStatus,
// which applies the offline TTL.
func (r *AccessRepository) GetDevice(ctx context.Context, deviceID string) (*model.Device, error) {
	query := `SELECT device_id, connection_status, door_state, last_seen
	          FROM devices WHERE device_id = $1`

	d := &model.Device{}
	var lastSeen sql.NullTime

	err := r.q.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID, &d.ConnectionStatus, &d.DoorState, &lastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		d.LastSeen = &lastSeen.Time
	}
	return d, nil
}

// RecordHeartbeat marks the device online and stamps last_seen.
func (r *AccessRepository) RecordHeartbeat(ctx context.Context, deviceID string, seenAt time.Time) error {
	query := `UPDATE devices
	          SET connection_status = $1,
	              last_seen = $2
	          WHERE device_id = $3`

	_, err := r.q.ExecContext(ctx, query, model.StatusOnline, seenAt, deviceID)
	return err
}

// MarkOffline corrects the stored connectivity flag after a stale read.
func (r *AccessRepository) MarkOffline(ctx context.Context, deviceID string) error {
	query := `UPDATE devices SET connection_status = $1 WHERE device_id = $2`

	_, err := r.q.ExecContext(ctx, query, model.StatusOffline, deviceID)
	return err
}

// UpdateDoorState stores the mapped door state reported by the device.
func (r *AccessRepository) UpdateDoorState(ctx context.Context, deviceID string, state model.DoorState) error {
	query := `UPDATE devices SET door_state = $1 WHERE device_id = $2`

	_, err := r.q.ExecContext(ctx, query, state, deviceID)
	return err
}
