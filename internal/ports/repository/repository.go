package repository

import (
	"context"
	"errors"
	"time"

	"access.service/internal/core/model"
)

// ErrDuplicateBinding is returned when a fingerprint insert violates the
// (device_id, slot_id) uniqueness constraint.
var ErrDuplicateBinding = errors.New("fingerprint slot already bound")

// Repository contract. Implementations must be safe for concurrent use.
type Repository interface {
	// WithTx runs fn against a transactional copy of the repository. A nil
	// return commits; any error rolls back.
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Devices
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
	GetDevice(ctx context.Context, deviceID string) (*model.Device, error)
	RecordHeartbeat(ctx context.Context, deviceID string, seenAt time.Time) error
	MarkOffline(ctx context.Context, deviceID string) error
	UpdateDoorState(ctx context.Context, deviceID string, state model.DoorState) error

	// Fingerprint bindings
	CreateFingerprint(ctx context.Context, deviceID string, slotID int, employeeID int64) (int64, error)
	DeleteFingerprint(ctx context.Context, deviceID string, slotID int) (bool, error)
	FindFingerprint(ctx context.Context, deviceID string, slotID int) (*model.Fingerprint, error)
	ListFingerprints(ctx context.Context, deviceID string) ([]model.Fingerprint, error)
	BoundSlots(ctx context.Context, deviceID string) ([]int, error)

	// Daily attendance sessions
	FindSession(ctx context.Context, employeeID int64, workDate time.Time) (*model.AttendanceSession, error)
	CreateSession(ctx context.Context, employeeID int64, workDate, checkIn time.Time) (int64, error)
	UpdateSessionCheckOut(ctx context.Context, id int64, checkOut time.Time, minutes int) error

	// Device event log (append-only)
	AppendLog(ctx context.Context, entry model.DeviceLog) (int64, error)
	RecentLogs(ctx context.Context, deviceID string, limit int) ([]model.DeviceLog, error)
	LatestEnrollResult(ctx context.Context, deviceID string, slotID int) (*model.DeviceLog, error)
}
