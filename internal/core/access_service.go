package core

import (
	"fmt"
	"time"

	"context"

	"access.service/internal/core/model"
	"access.service/internal/ports/messaging"
	"access.service/internal/ports/repository"
	"github.com/rs/zerolog/log"
)

// AccessService is the main application service behind the HTTP layer. It
// issues device commands, reserves enroll correlation state, and reads
// computed device status.
type AccessService struct {
	repo     repository.Repository
	commands messaging.CommandPublisher
	tracker  *EnrollTracker
	emails   messaging.EmailProducer

	maxSlots   int
	offlineTTL time.Duration

	now func() time.Time // swapped out in tests
}

// NewAccessService wires up the repository, the command publisher, the shared
// enroll tracker and the email producer.
func NewAccessService(
	repo repository.Repository,
	commands messaging.CommandPublisher,
	tracker *EnrollTracker,
	emails messaging.EmailProducer,
	maxSlots int,
	offlineTTL time.Duration,
) *AccessService {
	return &AccessService{
		repo:       repo,
		commands:   commands,
		tracker:    tracker,
		emails:     emails,
		maxSlots:   maxSlots,
		offlineTTL: offlineTTL,
		now:        time.Now,
	}
}

// EnrollFingerprint assigns the lowest free slot, reserves the pending-enroll
// context and sends the enroll command. The outcome is asynchronous; callers
// poll EnrollResult for the device's terminal response.
func (s *AccessService) EnrollFingerprint(ctx context.Context, deviceID string, employeeID int64) (int, error) {
	exists, err := s.repo.DeviceExists(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to check device: %w", err)
	}
	if !exists {
		return 0, ErrDeviceNotFound
	}

	slot, err := s.NextAvailableSlot(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	if err := s.tracker.Begin(deviceID, employeeID, slot); err != nil {
		return 0, err
	}

	if err := s.commands.SendCommand(ctx, deviceID, messaging.CmdEnrollFingerprint, &slot); err != nil {
		// The device never saw the command, so the reservation is moot.
		s.tracker.Cancel(deviceID)
		return 0, fmt.Errorf("failed to publish enroll command: %w", err)
	}

	s.audit(ctx, model.DeviceLog{
		DeviceID:   deviceID,
		EventType:  model.EventEnrollReq,
		SlotID:     &slot,
		EmployeeID: &employeeID,
		Success:    true,
		Message:    fmt.Sprintf("Server sent enroll command for slot %d", slot),
		Timestamp:  s.now(),
	})

	return slot, nil
}

// DeleteFingerprint sends the delete command and eagerly removes the server
// binding. A failed on-device delete shows up later as a delete_resp audit
// row; the operator re-issues the delete rather than the server re-creating
// the binding.
func (s *AccessService) DeleteFingerprint(ctx context.Context, deviceID string, slotID int) error {
	fp, err := s.repo.FindFingerprint(ctx, deviceID, slotID)
	if err != nil {
		return fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	if fp == nil {
		return ErrFingerprintNotFound
	}

	if err := s.commands.SendCommand(ctx, deviceID, messaging.CmdDeleteFingerprint, &slotID); err != nil {
		return fmt.Errorf("failed to publish delete command: %w", err)
	}

	if _, err := s.repo.DeleteFingerprint(ctx, deviceID, slotID); err != nil {
		return fmt.Errorf("failed to delete fingerprint binding: %w", err)
	}

	s.audit(ctx, model.DeviceLog{
		DeviceID:   deviceID,
		EventType:  model.EventDeleteReq,
		SlotID:     &slotID,
		EmployeeID: &fp.EmployeeID,
		Success:    true,
		Message:    "Server processed delete request",
		Timestamp:  s.now(),
	})

	return nil
}

// OpenDoor sends a remote unlock command.
func (s *AccessService) OpenDoor(ctx context.Context, deviceID string) error {
	exists, err := s.repo.DeviceExists(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to check device: %w", err)
	}
	if !exists {
		return ErrDeviceNotFound
	}

	if err := s.commands.SendCommand(ctx, deviceID, messaging.CmdDoorUnlock, nil); err != nil {
		return fmt.Errorf("failed to publish unlock command: %w", err)
	}

	s.audit(ctx, model.DeviceLog{
		DeviceID:  deviceID,
		EventType: model.EventDoorOpenReq,
		Success:   true,
		Message:   "Remote door unlock requested via API",
		Timestamp: s.now(),
	})

	return nil
}

// DeviceStatus returns the computed status of a device. The stored
// connectivity flag is forced to offline when last_seen is absent or older
// than the offline TTL, and the stored flag is corrected as a side effect so
// no separate sweeper process is needed.
func (s *AccessService) DeviceStatus(ctx context.Context, deviceID string) (*model.Device, error) {
	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}

	stale := device.LastSeen == nil || s.now().Sub(*device.LastSeen) > s.offlineTTL
	if stale && device.ConnectionStatus != model.StatusOffline {
		if err := s.repo.MarkOffline(ctx, deviceID); err != nil {
			// The read still reports offline; only the stored flag stays stale.
			log.Ctx(ctx).Warn().Err(err).Str("device_id", deviceID).Msg("Failed to correct stale connection status")
		}
	}
	if stale {
		device.ConnectionStatus = model.StatusOffline
	}

	return device, nil
}

// ListFingerprints returns the device's slot bindings.
func (s *AccessService) ListFingerprints(ctx context.Context, deviceID string) ([]model.Fingerprint, error) {
	exists, err := s.repo.DeviceExists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDeviceNotFound
	}
	return s.repo.ListFingerprints(ctx, deviceID)
}

// RecentLogs returns the newest audit rows for a device.
func (s *AccessService) RecentLogs(ctx context.Context, deviceID string, limit int) ([]model.DeviceLog, error) {
	exists, err := s.repo.DeviceExists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDeviceNotFound
	}

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.RecentLogs(ctx, deviceID, limit)
}

// EnrollResult returns the latest terminal enroll response for a device+slot,
// or nil while the device has not answered yet.
func (s *AccessService) EnrollResult(ctx context.Context, deviceID string, slotID int) (*model.DeviceLog, error) {
	return s.repo.LatestEnrollResult(ctx, deviceID, slotID)
}

// audit appends a log row; audit failures are logged, never propagated, so a
// slow log table cannot fail a command that was already sent.
func (s *AccessService) audit(ctx context.Context, entry model.DeviceLog) {
	if _, err := s.repo.AppendLog(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("device_id", entry.DeviceID).
			Str("event_type", entry.EventType).
			Msg("Failed to append audit log")
	}
}
