package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"access.service/internal/core"
	"access.service/internal/core/model"
	"access.service/internal/ports/messaging"
	"access.service/internal/ports/repository"
	"access.service/pkg/logger"
	"access.service/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes inbound device messages to per-category handlers. One
// malformed or failed message never prevents processing of the next; every
// handler error is logged and the message dropped.
type Dispatcher struct {
	repo    repository.Repository
	service *core.AccessService
	tracker *core.EnrollTracker

	handlers map[string]handlerFunc
	locks    keyedMutex

	now func() time.Time // swapped out in tests
}

type handlerFunc func(ctx context.Context, deviceID string, payload []byte) error

// New builds the dispatch table. The tracker must be the same instance the
// AccessService reserves pending enrollments on.
func New(repo repository.Repository, service *core.AccessService, tracker *core.EnrollTracker) *Dispatcher {
	d := &Dispatcher{
		repo:    repo,
		service: service,
		tracker: tracker,
		now:     time.Now,
	}
	d.handlers = map[string]handlerFunc{
		messaging.CategoryDoor:        d.handleDoor,
		messaging.CategoryFingerprint: d.handleFingerprint,
		messaging.CategoryStatus:      d.handleStatus,
		messaging.CategoryCommand:     d.handleCommandEcho,
	}
	return d
}

// HandleMessage implements pkg/mqtt.MessageHandler. Mutations for a device
// are serialized on a per-device lock so a heartbeat and a door update, or
// two enroll responses, cannot interleave destructively.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) error {
	ctx, span := telemetry.StartSpanFromMQTTMessage(context.Background(), topic)
	defer span.End()
	ctx = logger.EnrichContextWithLogger(ctx)

	deviceID, category, err := messaging.ParseTopic(topic)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Dropping message with malformed topic")
		return nil
	}

	handler, ok := d.handlers[category]
	if !ok {
		log.Ctx(ctx).Warn().Str("category", category).Str("device_id", deviceID).Msg("Dropping message with unknown category")
		return nil
	}

	unlock := d.locks.lock(deviceID)
	defer unlock()

	if err := handler(ctx, deviceID, payload); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("category", category).
			Str("device_id", deviceID).
			Msg("Failed to process device message")
	}
	return nil
}

// handleDoor maps the reported door string to the stored enum and appends a
// door_event audit row. Unrecognized states are logged and ignored.
func (d *Dispatcher) handleDoor(ctx context.Context, deviceID string, payload []byte) error {
	ev, err := messaging.DecodeDoorEvent(payload)
	if err != nil {
		return err
	}

	state, ok := mapDoorState(ev.State)
	if !ok {
		log.Ctx(ctx).Warn().Str("device_id", deviceID).Str("state", ev.State).Msg("Ignoring unrecognized door state")
		return nil
	}

	if err := d.repo.UpdateDoorState(ctx, deviceID, state); err != nil {
		return fmt.Errorf("failed to update door state: %w", err)
	}

	d.audit(ctx, model.DeviceLog{
		DeviceID:  deviceID,
		EventType: model.EventDoor,
		Success:   true,
		Message:   fmt.Sprintf("Door state changed to: %s", state),
		Timestamp: ev.TS.OrNow(d.now()),
	})
	return nil
}

func mapDoorState(raw string) (model.DoorState, bool) {
	switch raw {
	case "locked":
		return model.DoorLocked, true
	case "unlocked_wait_open":
		return model.DoorWaitingToOpen, true
	case "open":
		return model.DoorOpen, true
	default:
		return "", false
	}
}

func (d *Dispatcher) handleFingerprint(ctx context.Context, deviceID string, payload []byte) error {
	ev, err := messaging.DecodeFingerprintEvent(payload)
	if err != nil {
		return err
	}

	switch ev.Event {
	case messaging.FPMatch:
		return d.handleMatch(ctx, deviceID, ev)
	case messaging.FPEnrollSuccess, messaging.FPEnrollFail:
		return d.handleEnrollResponse(ctx, deviceID, ev)
	case messaging.FPDeleteDone:
		return d.handleDeleteResponse(ctx, deviceID, ev)
	case messaging.FPError:
		d.audit(ctx, model.DeviceLog{
			DeviceID:  deviceID,
			EventType: model.EventDeviceError,
			SlotID:    ev.FingerID,
			Success:   false,
			Message:   ev.Msg,
			Timestamp: ev.TS.OrNow(d.now()),
		})
		return nil
	default:
		log.Ctx(ctx).Warn().Str("device_id", deviceID).Str("event", ev.Event).Msg("Dropping unknown fingerprint event")
		return nil
	}
}

// handleMatch resolves the slot binding and derives the attendance mutation.
// A match with no binding is logged as unresolved and has no attendance side
// effect.
func (d *Dispatcher) handleMatch(ctx context.Context, deviceID string, ev messaging.FingerprintEvent) error {
	ts := ev.TS.OrNow(d.now())

	if !ev.MatchSuccess() {
		d.audit(ctx, model.DeviceLog{
			DeviceID:  deviceID,
			EventType: model.EventMatch,
			SlotID:    ev.FingerID,
			Success:   false,
			Message:   orDefault(ev.Msg, "Match failed"),
			Timestamp: ts,
		})
		return nil
	}

	var fp *model.Fingerprint
	if ev.FingerID != nil {
		var err error
		fp, err = d.repo.FindFingerprint(ctx, deviceID, *ev.FingerID)
		if err != nil {
			return fmt.Errorf("failed to resolve slot binding: %w", err)
		}
	}

	if fp == nil {
		d.audit(ctx, model.DeviceLog{
			DeviceID:  deviceID,
			EventType: model.EventMatch,
			SlotID:    ev.FingerID,
			Success:   true,
			Message:   "Match with no slot binding, attendance skipped",
			Timestamp: ts,
		})
		return nil
	}

	signal, err := d.service.ProcessMatch(ctx, deviceID, fp.EmployeeID, ts)
	if err != nil {
		return err
	}

	d.audit(ctx, model.DeviceLog{
		DeviceID:   deviceID,
		EventType:  model.EventMatch,
		SlotID:     ev.FingerID,
		EmployeeID: &fp.EmployeeID,
		Success:    true,
		Message:    fmt.Sprintf("Finger matched, attendance %s", signal),
		Timestamp:  ts,
	})
	return nil
}

// handleEnrollResponse consumes the pending-enroll context for the device's
// terminal response. No context means the device answered something the
// server never asked for (or the server restarted); logged, no guessing.
func (d *Dispatcher) handleEnrollResponse(ctx context.Context, deviceID string, ev messaging.FingerprintEvent) error {
	ts := ev.TS.OrNow(d.now())

	pending, ok := d.tracker.Resolve(deviceID)
	if !ok {
		d.audit(ctx, model.DeviceLog{
			DeviceID:  deviceID,
			EventType: model.EventEnrollResp,
			SlotID:    ev.FingerID,
			Success:   false,
			Message:   "context missing",
			Timestamp: ts,
		})
		return nil
	}

	// Prefer the slot the device reports; fall back to the reserved one.
	slot := pending.SlotID
	if ev.FingerID != nil {
		slot = *ev.FingerID
	}

	succeeded := ev.Event == messaging.FPEnrollSuccess && ev.MatchSuccess()
	if !succeeded {
		d.audit(ctx, model.DeviceLog{
			DeviceID:   deviceID,
			EventType:  model.EventEnrollResp,
			SlotID:     &slot,
			EmployeeID: &pending.EmployeeID,
			Success:    false,
			Message:    orDefault(ev.Msg, "Enrollment failed on device"),
			Timestamp:  ts,
		})
		return nil
	}

	// Binding and its audit row commit or roll back together. The context
	// pop above is in-memory and already consumed either way; a failed
	// transaction therefore surfaces as a failed enroll, not a silent
	// inconsistency.
	err := d.repo.WithTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.CreateFingerprint(ctx, deviceID, slot, pending.EmployeeID); err != nil {
			return err
		}
		_, err := tx.AppendLog(ctx, model.DeviceLog{
			DeviceID:   deviceID,
			EventType:  model.EventEnrollResp,
			SlotID:     &slot,
			EmployeeID: &pending.EmployeeID,
			Success:    true,
			Message:    "Enrollment successful on device",
			Timestamp:  ts,
		})
		return err
	})
	if err != nil {
		msg := "Failed to store binding"
		if errors.Is(err, repository.ErrDuplicateBinding) {
			msg = fmt.Sprintf("Slot %d already bound on device", slot)
		}
		log.Ctx(ctx).Error().Err(err).Str("device_id", deviceID).Int("slot_id", slot).Msg("Enroll response processing failed")
		d.audit(ctx, model.DeviceLog{
			DeviceID:   deviceID,
			EventType:  model.EventEnrollResp,
			SlotID:     &slot,
			EmployeeID: &pending.EmployeeID,
			Success:    false,
			Message:    fmt.Sprintf("%s: %v", msg, err),
			Timestamp:  ts,
		})
	}
	return nil
}

// handleDeleteResponse is logging-only: the server binding was already
// removed when the HTTP delete was accepted.
func (d *Dispatcher) handleDeleteResponse(ctx context.Context, deviceID string, ev messaging.FingerprintEvent) error {
	d.audit(ctx, model.DeviceLog{
		DeviceID:  deviceID,
		EventType: model.EventDeleteResp,
		SlotID:    ev.FingerID,
		Success:   ev.MatchSuccess(),
		Message:   orDefault(ev.Msg, "Fingerprint deleted on device"),
		Timestamp: ev.TS.OrNow(d.now()),
	})
	return nil
}

// handleStatus records heartbeats. An explicit "offline" needs no action:
// going silent is detected passively through the offline TTL on status reads.
func (d *Dispatcher) handleStatus(ctx context.Context, deviceID string, payload []byte) error {
	status := messaging.DecodeStatus(payload)
	if status != "online" {
		log.Ctx(ctx).Debug().Str("device_id", deviceID).Str("status", status).Msg("Status event, no action")
		return nil
	}

	if err := d.repo.RecordHeartbeat(ctx, deviceID, d.now()); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// handleCommandEcho sees the server's own outbound commands (the device
// subscribes to the same topic); useful when debugging, never a state change.
func (d *Dispatcher) handleCommandEcho(ctx context.Context, deviceID string, payload []byte) error {
	log.Ctx(ctx).Debug().Str("device_id", deviceID).Bytes("payload", payload).Msg("Command echo")
	return nil
}

func (d *Dispatcher) audit(ctx context.Context, entry model.DeviceLog) {
	if _, err := d.repo.AppendLog(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("device_id", entry.DeviceID).
			Str("event_type", entry.EventType).
			Msg("Failed to append audit log")
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
