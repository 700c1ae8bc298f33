package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"access.service/internal/core"
	"access.service/internal/core/model"
	"access.service/internal/ports/messaging"
	"access.service/internal/ports/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is a minimal in-memory Repository covering the paths the
// dispatcher touches.
type memRepo struct {
	devices      map[string]*model.Device
	fingerprints []model.Fingerprint
	sessions     []model.AttendanceSession
	logs         []model.DeviceLog
	nextID       int64

	failCreateFingerprint error
}

func newMemRepo(deviceIDs ...string) *memRepo {
	r := &memRepo{devices: make(map[string]*model.Device)}
	for _, id := range deviceIDs {
		r.devices[id] = &model.Device{DeviceID: id, ConnectionStatus: model.StatusOffline, DoorState: model.DoorLocked}
	}
	return r
}

func (r *memRepo) WithTx(_ context.Context, fn func(repository.Repository) error) error {
	// Transactionality itself is covered by the repository tests; here only
	// the all-or-nothing outcome matters, approximated by error propagation.
	snapshotFPs := len(r.fingerprints)
	snapshotLogs := len(r.logs)
	if err := fn(r); err != nil {
		r.fingerprints = r.fingerprints[:snapshotFPs]
		r.logs = r.logs[:snapshotLogs]
		return err
	}
	return nil
}

func (r *memRepo) DeviceExists(_ context.Context, deviceID string) (bool, error) {
	_, ok := r.devices[deviceID]
	return ok, nil
}

func (r *memRepo) GetDevice(_ context.Context, deviceID string) (*model.Device, error) {
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (r *memRepo) RecordHeartbeat(_ context.Context, deviceID string, seenAt time.Time) error {
	d, ok := r.devices[deviceID]
	if !ok {
		return errors.New("no such device")
	}
	d.ConnectionStatus = model.StatusOnline
	d.LastSeen = &seenAt
	return nil
}

func (r *memRepo) MarkOffline(_ context.Context, deviceID string) error {
	if d, ok := r.devices[deviceID]; ok {
		d.ConnectionStatus = model.StatusOffline
	}
	return nil
}

func (r *memRepo) UpdateDoorState(_ context.Context, deviceID string, state model.DoorState) error {
	d, ok := r.devices[deviceID]
	if !ok {
		return errors.New("no such device")
	}
	d.DoorState = state
	return nil
}

func (r *memRepo) CreateFingerprint(_ context.Context, deviceID string, slotID int, employeeID int64) (int64, error) {
	if r.failCreateFingerprint != nil {
		return 0, r.failCreateFingerprint
	}
	for _, fp := range r.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			return 0, repository.ErrDuplicateBinding
		}
	}
	r.nextID++
	r.fingerprints = append(r.fingerprints, model.Fingerprint{
		ID: r.nextID, DeviceID: deviceID, SlotID: slotID, EmployeeID: employeeID, EnrolledAt: time.Now(),
	})
	return r.nextID, nil
}

func (r *memRepo) DeleteFingerprint(_ context.Context, deviceID string, slotID int) (bool, error) {
	for i, fp := range r.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			r.fingerprints = append(r.fingerprints[:i], r.fingerprints[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) FindFingerprint(_ context.Context, deviceID string, slotID int) (*model.Fingerprint, error) {
	for _, fp := range r.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			copied := fp
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ListFingerprints(_ context.Context, deviceID string) ([]model.Fingerprint, error) {
	var out []model.Fingerprint
	for _, fp := range r.fingerprints {
		if fp.DeviceID == deviceID {
			out = append(out, fp)
		}
	}
	return out, nil
}

func (r *memRepo) BoundSlots(_ context.Context, deviceID string) ([]int, error) {
	var slots []int
	for _, fp := range r.fingerprints {
		if fp.DeviceID == deviceID {
			slots = append(slots, fp.SlotID)
		}
	}
	return slots, nil
}

func (r *memRepo) FindSession(_ context.Context, employeeID int64, workDate time.Time) (*model.AttendanceSession, error) {
	for _, s := range r.sessions {
		if s.EmployeeID == employeeID && s.WorkDate.Equal(workDate) {
			copied := s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateSession(_ context.Context, employeeID int64, workDate, checkIn time.Time) (int64, error) {
	r.nextID++
	r.sessions = append(r.sessions, model.AttendanceSession{
		ID: r.nextID, EmployeeID: employeeID, WorkDate: workDate, CheckIn: checkIn, CheckOut: checkIn,
	})
	return r.nextID, nil
}

func (r *memRepo) UpdateSessionCheckOut(_ context.Context, id int64, checkOut time.Time, minutes int) error {
	for i := range r.sessions {
		if r.sessions[i].ID == id {
			r.sessions[i].CheckOut = checkOut
			r.sessions[i].SessionMinutes = minutes
			return nil
		}
	}
	return errors.New("no such session")
}

func (r *memRepo) AppendLog(_ context.Context, entry model.DeviceLog) (int64, error) {
	r.nextID++
	entry.ID = r.nextID
	r.logs = append(r.logs, entry)
	return entry.ID, nil
}

func (r *memRepo) RecentLogs(_ context.Context, deviceID string, limit int) ([]model.DeviceLog, error) {
	var out []model.DeviceLog
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.logs[i].DeviceID == deviceID {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}

func (r *memRepo) LatestEnrollResult(_ context.Context, deviceID string, slotID int) (*model.DeviceLog, error) {
	for i := len(r.logs) - 1; i >= 0; i-- {
		entry := r.logs[i]
		if entry.DeviceID == deviceID && entry.EventType == model.EventEnrollResp &&
			entry.SlotID != nil && *entry.SlotID == slotID {
			return &entry, nil
		}
	}
	return nil, nil
}

func (r *memRepo) logsOfType(eventType string) []model.DeviceLog {
	var out []model.DeviceLog
	for _, entry := range r.logs {
		if entry.EventType == eventType {
			out = append(out, entry)
		}
	}
	return out
}

type nopPublisher struct{}

func (nopPublisher) SendCommand(context.Context, string, string, *int) error { return nil }

type nopEmails struct{}

func (nopEmails) PublishEmail(context.Context, messaging.EmailEvent) error { return nil }

func newTestDispatcher(repo *memRepo) (*Dispatcher, *core.EnrollTracker) {
	tracker := core.NewEnrollTracker(60*time.Second, nil)
	svc := core.NewAccessService(repo, nopPublisher{}, tracker, nopEmails{}, 128, 120*time.Second)
	return New(repo, svc, tracker), tracker
}

func TestHandleMessageMalformedTopicDropped(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	require.NoError(t, d.HandleMessage("garbage", []byte(`{}`)))
	assert.Empty(t, repo.logs)
}

func TestHandleMessageUnknownCategoryDropped(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	require.NoError(t, d.HandleMessage("biometric/door-1/telemetry", []byte(`{}`)))
	assert.Empty(t, repo.logs)
}

func TestHandleDoorEvent(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	require.NoError(t, d.HandleMessage("biometric/door-1/door", []byte(`{"state":"open"}`)))

	assert.Equal(t, model.DoorOpen, repo.devices["door-1"].DoorState)
	logs := repo.logsOfType(model.EventDoor)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestHandleDoorEventUnknownStateIgnored(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	require.NoError(t, d.HandleMessage("biometric/door-1/door", []byte(`{"state":"ajar"}`)))

	// Neither the stored state nor the audit log changed.
	assert.Equal(t, model.DoorLocked, repo.devices["door-1"].DoorState)
	assert.Empty(t, repo.logs)
}

func TestHandleStatusHeartbeat(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.NoError(t, d.HandleMessage("biometric/door-1/status", []byte(`{"status":"online"}`)))

	dev := repo.devices["door-1"]
	assert.Equal(t, model.StatusOnline, dev.ConnectionStatus)
	require.NotNil(t, dev.LastSeen)
	assert.Equal(t, now, *dev.LastSeen)
}

func TestHandleStatusOfflineNoAction(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	require.NoError(t, d.HandleMessage("biometric/door-1/status", []byte(`"offline"`)))
	assert.Nil(t, repo.devices["door-1"].LastSeen)
}

func TestEnrollResponseCreatesBinding(t *testing.T) {
	repo := newMemRepo("door-1")
	d, tracker := newTestDispatcher(repo)

	require.NoError(t, tracker.Begin("door-1", 7, 3))

	payload := []byte(`{"event":"fp_enroll_success","finger_id":3}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	// The binding exists and is attributed to the employee from the pending
	// context.
	fp, err := repo.FindFingerprint(context.Background(), "door-1", 3)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, int64(7), fp.EmployeeID)

	logs := repo.logsOfType(model.EventEnrollResp)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)

	// The context is consumed.
	_, ok := tracker.Resolve("door-1")
	assert.False(t, ok)
}

func TestEnrollResponseWithoutContext(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	payload := []byte(`{"event":"fp_enroll_success","finger_id":3}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	// No binding is guessed into existence.
	assert.Empty(t, repo.fingerprints)

	logs := repo.logsOfType(model.EventEnrollResp)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "context missing", logs[0].Message)
}

func TestEnrollResponseFailure(t *testing.T) {
	repo := newMemRepo("door-1")
	d, tracker := newTestDispatcher(repo)

	require.NoError(t, tracker.Begin("door-1", 7, 3))

	payload := []byte(`{"event":"fp_enroll_fail","finger_id":3,"msg":"finger moved"}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	assert.Empty(t, repo.fingerprints)

	logs := repo.logsOfType(model.EventEnrollResp)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "finger moved", logs[0].Message)
}

func TestEnrollResponseFallsBackToReservedSlot(t *testing.T) {
	repo := newMemRepo("door-1")
	d, tracker := newTestDispatcher(repo)

	require.NoError(t, tracker.Begin("door-1", 7, 5))

	// Device omits finger_id; the reserved slot is used.
	payload := []byte(`{"event":"fp_enroll_success"}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	fp, err := repo.FindFingerprint(context.Background(), "door-1", 5)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, int64(7), fp.EmployeeID)
}

func TestEnrollResponseDuplicateSlotAuditedAsFailure(t *testing.T) {
	repo := newMemRepo("door-1")
	d, tracker := newTestDispatcher(repo)

	_, err := repo.CreateFingerprint(context.Background(), "door-1", 3, 99)
	require.NoError(t, err)

	require.NoError(t, tracker.Begin("door-1", 7, 3))

	payload := []byte(`{"event":"fp_enroll_success","finger_id":3}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	// Original binding untouched, failure audited.
	fp, err := repo.FindFingerprint(context.Background(), "door-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(99), fp.EmployeeID)

	logs := repo.logsOfType(model.EventEnrollResp)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].Message, "already bound")
}

func TestMatchDrivesAttendance(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	_, err := repo.CreateFingerprint(context.Background(), "door-1", 2, 7)
	require.NoError(t, err)

	payload := []byte(`{"event":"fp_match","finger_id":2,"ts":"2026-03-02T08:55:00Z"}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	require.Len(t, repo.sessions, 1)
	assert.Equal(t, int64(7), repo.sessions[0].EmployeeID)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC), repo.sessions[0].CheckIn)

	logs := repo.logsOfType(model.EventMatch)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	require.NotNil(t, logs[0].EmployeeID)
	assert.Equal(t, int64(7), *logs[0].EmployeeID)
}

func TestMatchWithoutBindingSkipsAttendance(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	payload := []byte(`{"event":"fp_match","finger_id":9}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	assert.Empty(t, repo.sessions)

	logs := repo.logsOfType(model.EventMatch)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].EmployeeID)
	assert.Contains(t, logs[0].Message, "attendance skipped")
}

func TestFailedMatchAuditedOnly(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	_, err := repo.CreateFingerprint(context.Background(), "door-1", 2, 7)
	require.NoError(t, err)

	payload := []byte(`{"event":"fp_match","finger_id":2,"success":false}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	assert.Empty(t, repo.sessions)

	logs := repo.logsOfType(model.EventMatch)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestDeviceErrorAudited(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	payload := []byte(`{"event":"error","msg":"sensor read failure"}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	logs := repo.logsOfType(model.EventDeviceError)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Equal(t, "sensor read failure", logs[0].Message)
}

func TestDeleteResponseLoggedOnly(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	payload := []byte(`{"event":"fp_delete_done","finger_id":4}`)
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", payload))

	logs := repo.logsOfType(model.EventDeleteResp)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}

func TestUndecodablePayloadDoesNotPropagate(t *testing.T) {
	repo := newMemRepo("door-1")
	d, _ := newTestDispatcher(repo)

	// Errors are logged and the message dropped; the MQTT handler must never
	// see a failure.
	require.NoError(t, d.HandleMessage("biometric/door-1/fingerprint", []byte(`not json`)))
	require.NoError(t, d.HandleMessage("biometric/door-1/door", []byte(`{}`)))
	assert.Empty(t, repo.logs)
}
