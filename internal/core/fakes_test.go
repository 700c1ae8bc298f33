package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"access.service/internal/core/model"
	"access.service/internal/ports/messaging"
	"access.service/internal/ports/repository"
)

// fakeRepo is an in-memory Repository for service-level tests.
type fakeRepo struct {
	mu sync.Mutex

	devices      map[string]*model.Device
	fingerprints []model.Fingerprint
	sessions     []model.AttendanceSession
	logs         []model.DeviceLog

	markedOffline []string
	nextID        int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{devices: make(map[string]*model.Device)}
}

func (f *fakeRepo) addDevice(d model.Device) {
	f.devices[d.DeviceID] = &d
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(repository.Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) DeviceExists(_ context.Context, deviceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.devices[deviceID]
	return ok, nil
}

func (f *fakeRepo) GetDevice(_ context.Context, deviceID string) (*model.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (f *fakeRepo) RecordHeartbeat(_ context.Context, deviceID string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return errors.New("no such device")
	}
	d.ConnectionStatus = model.StatusOnline
	d.LastSeen = &seenAt
	return nil
}

func (f *fakeRepo) MarkOffline(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedOffline = append(f.markedOffline, deviceID)
	if d, ok := f.devices[deviceID]; ok {
		d.ConnectionStatus = model.StatusOffline
	}
	return nil
}

func (f *fakeRepo) UpdateDoorState(_ context.Context, deviceID string, state model.DoorState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[deviceID]
	if !ok {
		return errors.New("no such device")
	}
	d.DoorState = state
	return nil
}

func (f *fakeRepo) CreateFingerprint(_ context.Context, deviceID string, slotID int, employeeID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range f.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			return 0, repository.ErrDuplicateBinding
		}
	}
	f.nextID++
	f.fingerprints = append(f.fingerprints, model.Fingerprint{
		ID: f.nextID, DeviceID: deviceID, SlotID: slotID, EmployeeID: employeeID, EnrolledAt: time.Now(),
	})
	return f.nextID, nil
}

func (f *fakeRepo) DeleteFingerprint(_ context.Context, deviceID string, slotID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fp := range f.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			f.fingerprints = append(f.fingerprints[:i], f.fingerprints[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) FindFingerprint(_ context.Context, deviceID string, slotID int) (*model.Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fp := range f.fingerprints {
		if fp.DeviceID == deviceID && fp.SlotID == slotID {
			copied := fp
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListFingerprints(_ context.Context, deviceID string) ([]model.Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Fingerprint
	for _, fp := range f.fingerprints {
		if fp.DeviceID == deviceID {
			out = append(out, fp)
		}
	}
	return out, nil
}

func (f *fakeRepo) BoundSlots(_ context.Context, deviceID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var slots []int
	for _, fp := range f.fingerprints {
		if fp.DeviceID == deviceID {
			slots = append(slots, fp.SlotID)
		}
	}
	return slots, nil
}

func (f *fakeRepo) FindSession(_ context.Context, employeeID int64, workDate time.Time) (*model.AttendanceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.EmployeeID == employeeID && s.WorkDate.Equal(workDate) {
			copied := s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateSession(_ context.Context, employeeID int64, workDate, checkIn time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sessions = append(f.sessions, model.AttendanceSession{
		ID: f.nextID, EmployeeID: employeeID, WorkDate: workDate,
		CheckIn: checkIn, CheckOut: checkIn, SessionMinutes: 0,
	})
	return f.nextID, nil
}

func (f *fakeRepo) UpdateSessionCheckOut(_ context.Context, id int64, checkOut time.Time, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			f.sessions[i].CheckOut = checkOut
			f.sessions[i].SessionMinutes = minutes
			return nil
		}
	}
	return errors.New("no such session")
}

func (f *fakeRepo) AppendLog(_ context.Context, entry model.DeviceLog) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	entry.ID = f.nextID
	f.logs = append(f.logs, entry)
	return entry.ID, nil
}

func (f *fakeRepo) RecentLogs(_ context.Context, deviceID string, limit int) ([]model.DeviceLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeviceLog
	for i := len(f.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if f.logs[i].DeviceID == deviceID {
			out = append(out, f.logs[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) LatestEnrollResult(_ context.Context, deviceID string, slotID int) (*model.DeviceLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.logs) - 1; i >= 0; i-- {
		entry := f.logs[i]
		if entry.DeviceID == deviceID && entry.EventType == model.EventEnrollResp &&
			entry.SlotID != nil && *entry.SlotID == slotID {
			return &entry, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) logsOfType(eventType string) []model.DeviceLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeviceLog
	for _, entry := range f.logs {
		if entry.EventType == eventType {
			out = append(out, entry)
		}
	}
	return out
}

type sentCommand struct {
	DeviceID string
	Cmd      string
	SlotID   *int
}

// fakePublisher records the commands the service would publish over MQTT.
type fakePublisher struct {
	mu   sync.Mutex
	sent []sentCommand
	fail bool
}

func (p *fakePublisher) SendCommand(_ context.Context, deviceID, cmd string, slotID *int) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentCommand{DeviceID: deviceID, Cmd: cmd, SlotID: slotID})
	return nil
}

// fakeEmails records published check-out summary events.
type fakeEmails struct {
	mu        sync.Mutex
	published []messaging.EmailEvent
	fail      bool
}

func (e *fakeEmails) PublishEmail(_ context.Context, event messaging.EmailEvent) error {
	if e.fail {
		return errors.New("queue unavailable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.published = append(e.published, event)
	return nil
}
