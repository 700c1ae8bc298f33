package model

import (
	"time"
)

// ConnectionStatus is the stored connectivity flag of a device. The effective
// status returned to callers is recomputed against the offline TTL on every
// read, so the stored value may lag behind reality until the next read.
type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusOffline ConnectionStatus = "offline"
)

// DoorState is the last door position a controller reported.
type DoorState string

const (
	DoorLocked        DoorState = "LOCKED"
	DoorWaitingToOpen DoorState = "WAITING_TO_OPEN"
	DoorOpen          DoorState = "OPEN"
)

// Device is one fingerprint reader / door controller. Rows are provisioned
// out-of-band; the service only mutates connectivity and door state.
type Device struct {
	DeviceID         string           `json:"deviceId"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	DoorState        DoorState        `json:"doorState"`
	LastSeen         *time.Time       `json:"lastSeen,omitempty"`
}

// Fingerprint binds a template slot on a device to an employee.
// (device_id, slot_id) is unique.
type Fingerprint struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"deviceId"`
	SlotID     int       `json:"slotId"`
	EmployeeID int64     `json:"employeeId"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// AttendanceSession is one employee's single daily attendance interval,
// delimited by the first and most recent identity match of the day.
type AttendanceSession struct {
	ID             int64     `json:"id"`
	EmployeeID     int64     `json:"employeeId"`
	WorkDate       time.Time `json:"workDate"`
	CheckIn        time.Time `json:"checkIn"`
	CheckOut       time.Time `json:"checkOut"`
	SessionMinutes int       `json:"sessionMinutes"`
}

// Audit event types written to the device log. Inbound rows come from the
// dispatcher, *_req rows from server-initiated commands.
const (
	EventDoor          = "door_event"
	EventMatch         = "fp_match"
	EventEnrollResp    = "enroll_resp"
	EventDeleteResp    = "delete_resp"
	EventDeviceError   = "device_error"
	EventEnrollReq     = "enroll_req"
	EventDeleteReq     = "delete_req"
	EventDoorOpenReq   = "door_open_req"
	EventEnrollTimeout = "enroll_timeout"
)

// DeviceLog is one append-only audit row.
type DeviceLog struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"deviceId"`
	EventType  string    `json:"eventType"`
	SlotID     *int      `json:"slotId,omitempty"`
	EmployeeID *int64    `json:"employeeId,omitempty"`
	Success    bool      `json:"success"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
