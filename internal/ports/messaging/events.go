package messaging

import "time"

// EmailEvent is the JSON payload sent via SQS to the email worker after an
// attendance check-out update.
type EmailEvent struct {
	EmployeeID     int64     `json:"employeeId"`
	DeviceID       string    `json:"deviceId"`
	WorkDate       string    `json:"workDate"`
	SessionMinutes int       `json:"sessionMinutes"`
	CheckOutTime   time.Time `json:"checkOutTime"`
	OccurredAt     time.Time `json:"occurredAt"`
}
