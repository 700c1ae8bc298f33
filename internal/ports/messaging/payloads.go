package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Device firmware sends timestamps as ISO8601 strings when it sends them at
// all. Timestamp tolerates the field being absent, null, or unparseable; the
// consumer falls back to the server clock in those cases.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t.Time = parsed
	return nil
}

// OrNow returns the device-reported time, or now when the device omitted it.
func (t *Timestamp) OrNow(now time.Time) time.Time {
	if t == nil || t.Time.IsZero() {
		return now
	}
	return t.Time
}

// DoorEvent: {"state": "locked"|"open"|"unlocked_wait_open", "ts"?: ISO8601}.
type DoorEvent struct {
	State string     `json:"state"`
	TS    *Timestamp `json:"ts,omitempty"`
}

// Fingerprint event names sent by the device.
const (
	FPMatch         = "fp_match"
	FPEnrollSuccess = "fp_enroll_success"
	FPEnrollFail    = "fp_enroll_fail"
	FPDeleteDone    = "fp_delete_done"
	FPError         = "error"
)

// FingerprintEvent is the device-to-server fingerprint message. FingerID and
// Success are optional on the wire; see MatchSuccess for the success default.
type FingerprintEvent struct {
	Event    string     `json:"event"`
	FingerID *int       `json:"finger_id,omitempty"`
	Success  *bool      `json:"success,omitempty"`
	TS       *Timestamp `json:"ts,omitempty"`
	Msg      string     `json:"msg,omitempty"`
}

// MatchSuccess reports whether the event succeeded. Firmware omits the flag
// on successful matches, so an absent field counts as success.
func (e FingerprintEvent) MatchSuccess() bool {
	return e.Success == nil || *e.Success
}

// DecodeDoorEvent validates a door payload at ingress.
func DecodeDoorEvent(payload []byte) (DoorEvent, error) {
	var ev DoorEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return DoorEvent{}, fmt.Errorf("undecodable door payload: %w", err)
	}
	if ev.State == "" {
		return DoorEvent{}, fmt.Errorf("door payload missing state")
	}
	return ev, nil
}

// DecodeFingerprintEvent validates a fingerprint payload at ingress.
func DecodeFingerprintEvent(payload []byte) (FingerprintEvent, error) {
	var ev FingerprintEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return FingerprintEvent{}, fmt.Errorf("undecodable fingerprint payload: %w", err)
	}
	if ev.Event == "" {
		return FingerprintEvent{}, fmt.Errorf("fingerprint payload missing event")
	}
	return ev, nil
}

// DecodeStatus handles both payload shapes devices use: a bare "online" /
// "offline" string and the structured {"status": "..."} form.
func DecodeStatus(payload []byte) string {
	var structured struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &structured); err == nil && structured.Status != "" {
		return structured.Status
	}
	var quoted string
	if err := json.Unmarshal(payload, &quoted); err == nil {
		return quoted
	}
	return strings.TrimSpace(string(payload))
}
