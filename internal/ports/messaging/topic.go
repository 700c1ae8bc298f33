package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTopic is returned for topics that do not carry at least
// {base}/{device_id}/{category}.
var ErrMalformedTopic = errors.New("malformed topic")

// Topic categories under {base_topic}/{device_id}/.
const (
	CategoryDoor        = "door"
	CategoryFingerprint = "fingerprint"
	CategoryStatus      = "status"
	CategoryCommand     = "command"
)

// Commands the server publishes to a device.
const (
	CmdEnrollFingerprint = "fp_enroll"
	CmdDeleteFingerprint = "fp_delete"
	CmdDoorUnlock        = "door_unlock"
)

// Command is the server-to-device message body: {"cmd": ..., "id"?: ...}.
type Command struct {
	Cmd string `json:"cmd"`
	ID  *int   `json:"id,omitempty"`
}

// ParseTopic extracts (device_id, category) from a slash-delimited topic.
// The device id and category are always the last two segments, regardless of
// how deep the configured base topic is.
func ParseTopic(topic string) (deviceID, category string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// CommandTopic builds the command topic for a device.
func CommandTopic(baseTopic, deviceID string) string {
	return baseTopic + "/" + deviceID + "/" + CategoryCommand
}

// EncodeCommand builds the topic and JSON body for a server-initiated command.
func EncodeCommand(baseTopic, deviceID, cmd string, slotID *int) (topic string, body []byte, err error) {
	body, err = json.Marshal(Command{Cmd: cmd, ID: slotID})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	return CommandTopic(baseTopic, deviceID), body, nil
}
