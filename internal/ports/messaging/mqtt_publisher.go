package messaging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// MQTTPublisher implements CommandPublisher over an MQTT connection.
type MQTTPublisher struct {
	client    MQTTClient
	baseTopic string
}

// MQTTClient is the subset of pkg/mqtt.Client the publisher needs.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

func NewMQTTPublisher(client MQTTClient, baseTopic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, baseTopic: baseTopic}
}

// SendCommand publishes {"cmd", "id"?} to the device's command topic.
func (p *MQTTPublisher) SendCommand(ctx context.Context, deviceID, cmd string, slotID *int) error {
	topic, body, err := EncodeCommand(p.baseTopic, deviceID, cmd, slotID)
	if err != nil {
		return err
	}

	if err := p.client.Publish(topic, 1, false, body); err != nil {
		return fmt.Errorf("failed to publish command %q to %s: %w", cmd, topic, err)
	}

	log.Ctx(ctx).Info().
		Str("topic", topic).
		Str("cmd", cmd).
		Msg("Command published")
	return nil
}
