// device-sim emulates a biometric door terminal on the MQTT bus. It publishes
// periodic status heartbeats, reacts to fp_enroll / fp_delete / door_unlock
// commands with the responses a real terminal would send, and can emit ad-hoc
// fp_match and door events for manual testing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type command struct {
	Cmd string `json:"cmd"`
	ID  *int   `json:"id,omitempty"`
}

type fingerprintEvent struct {
	Event    string `json:"event"`
	FingerID *int   `json:"finger_id,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	TS       string `json:"ts"`
	Msg      string `json:"msg,omitempty"`
}

type doorEvent struct {
	State string `json:"state"`
	TS    string `json:"ts"`
}

type simulator struct {
	client    mqtt.Client
	baseTopic string
	deviceID  string
	failRate  float64
	matchSlot int
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	baseTopic := flag.String("base-topic", "biometric", "base MQTT topic")
	deviceID := flag.String("device", "sim-door-1", "device id to simulate")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "status heartbeat interval")
	matchEvery := flag.Duration("match-every", 0, "if set, publish a fp_match this often")
	matchSlot := flag.Int("match-slot", 0, "slot id used for simulated matches")
	failRate := flag.Float64("fail-rate", 0, "fraction of enrollments that fail (0..1)")
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("device-sim-" + *deviceID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("connect: %v", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("device %s connected to %s", *deviceID, *broker)

	sim := &simulator{
		client:    client,
		baseTopic: *baseTopic,
		deviceID:  *deviceID,
		failRate:  *failRate,
		matchSlot: *matchSlot,
	}

	cmdTopic := fmt.Sprintf("%s/%s/command", *baseTopic, *deviceID)
	if token := client.Subscribe(cmdTopic, 1, sim.onCommand); token.Wait() && token.Error() != nil {
		log.Fatalf("subscribe: %v", token.Error())
	}
	log.Printf("listening for commands on %s", cmdTopic)

	sim.publishStatus("online")
	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	var matchTicker <-chan time.Time
	if *matchEvery > 0 {
		t := time.NewTicker(*matchEvery)
		defer t.Stop()
		matchTicker = t.C
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			sim.publishStatus("online")
		case <-matchTicker:
			sim.publishMatch(sim.matchSlot)
		case <-quit:
			log.Println("simulator shutting down")
			return
		}
	}
}

func (s *simulator) onCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("bad command payload: %v", err)
		return
	}

	switch cmd.Cmd {
	case "fp_enroll":
		// A real terminal waits for the finger to be placed a few times.
		time.Sleep(2 * time.Second)
		if rand.Float64() < s.failRate {
			s.publishFingerprint(fingerprintEvent{
				Event:    "fp_enroll_fail",
				FingerID: cmd.ID,
				Msg:      "Fingerprint capture failed, try again",
			})
			return
		}
		s.publishFingerprint(fingerprintEvent{
			Event:    "fp_enroll_success",
			FingerID: cmd.ID,
		})
	case "fp_delete":
		s.publishFingerprint(fingerprintEvent{
			Event:    "fp_delete_done",
			FingerID: cmd.ID,
		})
	case "door_unlock":
		s.publishDoor("unlocked_wait_open")
		time.Sleep(1 * time.Second)
		s.publishDoor("open")
		time.Sleep(3 * time.Second)
		s.publishDoor("locked")
	default:
		log.Printf("unknown command %q ignored", cmd.Cmd)
	}
}

func (s *simulator) publishMatch(slot int) {
	ok := true
	s.publishFingerprint(fingerprintEvent{
		Event:    "fp_match",
		FingerID: &slot,
		Success:  &ok,
	})
}

func (s *simulator) publishFingerprint(ev fingerprintEvent) {
	ev.TS = time.Now().Format(time.RFC3339)
	s.publish("fingerprint", ev)
}

func (s *simulator) publishDoor(state string) {
	s.publish("door", doorEvent{State: state, TS: time.Now().Format(time.RFC3339)})
}

func (s *simulator) publishStatus(status string) {
	s.publish("status", map[string]string{"status": status})
}

func (s *simulator) publish(category string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal: %v", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", s.baseTopic, s.deviceID, category)
	if token := s.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		log.Printf("publish %s: %v", topic, token.Error())
		return
	}
	log.Printf("-> %s %s", topic, body)
}
