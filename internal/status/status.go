// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package status carries per-tick flight status from the FMU to the
// monitoring tools (console, web dashboard, ESC bridge).
package status

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/orientation"
)

// Status is one control tick as seen from outside the core.
type Status struct {
	Tick     uint64    `json:"tick"`
	Time     time.Time `json:"time"`
	Mission  string    `json:"mission"`
	Timestep float64   `json:"timestep"`

	Attitude orientation.Attitude `json:"attitude"`
	Altitude *float64             `json:"altitude,omitempty"`
	GPS      *fusion.LatLon       `json:"gps,omitempty"`
	Flow     *fusion.Velocity     `json:"flow,omitempty"`

	Modes   input.Flags     `json:"modes"`
	Flight  flight.Snapshot `json:"flight"`
	Thrusts flight.Thrusts  `json:"thrusts"`

	// Error is set when the tick was rejected and the previous thrusts were
	// repeated.
	Error string `json:"error,omitempty"`
}

// Line renders the status as one console line.
func (s Status) Line() string {
	pitch, roll, yaw := s.Attitude.Degrees()
	line := fmt.Sprintf(
		"[%6d] P=%6.2f R=%6.2f Y=%7.2f  climb=%5.2f  M=[%6.3f %6.3f %6.3f %6.3f]",
		s.Tick, pitch, roll, yaw, s.Flight.Climb,
		s.Thrusts[0], s.Thrusts[1], s.Thrusts[2], s.Thrusts[3],
	)
	if s.Flight.AltitudeHold {
		line += fmt.Sprintf("  ALT@%.2fm", s.Flight.AltitudeTarget)
	}
	if s.Flight.PositionHold != flight.HoldNone {
		line += "  POS:" + s.Flight.PositionHold
	}
	if s.Error != "" {
		line += "  ERR: " + s.Error
	}
	return line
}

// Publisher receives one status per tick.
type Publisher interface {
	Publish(s Status) error
}

// MQTTPublisher publishes statuses as JSON on one topic.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher publishes on topic through an already connected client.
func NewMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic}
}

// Publish sends s without waiting for delivery confirmation beyond the
// client's own queue.
func (p *MQTTPublisher) Publish(s Status) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("status: publish to %s: %w", p.topic, token.Error())
	}
	return nil
}

// Subscribe calls handle for every status published on topic. Malformed
// payloads are reported through onError, which may be nil.
func Subscribe(client mqtt.Client, topic string, handle func(Status), onError func(error)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s, err := Decode(msg.Payload())
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		handle(s)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("status: subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

// Decode parses a published status.
func Decode(payload []byte) (Status, error) {
	var s Status
	if err := json.Unmarshal(payload, &s); err != nil {
		return Status{}, fmt.Errorf("status: unmarshal: %w", err)
	}
	return s, nil
}
