// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package input

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Failsafe is reported when no fresh remote demand is available: sticks
// centered, mid throttle so that altitude hold owns the climb demand.
var Failsafe = Demand{Throttle: 0.5, Flags: Flags{AltitudeHold: true}}

// WithStaleAfter sets how long a remote demand stays valid. Zero disables
// the staleness check.
func WithStaleAfter(d time.Duration) func(*MQTTSource) {
	return func(s *MQTTSource) {
		s.staleAfter = d
	}
}

// MQTTSource reads JSON demands published by a remote stick bridge.
type MQTTSource struct {
	client mqtt.Client
	topic  string

	mu         sync.RWMutex
	demand     Demand
	received   time.Time
	staleAfter time.Duration
	now        func() time.Time
}

func newMQTTSource(client mqtt.Client, topic string, options ...func(*MQTTSource)) *MQTTSource {
	s := MQTTSource{
		client:     client,
		topic:      topic,
		demand:     Failsafe,
		staleAfter: 500 * time.Millisecond,
		now:        time.Now,
	}
	for _, option := range options {
		option(&s)
	}
	return &s
}

// NewMQTTSource subscribes to topic on an already connected client.
func NewMQTTSource(client mqtt.Client, topic string, options ...func(*MQTTSource)) (*MQTTSource, error) {
	s := newMQTTSource(client, topic, options...)

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.update(msg.Payload()); err != nil {
			log.Printf("input: demand unmarshal error: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}

	return s, nil
}

func (s *MQTTSource) update(payload []byte) error {
	var d Demand
	if err := json.Unmarshal(payload, &d); err != nil {
		return err
	}

	s.mu.Lock()
	s.demand = d.Clamped()
	s.received = s.now()
	s.mu.Unlock()
	return nil
}

// Poll returns the latest remote demand, or Failsafe when none arrived yet or
// the last one is stale.
func (s *MQTTSource) Poll() (Demand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.received.IsZero() {
		return Failsafe, nil
	}
	if s.staleAfter > 0 && s.now().Sub(s.received) > s.staleAfter {
		return Failsafe, nil
	}
	return s.demand, nil
}

// Error publishes the failure on <topic>/error so the stick bridge can alert
// the pilot.
func (s *MQTTSource) Error(err error) {
	if s.client == nil || err == nil {
		return
	}
	payload, _ := json.Marshal(struct {
		Error string `json:"error"`
		Time  string `json:"time"`
	}{
		Error: err.Error(),
		Time:  s.now().Format(time.RFC3339),
	})
	token := s.client.Publish(s.topic+"/error", 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("input: error publish failed: %v", token.Error())
	}
}
