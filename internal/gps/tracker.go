package gps

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/flight_core/internal/fusion"
)

// Tracker keeps the latest valid fix published by the GPS producer so the
// FMU can hold position on missions whose telemetry carries no GPS.
type Tracker struct {
	mu       sync.RWMutex
	fix      Fix
	received time.Time

	maxAge time.Duration
	now    func() time.Time
}

// NewTracker returns a tracker that ignores fixes older than maxAge.
// Zero maxAge keeps fixes forever.
func NewTracker(maxAge time.Duration) *Tracker {
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Subscribe feeds the tracker from topic on a connected client.
func (t *Tracker) Subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := t.Update(msg.Payload()); err != nil {
			log.Printf("gps: fix unmarshal error: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}
	return nil
}

// Update records one JSON fix. Void fixes are ignored.
func (t *Tracker) Update(payload []byte) error {
	var f Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	if !f.Valid() {
		return nil
	}

	t.mu.Lock()
	t.fix = f
	t.received = t.now()
	t.mu.Unlock()
	return nil
}

// Latest returns the last valid position, if it is recent enough.
func (t *Tracker) Latest() (fusion.LatLon, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.received.IsZero() {
		return fusion.LatLon{}, false
	}
	if t.maxAge > 0 && t.now().Sub(t.received) > t.maxAge {
		return fusion.LatLon{}, false
	}
	return t.fix.Position(), true
}
