package app

import (
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/motors"
	"github.com/relabs-tech/flight_core/internal/status"
)

// escWatchdog is how long the bridge keeps the last thrusts without a new
// status before it stops the motors.
const escWatchdog = 500 * time.Millisecond

// motorWriter is the part of motors.PWMOutput the bridge drives.
type motorWriter interface {
	Write(t flight.Thrusts) error
	Stop() error
}

// escBridge forwards status thrusts to the ESCs and stops them when the FMU
// goes quiet.
type escBridge struct {
	out motorWriter
	now func() time.Time

	mu       sync.Mutex
	last     time.Time
	stopped  bool
	failures int
}

func newESCBridge(out motorWriter) *escBridge {
	return &escBridge{out: out, now: time.Now, stopped: true}
}

func (b *escBridge) apply(s status.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = b.now()
	if err := b.out.Write(s.Thrusts); err != nil {
		b.failures++
		log.Printf("esc: write error: %v", err)
		return
	}
	if b.stopped {
		log.Printf("esc: receiving thrusts from %s mission", s.Mission)
	}
	b.stopped = false
}

// check stops the motors when no status arrived within escWatchdog.
func (b *escBridge) check() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped || b.now().Sub(b.last) <= escWatchdog {
		return
	}
	if err := b.out.Stop(); err != nil {
		log.Printf("esc: stop error: %v", err)
		return
	}
	b.stopped = true
	log.Println("esc: no status from FMU, motors stopped")
}

// RunESCBridge drives the ESC pins from the published flight status.
func RunESCBridge() error {
	cfg := config.Get()

	out, err := motors.OpenPWMOutput(cfg.ESCPins, cfg.ESCPWMHz, cfg.ESCMaxThrust)
	if err != nil {
		return err
	}
	defer out.Stop()
	log.Printf("esc: driving %v at %d Hz, full duty at thrust %.1f", cfg.ESCPins, cfg.ESCPWMHz, cfg.ESCMaxThrust)

	client, err := connectMQTT("esc", cfg.MQTTBroker, cfg.MQTTClientIDESC)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	bridge := newESCBridge(out)
	err = status.Subscribe(client, cfg.TopicStatus, bridge.apply, func(err error) {
		log.Printf("esc: %v", err)
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(escWatchdog / 5)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bridge.check()
			case <-done:
				return
			}
		}
	}()

	waitForSignal()
	close(done)
	log.Println("esc: shutting down")
	return nil
}
