// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motors drives the ESCs of the vehicle from flight core thrusts.
package motors

import (
	"fmt"
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/flight_core/internal/flight"
)

// Pin is the part of gpio.PinIO the ESC output needs.
type Pin interface {
	Name() string
	PWM(duty gpio.Duty, f physic.Frequency) error
}

var (
	hostOnce    sync.Once
	hostInitErr error
)

func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostInitErr = fmt.Errorf("periph host init: %w", err)
		}
	})
	return hostInitErr
}

// PWMOutput maps each motor thrust to a PWM duty cycle, duty = thrust/MaxThrust.
type PWMOutput struct {
	pins      [flight.NumMotors]Pin
	frequency physic.Frequency
	maxThrust float64
}

// NewPWMOutput drives the given pins, one per motor in mixer order.
func NewPWMOutput(pins []Pin, frequency physic.Frequency, maxThrust float64) (*PWMOutput, error) {
	if len(pins) != flight.NumMotors {
		return nil, fmt.Errorf("need %d ESC pins, got %d", flight.NumMotors, len(pins))
	}
	if frequency <= 0 {
		return nil, fmt.Errorf("invalid PWM frequency %s", frequency)
	}
	if !(maxThrust > 0) {
		return nil, fmt.Errorf("invalid max thrust %v", maxThrust)
	}

	o := PWMOutput{frequency: frequency, maxThrust: maxThrust}
	for i, p := range pins {
		if p == nil {
			return nil, fmt.Errorf("ESC %d: nil pin", i)
		}
		o.pins[i] = p
	}
	return &o, nil
}

// OpenPWMOutput initializes the host and looks the pins up by name,
// e.g. "GPIO12".
func OpenPWMOutput(names []string, hz int, maxThrust float64) (*PWMOutput, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	pins := make([]Pin, 0, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("ESC pin %q not found", name)
		}
		pins = append(pins, p)
	}
	return NewPWMOutput(pins, physic.Frequency(hz)*physic.Hertz, maxThrust)
}

// Duty returns the duty cycle for one thrust command.
func (o *PWMOutput) Duty(thrust float64) gpio.Duty {
	if math.IsNaN(thrust) || thrust <= 0 {
		return 0
	}
	frac := math.Min(1, thrust/o.maxThrust)
	return gpio.Duty(frac * float64(gpio.DutyMax))
}

// Write sets all four ESCs.
func (o *PWMOutput) Write(t flight.Thrusts) error {
	for i, p := range o.pins {
		if err := p.PWM(o.Duty(t[i]), o.frequency); err != nil {
			return fmt.Errorf("ESC %d (%s): %w", i, p.Name(), err)
		}
	}
	return nil
}

// Stop sets every ESC to zero duty.
func (o *PWMOutput) Stop() error {
	return o.Write(flight.Thrusts{})
}
