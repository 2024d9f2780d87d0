// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flight

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/flight_core/internal/pid"
)

// Thrust policy names accepted in tuning files.
const (
	PolicyLinear = "linear"
	PolicyRoot   = "root"
)

// ThrustPolicy maps climb demand to the collective thrust baseline.
type ThrustPolicy interface {
	Thrust(climb float64) float64
	Name() string
}

// LinearThrust is Baseline + Factor*climb.
type LinearThrust struct {
	Baseline float64
	Factor   float64
}

func (p LinearThrust) Thrust(climb float64) float64 { return p.Baseline + p.Factor*climb }
func (p LinearThrust) Name() string                 { return PolicyLinear }

// RootThrust is Scale*climb^(1/4) + Offset. It is steeper near zero throttle.
// Negative climb reads as zero.
type RootThrust struct {
	Scale  float64
	Offset float64
}

func (p RootThrust) Thrust(climb float64) float64 {
	return p.Scale*math.Sqrt(math.Sqrt(math.Max(0, climb))) + p.Offset
}
func (p RootThrust) Name() string { return PolicyRoot }

// ThrustConfig selects and parameterizes a ThrustPolicy.
type ThrustConfig struct {
	Policy string `yaml:"policy"`

	// linear
	Baseline float64 `yaml:"baseline"`
	Factor   float64 `yaml:"factor"`

	// root
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`
}

// Build returns the configured policy.
func (c ThrustConfig) Build() (ThrustPolicy, error) {
	switch c.Policy {
	case PolicyLinear, "":
		return LinearThrust{Baseline: c.Baseline, Factor: c.Factor}, nil
	case PolicyRoot:
		return RootThrust{Scale: c.Scale, Offset: c.Offset}, nil
	default:
		return nil, fmt.Errorf("unknown thrust policy %q", c.Policy)
	}
}

// DemandFactors scale stick axes before they enter the mixer. Throttle is
// scaled by the thrust policy instead.
type DemandFactors struct {
	Pitch float64 `yaml:"pitch"`
	Roll  float64 `yaml:"roll"`
	Yaw   float64 `yaml:"yaw"`
}

// Channels enables optional correction channels.
type Channels struct {
	AltitudeHold bool `yaml:"altitudeHold"`
	PositionHold bool `yaml:"positionHold"`
	HoverInPlace bool `yaml:"hoverInPlace"`
	Autopilot    bool `yaml:"autopilot"`
}

// Config is the complete tuning of a Core.
type Config struct {
	Name string `yaml:"name"`

	PitchRoll pid.Gains `yaml:"pitchRoll"`
	Yaw       pid.Gains `yaml:"yaw"`
	Altitude  pid.Gains `yaml:"altitude"`
	Position  pid.Gains `yaml:"position"` // degree-scale input, hence a large Kp

	Demand DemandFactors `yaml:"demand"`

	// FlowHoverFactor converts optical-flow velocity (m/s) into a
	// pitch/roll correction for hover-in-place.
	FlowHoverFactor float64 `yaml:"flowHoverFactor"`

	// AutopilotYawDemand replaces the yaw demand while the autopilot demo
	// flag is set.
	AutopilotYawDemand float64 `yaml:"autopilotYawDemand"`

	Deadband Deadband     `yaml:"deadband"`
	Thrust   ThrustConfig `yaml:"thrust"`
	Channels Channels     `yaml:"channels"`

	// MaxThrust bounds every motor command; zero leaves the upper side open.
	MaxThrust float64 `yaml:"maxThrust"`
}

// DefaultConfig returns the reference quadrotor tuning.
func DefaultConfig() Config {
	return Config{
		Name:      "fmu",
		PitchRoll: pid.Gains{Kp: 0.25, Kd: 0.1},
		Yaw:       pid.Gains{Kp: 1.0, Kd: 0.4},
		Altitude:  pid.Gains{Kp: 10},
		Position:  pid.Gains{Kp: 5000},
		Demand: DemandFactors{
			Pitch: 0.1,
			Roll:  0.1,
			Yaw:   0.5,
		},
		FlowHoverFactor:    0.5,
		AutopilotYawDemand: 0.05,
		Deadband:           Deadband{Low: 0.4, High: 0.6},
		Thrust: ThrustConfig{
			Policy:   PolicyLinear,
			Baseline: 5.335,
			Factor:   0.5,
		},
		Channels: Channels{
			AltitudeHold: true,
			PositionHold: true,
			HoverInPlace: true,
			Autopilot:    true,
		},
		MaxThrust: 20,
	}
}

// LoadConfig reads a YAML tuning file. Keys missing from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading tuning file: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing tuning file %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the tuning for values the core cannot run with.
func (c Config) Validate() error {
	if _, err := c.Thrust.Build(); err != nil {
		return err
	}
	if c.Deadband.Low > c.Deadband.High {
		return fmt.Errorf("deadband low %.2f above high %.2f", c.Deadband.Low, c.Deadband.High)
	}
	if c.MaxThrust < 0 {
		return errors.New("maxThrust must not be negative")
	}
	values := map[string]float64{
		"demand.pitch":       c.Demand.Pitch,
		"demand.roll":        c.Demand.Roll,
		"demand.yaw":         c.Demand.Yaw,
		"flowHoverFactor":    c.FlowHoverFactor,
		"autopilotYawDemand": c.AutopilotYawDemand,
		"deadband.low":       c.Deadband.Low,
		"deadband.high":      c.Deadband.High,
		"thrust.baseline":    c.Thrust.Baseline,
		"thrust.factor":      c.Thrust.Factor,
		"thrust.scale":       c.Thrust.Scale,
		"thrust.offset":      c.Thrust.Offset,
		"maxThrust":          c.MaxThrust,
	}
	for name, g := range map[string]pid.Gains{
		"pitchRoll": c.PitchRoll,
		"yaw":       c.Yaw,
		"altitude":  c.Altitude,
		"position":  c.Position,
	} {
		values[name+".kp"] = g.Kp
		values[name+".kd"] = g.Kd
		values[name+".ki"] = g.Ki
		values[name+".integralLimit"] = g.IntegralLimit
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	return nil
}
