// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package input models pilot demand and the devices that produce it.
package input

import "math"

// Switch positions of a 3-position mode switch.
const (
	SwitchStabilize = 0
	SwitchAltitude  = 1
	SwitchPosition  = 2
)

// Flags are the discrete hold/autopilot requests.
type Flags struct {
	AltitudeHold bool `json:"altitude_hold"`
	PositionHold bool `json:"position_hold"`
	Autopilot    bool `json:"autopilot"`
}

// Demand is one poll of the pilot's sticks and switches. Stick axes are in
// [-1, +1].
type Demand struct {
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	Yaw      float64 `json:"yaw"`
	Throttle float64 `json:"throttle"`

	Flags  Flags `json:"flags"`
	Switch *int  `json:"switch,omitempty"` // optional 3-position switch
}

// Modes resolves the effective flags. A present 3-position switch overrides
// the hold flags; the autopilot flag is kept as is.
func (d Demand) Modes() Flags {
	if d.Switch == nil {
		return d.Flags
	}
	f := d.Flags
	f.AltitudeHold = *d.Switch >= SwitchAltitude
	f.PositionHold = *d.Switch >= SwitchPosition
	return f
}

// Clamped returns the demand with every stick axis limited to [-1, +1].
// NaN axes read as neutral.
func (d Demand) Clamped() Demand {
	d.Pitch = clampAxis(d.Pitch)
	d.Roll = clampAxis(d.Roll)
	d.Yaw = clampAxis(d.Yaw)
	d.Throttle = clampAxis(d.Throttle)
	return d
}

func clampAxis(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// Source is a pilot input device.
type Source interface {
	// Poll returns the current demand.
	Poll() (Demand, error)
	// Error notifies the device that the session failed, so it can signal
	// the pilot.
	Error(err error)
}
