// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// Attitude is the vehicle orientation in radians.
// Positive pitch is nose up, positive roll is right side down, positive yaw
// is nose right.
type Attitude struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide attitudes over time.
type Source interface {
	Next() (Attitude, error)
}

// Finite reports whether every angle is a finite number.
func (a Attitude) Finite() bool {
	for _, v := range [...]float64{a.Pitch, a.Roll, a.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Degrees returns pitch, roll and yaw in degrees for display.
func (a Attitude) Degrees() (pitch, roll, yaw float64) {
	const k = 180.0 / math.Pi
	return a.Pitch * k, a.Roll * k, a.Yaw * k
}
