// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock attitude source that generates a smooth
// wobble with a slowly turning heading.
func NewMockSource() Source {
	return &mockSource{start: time.Now(), now: time.Now}
}

func (m *mockSource) Next() (Attitude, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	deg := math.Pi / 180
	return Attitude{
		Roll:  5 * deg * math.Sin(elapsed),
		Pitch: 4 * deg * math.Cos(elapsed*0.7),
		Yaw:   math.Remainder(elapsed*30*deg, 2*math.Pi),
	}, nil
}
