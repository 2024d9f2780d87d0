// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/orientation"
	"github.com/relabs-tech/flight_core/internal/status"
)

// mockConsole flies the core against a mock attitude source and prints a
// status line per tick. ticks <= 0 runs until ctx is done.
func mockConsole(ctx context.Context, w io.Writer, src orientation.Source, ticks int, interval time.Duration) error {
	core, err := flight.New(flight.DefaultConfig())
	if err != nil {
		return err
	}
	demand := input.Demand{Throttle: 0.5}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 0; ticks <= 0 || tick < ticks; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		att, err := src.Next()
		if err != nil {
			return err
		}

		t := flight.Telemetry{Timestep: interval.Seconds(), Attitude: att}
		thrusts, err := core.Update(t, demand)

		s := status.Status{
			Tick:     uint64(tick),
			Mission:  "mock",
			Timestep: t.Timestep,
			Attitude: att,
			Modes:    demand.Modes(),
			Flight:   core.Snapshot(),
			Thrusts:  thrusts,
		}
		if err != nil {
			s.Error = err.Error()
		}
		fmt.Fprintln(w, s.Line())
	}
	return nil
}

// RunMockConsole is the offline demo: no simulator, no broker.
func RunMockConsole(ctx context.Context) error {
	return mockConsole(ctx, os.Stdout, orientation.NewMockSource(), 0, 100*time.Millisecond)
}
