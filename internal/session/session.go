// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session runs the lockstep exchange between one simulator client and
// the flight core: receive telemetry, poll the pilot, compute, send thrusts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/status"
	"github.com/relabs-tech/flight_core/internal/wire"
)

// ErrHandshake wraps failures to read the opening string.
var ErrHandshake = errors.New("session: handshake failed")

// Kind tells the caller whether to keep stepping.
type Kind int

const (
	Continue Kind = iota
	Terminate
)

func (k Kind) String() string {
	if k == Terminate {
		return "terminate"
	}
	return "continue"
}

// Result is the outcome of one Step.
type Result struct {
	Kind    Kind
	Thrusts flight.Thrusts

	// Reason is set when Kind is Terminate.
	Reason error
}

// PositionSource supplies a GPS fix for missions whose telemetry has none,
// e.g. a receiver attached to the FMU itself.
type PositionSource interface {
	Latest() (fusion.LatLon, bool)
}

// WithMission selects the telemetry layout. The default is MissionCore.
func WithMission(m Mission) func(*Session) {
	return func(s *Session) {
		s.mission = m
	}
}

// WithFlowEstimator sets the estimator fed by MissionFlow camera frames.
func WithFlowEstimator(f *fusion.FlowEstimator) func(*Session) {
	return func(s *Session) {
		s.flow = f
	}
}

// WithPositionSource fills in GPS when the telemetry does not carry it.
func WithPositionSource(p PositionSource) func(*Session) {
	return func(s *Session) {
		s.position = p
	}
}

// WithStatusPublisher publishes a status after every tick.
func WithStatusPublisher(p status.Publisher) func(*Session) {
	return func(s *Session) {
		s.publisher = p
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) func(*Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session owns one client connection. It is driven by a single goroutine.
type Session struct {
	conn   *wire.Conn
	core   *flight.Core
	source input.Source

	mission   Mission
	flow      *fusion.FlowEstimator
	position  PositionSource
	publisher status.Publisher
	logger    *slog.Logger
	now       func() time.Time

	workdir string
	ticks   uint64
}

// New prepares a session. The connection is not read until Handshake or Step.
func New(conn *wire.Conn, core *flight.Core, source input.Source, options ...func(*Session)) (*Session, error) {
	s := Session{
		conn:    conn,
		core:    core,
		source:  source,
		mission: MissionCore,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, option := range options {
		option(&s)
	}

	if s.mission == MissionFlow && s.flow == nil {
		return nil, errors.New("session: flow mission needs a flow estimator")
	}
	if _, err := ParseMission(string(s.mission)); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &s, nil
}

// Mission returns the telemetry layout in use.
func (s *Session) Mission() Mission { return s.mission }

// WorkDir returns the string received during the handshake.
func (s *Session) WorkDir() string { return s.workdir }

// Ticks returns the number of completed ticks.
func (s *Session) Ticks() uint64 { return s.ticks }

// Handshake reads the client's working directory.
func (s *Session) Handshake() error {
	dir, err := s.conn.ReceiveString()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	s.workdir = dir

	attrs := []any{"workdir", dir, "mission", string(s.mission), "timeout", s.conn.Timeout()}
	if s.flow != nil {
		attrs = append(attrs, "frame", humanize.Bytes(uint64(s.flow.FrameSize())))
	}
	s.logger.Info("handshake complete", attrs...)
	return nil
}

func terminate(reason error) Result {
	return Result{Kind: Terminate, Reason: reason}
}

// Step runs one tick. Any channel failure or demand source failure
// terminates the session; rejected telemetry does not.
func (s *Session) Step(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return terminate(err)
	}

	values, err := s.conn.ReceiveFloats(CoreFloats + s.mission.ExtraFloats())
	if err != nil {
		return terminate(err)
	}
	t := s.mission.decode(values)

	if s.mission == MissionFlow {
		frame, err := s.conn.ReceiveBytes(s.flow.FrameSize())
		if err != nil {
			return terminate(err)
		}
		v, err := s.flow.Process(frame, *t.Altitude, t.Timestep)
		if err != nil {
			s.logger.Warn("flow frame dropped", "tick", s.ticks, "error", err)
		} else {
			t.Flow = &v
		}
	}

	if t.GPS == nil && s.position != nil {
		if p, ok := s.position.Latest(); ok {
			t.GPS = &p
		}
	}

	demand, err := s.source.Poll()
	if err != nil {
		s.source.Error(err)
		return terminate(fmt.Errorf("session: demand source: %w", err))
	}

	thrusts, err := s.core.Update(t, demand)
	if err != nil {
		s.logger.Warn("telemetry rejected, holding thrusts", "tick", s.ticks, "error", err)
		if s.flow != nil {
			// The next frame must not be matched against this tick's.
			s.flow.Reset()
		}
	}

	if err := s.conn.SendFloats(thrusts.Float32s()); err != nil {
		return terminate(err)
	}

	s.publish(t, demand, thrusts, err)
	s.ticks++
	return Result{Kind: Continue, Thrusts: thrusts}
}

func (s *Session) publish(t flight.Telemetry, d input.Demand, thrusts flight.Thrusts, rejected error) {
	if s.publisher == nil {
		return
	}

	st := status.Status{
		Tick:    s.ticks,
		Time:    s.now(),
		Mission: string(s.mission),
		Modes:   d.Modes(),
		Flight:  s.core.Snapshot(),
		Thrusts: thrusts,
	}
	// Non-finite values cannot be encoded as JSON, so a rejected tick only
	// reports the error.
	if rejected != nil {
		st.Error = rejected.Error()
	} else {
		st.Timestep = t.Timestep
		st.Attitude = t.Attitude
		st.Altitude = t.Altitude
		st.GPS = t.GPS
		st.Flow = t.Flow
	}

	if err := s.publisher.Publish(st); err != nil {
		s.logger.Warn("status publish failed", "tick", s.ticks, "error", err)
	}
}

// Run drives Step until the session terminates. The connection is closed when
// ctx is done, which unblocks a pending receive. A peer that times out or
// hangs up ends the session cleanly and Run returns nil.
func (s *Session) Run(ctx context.Context) error {
	start := s.now()
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	var reason error
	for {
		r := s.Step(ctx)
		if r.Kind == Terminate {
			reason = r.Reason
			break
		}
	}

	if ctx.Err() != nil {
		reason = ctx.Err()
	}

	s.logger.Info("session ended",
		"ticks", humanize.Comma(int64(s.ticks)),
		"duration", s.now().Sub(start).Round(time.Millisecond),
		"reason", reason,
	)

	if errors.Is(reason, wire.ErrTimeout) || errors.Is(reason, wire.ErrClosed) {
		return nil
	}
	return reason
}
