package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/flight"
	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/gps"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/session"
	"github.com/relabs-tech/flight_core/internal/status"
	"github.com/relabs-tech/flight_core/internal/wire"
)

// gpsMaxAge bounds how old a producer fix may be to serve as position.
const gpsMaxAge = 2 * time.Second

// hoverDemand is used when no remote sticks are configured: hold the current
// altitude at mid throttle.
var hoverDemand = input.Demand{Throttle: 0.5, Flags: input.Flags{AltitudeHold: true}}

// ServeFMU accepts exactly one client on ln and runs a session with it until
// the client leaves, the channel times out or ctx is done. ln is closed
// after the accept.
func ServeFMU(ctx context.Context, ln net.Listener, timeout time.Duration, core *flight.Core, source input.Source, options ...func(*session.Session)) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	conn, err := ln.Accept()
	stop()
	ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("accept: %w", err)
	}
	log.Printf("fmu: client connected from %s", conn.RemoteAddr())

	s, err := session.New(wire.NewConn(conn, timeout), core, source, options...)
	if err != nil {
		conn.Close()
		return err
	}
	defer conn.Close()

	if err := s.Handshake(); err != nil {
		return err
	}
	log.Printf("fmu: client working directory %q", s.WorkDir())

	return s.Run(ctx)
}

func loadTuning(path string) (flight.Config, error) {
	if path == "" {
		return flight.DefaultConfig(), nil
	}
	return flight.LoadConfig(path)
}

// RunFMUServer listens on LISTEN_PORT and flies one simulator session.
func RunFMUServer(ctx context.Context) error {
	cfg := config.Get()

	tuning, err := loadTuning(cfg.TuningFile)
	if err != nil {
		return err
	}
	core, err := flight.New(tuning)
	if err != nil {
		return err
	}
	log.Printf("fmu: tuning %q, thrust policy %s", tuning.Name, core.Policy().Name())

	mission, err := session.ParseMission(cfg.Mission)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	options := []func(*session.Session){
		session.WithMission(mission),
		session.WithLogger(logger),
	}

	if mission == session.MissionFlow {
		flow, err := fusion.NewFlowEstimator(cfg.FlowWidth, cfg.FlowHeight, cfg.FlowPerspectiveDeg)
		if err != nil {
			return err
		}
		options = append(options, session.WithFlowEstimator(flow))
	}

	var source input.Source = input.NewStatic(hoverDemand)

	if cfg.MQTTBroker != "" {
		client, err := connectMQTT("fmu", cfg.MQTTBroker, cfg.MQTTClientIDFMU)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)

		options = append(options, session.WithStatusPublisher(status.NewMQTTPublisher(client, cfg.TopicStatus)))

		if cfg.TopicDemand != "" {
			remote, err := input.NewMQTTSource(client, cfg.TopicDemand)
			if err != nil {
				return err
			}
			source = remote
			log.Printf("fmu: pilot demand from %s", cfg.TopicDemand)
		}

		if mission != session.MissionGPS && cfg.TopicGPS != "" {
			tracker := gps.NewTracker(gpsMaxAge)
			if err := tracker.Subscribe(client, cfg.TopicGPS); err != nil {
				return err
			}
			options = append(options, session.WithPositionSource(tracker))
		}
	} else {
		log.Println("fmu: no MQTT broker configured, flying with hover demand")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		return err
	}
	log.Printf("fmu: waiting for %s client on %s (timeout %v)", mission, ln.Addr(), cfg.ReceiveTimeout())

	err = ServeFMU(ctx, ln, cfg.ReceiveTimeout(), core, source, options...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
