package flight

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/input"
	"github.com/relabs-tech/flight_core/internal/orientation"
)

const tolerance = 1e-9

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func ptr[T any](v T) *T { return &v }

func newCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestMixer_Demand(t *testing.T) {
	m := Mixer{Signs: XConfiguration, MaxThrust: 20}

	testCases := []struct {
		name   string
		demand Axes
		want   Thrusts
	}{
		{"neutral", Axes{}, Thrusts{10, 10, 10, 10}},
		{"pitch", Axes{Pitch: 1}, Thrusts{11, 9, 9, 11}},
		{"roll", Axes{Roll: 1}, Thrusts{9, 9, 11, 11}},
		{"yaw", Axes{Yaw: 1}, Thrusts{11, 9, 11, 9}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Mix(10, tc.demand, Axes{}); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMixer_CorrectionIsMultiplicative(t *testing.T) {
	m := Mixer{Signs: XConfiguration}

	got := m.Mix(10, Axes{}, Axes{Roll: 0.1})
	want := Thrusts{9, 9, 11, 11}
	for i := range want {
		if !near(got[i], want[i], tolerance) {
			t.Errorf("motor %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// The same correction at half the thrust moves the motors half as much.
	got = m.Mix(5, Axes{}, Axes{Roll: 0.1})
	if !near(got[2]-got[0], 1, tolerance) {
		t.Errorf("expected spread 1, got %v", got[2]-got[0])
	}
}

func TestMixer_Clamp(t *testing.T) {
	m := Mixer{Signs: XConfiguration, MaxThrust: 20}

	testCases := []struct {
		name   string
		thrust float64
		want   float64
	}{
		{"negative", -5, 0},
		{"above max", 100, 20},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
		{"negative inf", math.Inf(-1), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i, v := range m.Mix(tc.thrust, Axes{}, Axes{}) {
				if v != tc.want {
					t.Errorf("motor %d: expected %v, got %v", i, tc.want, v)
				}
			}
		})
	}

	unbounded := Mixer{Signs: XConfiguration}
	for i, v := range unbounded.Mix(math.Inf(1), Axes{}, Axes{}) {
		if v != 0 {
			t.Errorf("motor %d: expected infinite thrust to clamp to 0, got %v", i, v)
		}
	}
}

func TestCore_FailsafeHoldsAltitude(t *testing.T) {
	c := newCore(t)

	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(10.0)}, input.Failsafe); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(5.0)}, input.Failsafe); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap := c.Snapshot()
	if !snap.AltitudeHold || snap.AltitudeTarget != 10 {
		t.Fatalf("expected hold at 10, got %+v", snap)
	}
	if snap.Climb <= 0.5 {
		t.Errorf("expected failsafe below target to climb, got climb %v", snap.Climb)
	}
	if hover := c.Policy().Thrust(0.5); snap.Thrust <= hover {
		t.Errorf("expected thrust above hover %v, got %v", hover, snap.Thrust)
	}
}

func TestLatch_Sequence(t *testing.T) {
	var l Latch

	engage := []bool{false, true, true, false, true}
	values := []float64{1, 2, 3, 4, 5}
	wantTargets := []float64{0, 2, 2, 0, 5}
	wantEdges := []Edge{EdgeNone, EdgeEngaged, EdgeNone, EdgeDisengaged, EdgeEngaged}

	for i := range engage {
		target, edge := l.Update(engage[i], values[i])
		if target != wantTargets[i] || edge != wantEdges[i] {
			t.Errorf("tick %d: expected (%v, %s), got (%v, %s)", i, wantTargets[i], wantEdges[i], target, edge)
		}
	}
}

func TestPositionLatch_Anchor(t *testing.T) {
	var l PositionLatch

	l.Anchor(fusion.LatLon{Lat: 1, Lon: 1})
	if target, _ := l.Update(false, fusion.LatLon{}); target != (fusion.LatLon{}) {
		t.Errorf("anchor must not move a released latch, got %v", target)
	}

	l.Update(true, fusion.LatLon{Lat: 48, Lon: 11})
	l.Anchor(fusion.LatLon{Lat: 49, Lon: 12})
	if target, _ := l.Update(true, fusion.LatLon{Lat: 50, Lon: 13}); target != (fusion.LatLon{Lat: 49, Lon: 12}) {
		t.Errorf("expected anchored target, got %v", target)
	}
}

func TestDeadband_Blend(t *testing.T) {
	d := Deadband{Low: 0.4, High: 0.6}

	testCases := []struct {
		name     string
		throttle float64
		engaged  bool
		want     float64
	}{
		{"inside band engaged", 0.5, true, 0.6},
		{"outside band engaged", 0.8, true, 0.8},
		{"inside band released", 0.5, false, 0.5},
		{"band edge is outside", 0.4, true, 0.4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Blend(tc.throttle, 0.1, tc.engaged); !near(got, tc.want, tolerance) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestThrustPolicies(t *testing.T) {
	linear := LinearThrust{Baseline: 5.335, Factor: 0.5}
	if got := linear.Thrust(0.5); !near(got, 5.585, tolerance) {
		t.Errorf("linear: expected 5.585, got %v", got)
	}

	root := RootThrust{Scale: 2, Offset: 1}
	if got := root.Thrust(16); !near(got, 5, tolerance) {
		t.Errorf("root: expected 5, got %v", got)
	}
	if got := root.Thrust(-1); got != 1 {
		t.Errorf("root: expected negative climb to read as zero, got %v", got)
	}

	if _, err := (ThrustConfig{Policy: "cubic"}).Build(); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestCore_HoverAtMidThrottle(t *testing.T) {
	c := newCore(t)

	got, err := c.Update(Telemetry{Timestep: 0.02}, input.Demand{Throttle: 0.5})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	for i, v := range got {
		if !near(v, 5.585, tolerance) {
			t.Errorf("motor %d: expected 5.585, got %v", i, v)
		}
	}
}

func TestCore_StabilityOpposesTilt(t *testing.T) {
	c := newCore(t)

	got, err := c.Update(Telemetry{
		Timestep: 0.02,
		Attitude: orientation.Attitude{Pitch: 0.1},
	}, input.Demand{Throttle: 0.5})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Pitch correction is -0.025; motors with a positive pitch sign slow down.
	if !(got[0] < got[1] && got[3] < got[2]) {
		t.Errorf("unexpected thrusts %v", got)
	}
	if !near(got[0], got[3], tolerance) || !near(got[1], got[2], tolerance) {
		t.Errorf("expected symmetric response, got %v", got)
	}
}

func TestCore_InvalidTelemetryHoldsThrusts(t *testing.T) {
	c := newCore(t)

	got, err := c.Update(Telemetry{Timestep: 0.02, Attitude: orientation.Attitude{Roll: math.NaN()}}, input.Demand{})
	if !errors.Is(err, ErrInvalidTelemetry) {
		t.Fatalf("expected ErrInvalidTelemetry, got %v", err)
	}
	if got != (Thrusts{}) {
		t.Errorf("expected zero thrusts before the first valid tick, got %v", got)
	}

	first, err := c.Update(Telemetry{Timestep: 0.02}, input.Demand{Throttle: 0.5})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err = c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(math.Inf(1))}, input.Demand{Throttle: 1})
	if !errors.Is(err, ErrInvalidTelemetry) {
		t.Fatalf("expected ErrInvalidTelemetry, got %v", err)
	}
	if got != first {
		t.Errorf("expected previous thrusts %v, got %v", first, got)
	}
}

func TestCore_AltitudeHold(t *testing.T) {
	c := newCore(t)
	hold := input.Demand{Throttle: 0.5, Flags: input.Flags{AltitudeHold: true}}

	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(10.0)}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := c.Snapshot()
	if !snap.AltitudeHold || snap.AltitudeTarget != 10 || snap.Climb != 0.5 {
		t.Errorf("unexpected engage snapshot %+v", snap)
	}

	// One meter low: Kp 10 adds 10 to the climb demand.
	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(9.0)}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := c.Snapshot().Climb; !near(got, 10.5, tolerance) {
		t.Errorf("expected climb 10.5, got %v", got)
	}

	// Outside the deadband the pilot's throttle wins.
	hold.Throttle = 0.8
	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(9.0)}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := c.Snapshot().Climb; got != 0.8 {
		t.Errorf("expected climb 0.8, got %v", got)
	}

	// Releasing and re-engaging captures a new target.
	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(9.0)}, input.Demand{Throttle: 0.5}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if snap := c.Snapshot(); snap.AltitudeHold || snap.AltitudeTarget != 0 {
		t.Errorf("expected released hold, got %+v", snap)
	}
	hold.Throttle = 0.5
	if _, err := c.Update(Telemetry{Timestep: 0.02, Altitude: ptr(12.0)}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if snap := c.Snapshot(); snap.AltitudeTarget != 12 || snap.Climb != 0.5 {
		t.Errorf("expected new target 12 with neutral climb, got %+v", snap)
	}
}

func TestCore_AltitudeHoldNeedsAltitude(t *testing.T) {
	c := newCore(t)

	if _, err := c.Update(Telemetry{Timestep: 0.02}, input.Demand{Throttle: 0.5, Flags: input.Flags{AltitudeHold: true}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.Snapshot().AltitudeHold {
		t.Error("altitude hold must not engage without altitude telemetry")
	}
}

func TestCore_GPSPositionHold(t *testing.T) {
	c := newCore(t)
	hold := input.Demand{Throttle: 0.5, Flags: input.Flags{PositionHold: true}}
	origin := fusion.LatLon{Lat: 48, Lon: 11}

	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &origin}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := c.Snapshot()
	if snap.PositionHold != HoldGPS || snap.PositionTarget != origin {
		t.Fatalf("unexpected engage snapshot %+v", snap)
	}
	if snap.HoldCorrection != (Axes{}) {
		t.Errorf("expected no correction on target, got %+v", snap.HoldCorrection)
	}

	// Drifted north: the hold pitches back.
	drifted := fusion.LatLon{Lat: 48.00001, Lon: 11}
	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &drifted}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	corr := c.Snapshot().HoldCorrection
	if !near(corr.Pitch, 0.05, 1e-6) || !near(corr.Roll, 0, 1e-9) {
		t.Errorf("expected pitch 0.05, got %+v", corr)
	}

	// Pilot input moves the hold point along with the vehicle.
	hold.Pitch = 0.5
	moved := fusion.LatLon{Lat: 48.0001, Lon: 11.0001}
	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &moved}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap = c.Snapshot()
	if snap.PositionTarget != moved || snap.HoldCorrection != (Axes{}) {
		t.Errorf("expected re-anchored target, got %+v", snap)
	}
}

func TestCore_GPSDropoutKeepsTarget(t *testing.T) {
	c := newCore(t)
	hold := input.Demand{Throttle: 0.5, Flags: input.Flags{PositionHold: true}}
	origin := fusion.LatLon{Lat: 48, Lon: 11}

	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &origin}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// No fix this tick: the target survives and no GPS correction is applied.
	if _, err := c.Update(Telemetry{Timestep: 0.02}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap := c.Snapshot()
	if snap.PositionTarget != origin || snap.PositionHold != HoldNone || snap.HoldCorrection != (Axes{}) {
		t.Errorf("expected kept target without correction, got %+v", snap)
	}

	// The fix returns displaced: the hold pulls back to the original target.
	drifted := fusion.LatLon{Lat: 48.00001, Lon: 11}
	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &drifted}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	snap = c.Snapshot()
	if snap.PositionTarget != origin {
		t.Errorf("expected target %v after dropout, got %v", origin, snap.PositionTarget)
	}
	if !near(snap.HoldCorrection.Pitch, 0.05, 1e-6) {
		t.Errorf("expected pitch 0.05 back towards the target, got %+v", snap.HoldCorrection)
	}

	// Releasing the switch still clears the target.
	if _, err := c.Update(Telemetry{Timestep: 0.02}, input.Demand{Throttle: 0.5}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := c.Update(Telemetry{Timestep: 0.02, GPS: &drifted}, hold); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := c.Snapshot().PositionTarget; got != drifted {
		t.Errorf("expected new target %v after re-engage, got %v", drifted, got)
	}
}

func TestCore_FlowHoverInPlace(t *testing.T) {
	c := newCore(t)

	_, err := c.Update(Telemetry{
		Timestep: 0.02,
		Flow:     &fusion.Velocity{Leftward: 0.2, Forward: 0.4},
	}, input.Demand{Throttle: 0.5, Flags: input.Flags{PositionHold: true}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap := c.Snapshot()
	if snap.PositionHold != HoldFlow {
		t.Fatalf("expected flow hold, got %q", snap.PositionHold)
	}
	if !near(snap.HoldCorrection.Pitch, -0.2, tolerance) || !near(snap.HoldCorrection.Roll, -0.1, tolerance) {
		t.Errorf("unexpected hold correction %+v", snap.HoldCorrection)
	}
}

func TestCore_AutopilotYaw(t *testing.T) {
	c := newCore(t)

	if _, err := c.Update(Telemetry{Timestep: 0.02}, input.Demand{Yaw: 1, Flags: input.Flags{Autopilot: true}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := c.Snapshot().Demand.Yaw; got != 0.05 {
		t.Errorf("expected autopilot yaw demand 0.05, got %v", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deadband = Deadband{Low: 0.7, High: 0.3}
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for inverted deadband")
	}
}

func TestConfig_ValidateNonFinite(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"pitch roll kp", func(c *Config) { c.PitchRoll.Kp = math.NaN() }},
		{"yaw kd", func(c *Config) { c.Yaw.Kd = math.Inf(1) }},
		{"altitude ki", func(c *Config) { c.Altitude.Ki = math.NaN() }},
		{"position integral limit", func(c *Config) { c.Position.IntegralLimit = math.Inf(1) }},
		{"thrust baseline", func(c *Config) { c.Thrust.Baseline = math.NaN() }},
		{"thrust scale", func(c *Config) { c.Thrust.Scale = math.Inf(-1) }},
		{"autopilot yaw", func(c *Config) { c.AutopilotYawDemand = math.NaN() }},
		{"deadband low", func(c *Config) { c.Deadband.Low = math.NaN() }},
		{"deadband high", func(c *Config) { c.Deadband.High = math.Inf(1) }},
		{"max thrust", func(c *Config) { c.MaxThrust = math.Inf(1) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadConfig_RejectsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("pitchRoll:\n  kp: .nan\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected .nan gain to be rejected")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte(`name: test
yaw:
  kp: 2
thrust:
  policy: root
  scale: 3
  offset: 1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "test" || cfg.Yaw.Kp != 2 || cfg.Thrust.Policy != PolicyRoot {
		t.Errorf("unexpected config %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.PitchRoll.Kp != 0.25 || cfg.MaxThrust != 20 {
		t.Errorf("expected defaults to survive, got %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
