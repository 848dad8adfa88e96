package sim

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"asv-survey/internal/geo"
	"asv-survey/internal/helm"
	"asv-survey/internal/nmea"
	"asv-survey/internal/retry"
)

func TestVessel_PositionStaysInRadius(t *testing.T) {
	v := Vessel{Center: geo.Point{Lat: 45, Lon: -122}, RadiusM: 200, Period: 60 * time.Second}
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		now := start.Add(time.Duration(i) * 500 * time.Millisecond)
		p, hdg := v.Position(now)
		if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsNaN(hdg) {
			t.Fatalf("NaN at step %d: %+v hdg=%v", i, p, hdg)
		}
		if hdg < 0 || hdg >= 360 {
			t.Fatalf("heading out of range: %v", hdg)
		}
		if d := geo.Distance(v.Center, p); d > v.RadiusM*1.01 {
			t.Fatalf("step %d: %.1f m from center, radius %.1f", i, d, v.RadiusM)
		}
	}
}

func TestVessel_Position_DeterministicForNow(t *testing.T) {
	v := Vessel{Center: geo.Point{Lat: 1, Lon: 2}}
	now := time.Date(2025, 6, 1, 12, 0, 0, 123, time.UTC)
	p1, h1 := v.Position(now)
	p2, h2 := v.Position(now)
	if p1 != p2 || h1 != h2 {
		t.Fatalf("expected deterministic result for same now")
	}
}

func TestHelmServer_BurstDecodes(t *testing.T) {
	s := NewHelmServer(HelmConfig{Vessel: Vessel{Center: geo.Point{Lat: -33.86, Lon: 151.21}, RadiusM: 50}})
	now := time.Date(2025, 6, 1, 7, 8, 9, 500_000_000, time.UTC)
	blob := s.burst(now)

	gga, ok := nmea.FindFirstByPrefix(blob, nmea.PrefixPosition)
	if !ok {
		t.Fatalf("no GGA in %q", blob)
	}
	fix, err := nmea.ParseFix(gga)
	if err != nil {
		t.Fatalf("ParseFix: %v", err)
	}
	want, _ := s.cfg.Vessel.Position(now)
	if d := geo.Distance(want, fix.Point); d > 1 {
		t.Fatalf("fix %v is %.2f m from vessel %v", fix.Point, d, want)
	}
	if fix.TimeOfDay == nil || *fix.TimeOfDay != 7*time.Hour+8*time.Minute+9500*time.Millisecond {
		t.Fatalf("time of day=%v", fix.TimeOfDay)
	}

	mode, ok := nmea.FindFirstByPrefix(blob, nmea.PrefixMode)
	if !ok {
		t.Fatalf("no PSEAD in %q", blob)
	}
	if m, err := nmea.ParseControlMode(mode); err != nil || m != nmea.ModeStandby {
		t.Fatalf("mode=%v err=%v want standby", m, err)
	}
	if _, ok := nmea.FindFirstByPrefix(blob, nmea.PrefixAttitude); !ok {
		t.Fatalf("no PSEAA in %q", blob)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHelmServer_WithClient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	center := geo.Point{Lat: 47.6, Lon: -122.3}
	s := NewHelmServer(HelmConfig{Interval: 20 * time.Millisecond, Vessel: Vessel{Center: center, RadiusM: 100}})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	c, err := helm.Dial(ctx, helm.Config{
		Addr:        s.Addr(),
		ReadTimeout: 200 * time.Millisecond,
		Poll:        retry.Policy{MaxAttempts: 50, Interval: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	fix, err := c.PollPosition(ctx)
	if err != nil {
		t.Fatalf("PollPosition: %v", err)
	}
	if d := geo.Distance(center, fix.Point); d > 110 {
		t.Fatalf("fix %.1f m from center", d)
	}

	if err := c.SetMode(ctx, helm.CmdStationKeep); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	waitFor(t, "station keep", func() bool { return s.Mode() == nmea.ModeStationKeep })

	m := helm.NewMission([]geo.Point{
		geo.Offset(center, 20, 0),
		geo.Offset(center, 20, 20),
		geo.Offset(center, 0, 20),
	}, center, 50)
	if err := c.UploadWithDownloadMode(ctx, m); err != nil {
		t.Fatalf("UploadWithDownloadMode: %v", err)
	}
	waitFor(t, "waypoint mode", func() bool { return s.Mode() == nmea.ModeWaypoint })
	if got := s.Waypoints(); got != 4 {
		t.Fatalf("waypoints=%d want 4 (recovery + 3)", got)
	}
	cmds := s.Commands()
	if len(cmds) < 2 || !strings.HasPrefix(cmds[1], "PSEAC,F,5,") {
		t.Fatalf("commands=%q want file download header counting 5 sentences", cmds)
	}

	// Older bursts may still be queued on the socket.
	var ctrl nmea.ControlMode
	for i := 0; i < 200 && ctrl != nmea.ModeWaypoint; i++ {
		if ctrl, err = c.PollControlMode(ctx); err != nil {
			t.Fatalf("PollControlMode: %v", err)
		}
	}
	if ctrl != nmea.ModeWaypoint {
		t.Fatalf("reported mode=%v want waypoint", ctrl)
	}
}

func TestHelmServer_CloseWithoutCancel(t *testing.T) {
	s := NewHelmServer(HelmConfig{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return")
	}
}
