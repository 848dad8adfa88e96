package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"asv-survey/internal/actuator"
	"asv-survey/internal/config"
	"asv-survey/internal/web"
)

func simConfig(t *testing.T, extra string) config.Config {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
mission:
  name: sim-run
  vehicle_id: asv-test
helm:
  read_timeout: 500ms
  poll:
    max_attempts: 50
    interval: 20ms
  simulate:
    enable: true
    listen: 127.0.0.1:0
    center_lat_deg: 47.6
    center_lon_deg: -122.3
    interval: 20ms
sonde:
  mode: sim
  echo_settle: 10ms
  parameters: [1, 4]
  poll:
    max_attempts: 5
    interval: 10ms
actuator:
  backend: memory
  duration: 10ms
  audit_log: %s
survey:
  interval: 10ms
  cycles: 3
store:
  sqlite: %s
  csv_dir: %s
web:
  enable: true
%s`, filepath.Join(dir, "pumps.log"), filepath.Join(dir, "survey.db"), filepath.Join(dir, "csv"), extra)
	cfg, err := config.Parse([]byte(body), config.Overrides{})
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func TestRuntime_SimulatedMission(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cfg := simConfig(t, "")
	status := web.NewStatus()
	rt, err := newRuntime(ctx, cfg, status)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	if err := rt.loop.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := rt.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	n, err := rt.docs.Count(ctx, "sim-run")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("records=%d want 3", n)
	}
	recs, err := rt.docs.Records(ctx, "sim-run")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if recs[0].Metadata.VehicleID != "asv-test" || len(recs[0].Params) != 2 {
		t.Fatalf("record=%+v", recs[0])
	}

	snap := status.Snapshot(time.Now().UTC())
	if snap.Survey == nil || snap.Survey.Records != 3 {
		t.Fatalf("status survey=%+v", snap.Survey)
	}
	if !strings.Contains(snap.Stats["csv"], "rows=3") {
		t.Fatalf("csv stat=%q", snap.Stats["csv"])
	}
}

func TestRuntime_TimedSamplingWritesAudit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cfg := simConfig(t, "sampling:\n  every: 1ns\n")
	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	if err := rt.loop.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := rt.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rt.seq.Current(); got == 0 {
		t.Fatalf("no channel fired")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(cfg.Actuator.AuditLog)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) < 3 || !strings.Contains(lines[0], ", 1, 0, about to sample") || !strings.Contains(string(b), ", 1, 1") {
		t.Fatalf("audit=%q", lines)
	}
}

func TestOpenBank_Memory(t *testing.T) {
	b, err := openBank(config.ActuatorConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("openBank: %v", err)
	}
	if _, ok := b.(*actuator.MemoryBank); !ok {
		t.Fatalf("bank=%T want *actuator.MemoryBank", b)
	}
	if _, err := openBank(config.ActuatorConfig{Backend: "relay"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestRuntime_WorklistBackedUpAtLoad(t *testing.T) {
	dir := t.TempDir()
	wl := filepath.Join(dir, "targets.txt")
	body := "47.6,-122.3\n47.61,-122.31\n"
	if err := os.WriteFile(wl, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg := simConfig(t, fmt.Sprintf("sampling:\n  worklist: %s\n", wl))
	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	b, err := os.ReadFile(filepath.Join(dir, "targets_backup.txt"))
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if string(b) != body || rt.worklist.Len() != 2 {
		t.Fatalf("backup=%q worklist=%d", b, rt.worklist.Len())
	}
}

func TestChannelPatterns(t *testing.T) {
	gpio := config.ActuatorConfig{Backend: "gpio", GPIO: config.GPIOConfig{Offsets: []int{5, 6, 13, 19, 26, 12, 16, 20, 21, 4}}}
	pats := channelPatterns(gpio)
	if len(pats) != 10 || pats[9].Bits() != 1<<9 {
		t.Fatalf("gpio patterns=%v", pats)
	}
	if pats := channelPatterns(config.ActuatorConfig{Backend: "pca9555"}); pats != nil {
		t.Fatalf("pca9555 patterns=%v want default", pats)
	}
}

func TestNewRuntime_DialFailureCleansUp(t *testing.T) {
	cfg := simConfig(t, "")
	cfg.Helm.Simulate.Enable = false
	cfg.Helm.Addr = "127.0.0.1:1"
	cfg.Helm.DialTimeout = 200 * time.Millisecond
	if _, err := newRuntime(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected dial error")
	}
}
