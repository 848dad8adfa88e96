package sonde

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
)

// SimConfig configures the in-memory sonde.
type SimConfig struct {
	// Params is the device's power-on parameter set. Default [1 4].
	Params []int
	// NotReadyPolls is how many para/ssn queries answer "#" before the
	// device starts answering.
	NotReadyPolls int
	// ShortFrames is how many telemetry frames, after the device is ready,
	// come back one value short.
	ShortFrames int
}

// Simulator models the sonde command set without any I/O.
type Simulator struct {
	mu        sync.Mutex
	params    []int
	notReady  int
	short     int
	echo      bool
	runOnBoot bool
	running   bool
	tick      int
}

func NewSimulator(cfg SimConfig) *Simulator {
	params := append([]int(nil), cfg.Params...)
	if len(params) == 0 {
		params = []int{1, 4}
	}
	return &Simulator{
		params:    params,
		notReady:  cfg.NotReadyPolls,
		short:     cfg.ShortFrames,
		runOnBoot: true,
	}
}

func (s *Simulator) Command(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "?Command", nil
	}
	switch fields[0] {
	case CmdInit:
		return "ok", nil
	case "setecho":
		s.echo = len(fields) > 1 && fields[1] == "1"
		return "OK", nil
	case "pwruptorun":
		s.runOnBoot = len(fields) > 1 && fields[1] == "1"
		return "OK", nil
	case CmdParameters:
		if len(fields) > 1 {
			ids := make([]int, 0, len(fields)-1)
			for _, f := range fields[1:] {
				id, err := strconv.Atoi(f)
				if err != nil {
					return "?Command", nil
				}
				ids = append(ids, id)
			}
			s.params = ids
			return "OK", nil
		}
		if s.notReady > 0 {
			s.notReady--
			return NotReadyMarker, nil
		}
		ids := make([]string, len(s.params))
		for i, id := range s.params {
			ids[i] = strconv.Itoa(id)
		}
		return strings.Join(ids, " "), nil
	case CmdReadTelemetry:
		if s.notReady > 0 {
			s.notReady--
			return NotReadyMarker, nil
		}
		return s.frame(), nil
	default:
		return "?Command", nil
	}
}

func (s *Simulator) Send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(cmd) == CmdRun {
		s.running = true
	}
	return nil
}

func (s *Simulator) Close() error { return nil }

// Running reports whether a run command was received.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) frame() string {
	s.tick++
	n := len(s.params)
	if s.short > 0 && n > 0 {
		s.short--
		n--
	}
	vals := make([]string, 0, n)
	for _, id := range s.params[:n] {
		vals = append(vals, strconv.FormatFloat(simValue(id, s.tick), 'f', 2, 64))
	}
	return strings.Join(vals, " ")
}

// simValue is a slow deterministic drift around a per-parameter baseline.
func simValue(id, tick int) float64 {
	base := float64(10 + id%23)
	return base + math.Sin(float64(tick)/10+float64(id))
}
