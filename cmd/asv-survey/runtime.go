package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"asv-survey/internal/actuator"
	"asv-survey/internal/config"
	"asv-survey/internal/geo"
	"asv-survey/internal/helm"
	"asv-survey/internal/proximity"
	"asv-survey/internal/sim"
	"asv-survey/internal/sonde"
	"asv-survey/internal/store"
	"asv-survey/internal/survey"
	"asv-survey/internal/udp"
	"asv-survey/internal/web"
)

// runtime owns every device and sink for one mission.
type runtime struct {
	cfg config.Config

	helmSim  *sim.HelmServer
	helm     *helm.Client
	session  *sonde.Session
	seq      *actuator.Sequencer
	worklist *proximity.Worklist
	docs     *store.DocumentStore
	flat     *store.FlatFile
	stream   *web.Stream
	loop     *survey.Loop

	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newRuntime(ctx context.Context, cfg config.Config, status *web.Status) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	fail := func(err error) (*runtime, error) {
		_ = rt.Close()
		return nil, err
	}
	var err error

	helmCfg := helm.Config{
		Addr:          cfg.Helm.Addr,
		DialTimeout:   cfg.Helm.DialTimeout,
		ReadTimeout:   cfg.Helm.ReadTimeout,
		WritePacing:   cfg.Helm.WritePacing,
		ReceiveSettle: cfg.Helm.ReceiveSettle,
		Poll:          cfg.Helm.Poll,
	}
	if s := cfg.Helm.Simulate; s.Enable {
		rt.helmSim = sim.NewHelmServer(sim.HelmConfig{
			Listen:   s.Listen,
			Interval: s.Interval,
			Vessel: sim.Vessel{
				Center:  geo.Point{Lat: s.CenterLatDeg, Lon: s.CenterLonDeg},
				RadiusM: s.RadiusM,
				Period:  s.Period,
			},
		})
		if err := rt.helmSim.Start(ctx); err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, rt.helmSim)
		helmCfg.Addr = rt.helmSim.Addr()
	}
	rt.helm, err = helm.Dial(ctx, helmCfg)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, rt.helm)
	log.Printf("helm connected addr=%s", helmCfg.Addr)

	tr, err := openTransport(ctx, cfg.Sonde)
	if err != nil {
		return fail(err)
	}
	rt.session = sonde.NewSession(tr, sonde.Config{EchoSettle: cfg.Sonde.EchoSettle, Poll: cfg.Sonde.Poll})
	rt.closers = append(rt.closers, closerFunc(rt.session.Close))
	log.Printf("sonde transport mode=%s", cfg.Sonde.Mode)

	bank, err := openBank(cfg.Actuator)
	if err != nil {
		return fail(err)
	}
	var audit actuator.AuditLog
	if cfg.Actuator.AuditLog != "" {
		fa, err := actuator.OpenFileAudit(cfg.Actuator.AuditLog)
		if err != nil {
			_ = bank.Close()
			return fail(err)
		}
		rt.closers = append(rt.closers, fa)
		audit = fa
	}
	rt.seq = actuator.New(bank, audit, actuator.Config{Patterns: channelPatterns(cfg.Actuator), Duration: cfg.Actuator.Duration})
	rt.closers = append(rt.closers, rt.seq)
	log.Printf("actuator backend=%s channels=%d duration=%s", cfg.Actuator.Backend, rt.seq.Size(), rt.seq.Duration())

	if cfg.Sampling.Worklist != "" {
		targets, err := proximity.LoadWorklistFile(cfg.Sampling.Worklist)
		if err != nil {
			return fail(err)
		}
		backup, err := proximity.BackupWorklistFile(cfg.Sampling.Worklist)
		if err != nil {
			return fail(fmt.Errorf("worklist backup: %w", err))
		}
		log.Printf("worklist backup=%s", backup)
		rt.worklist = proximity.NewWorklist(targets, cfg.Sampling.ThresholdM)
		log.Printf("worklist path=%s targets=%d threshold_m=%.1f", cfg.Sampling.Worklist, len(targets), cfg.Sampling.ThresholdM)
	}

	var sinks []survey.Sink
	if cfg.Store.SQLite != "" {
		rt.docs, err = store.OpenDocumentStore(cfg.Store.SQLite)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, rt.docs)
		sinks = append(sinks, rt.docs)
	}
	if cfg.Store.CSVDir != "" {
		rt.flat, err = store.OpenFlatFile(cfg.Store.CSVDir, cfg.Mission.Name)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, rt.flat)
		sinks = append(sinks, rt.flat)
		if status != nil {
			status.AddStat("csv", rt.flat.Stats)
		}
	}
	if cfg.Store.UDPDest != "" {
		b, err := udp.NewBroadcaster(cfg.Store.UDPDest)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, b)
		sinks = append(sinks, b)
	}
	if cfg.Web.Enable {
		rt.stream = web.NewStream(0)
		rt.closers = append(rt.closers, rt.stream)
		sinks = append(sinks, rt.stream)
	}
	if len(sinks) == 0 {
		log.Printf("survey: no sinks configured; records are only logged")
	}

	rt.loop, err = survey.New(survey.Config{
		Mission: cfg.Mission.Name,
		Metadata: survey.Metadata{
			VehicleID:    cfg.Mission.VehicleID,
			SondeSerials: cfg.Mission.SondeSerials,
		},
		ParameterIDs:          cfg.Sonde.Parameters,
		BootstrapMaxAttempts:  cfg.Survey.BootstrapMaxAttempts,
		BootstrapRetryDelay:   cfg.Survey.BootstrapRetryDelay,
		Cycles:                cfg.Survey.Cycles,
		Interval:              cfg.Survey.Interval,
		RenegotiateOnMismatch: cfg.Survey.Renegotiate(),
		SampleEvery:           cfg.Sampling.Every,
		WorklistPath:          cfg.Sampling.Worklist,
	}, survey.Deps{
		Helm:     rt.helm,
		Sonde:    rt.session,
		Worklist: rt.worklist,
		Sampler:  rt.seq,
		Sinks:    sinks,
	})
	if err != nil {
		return fail(err)
	}
	if status != nil {
		status.SetSource(rt.loop)
	}
	return rt, nil
}

func openTransport(ctx context.Context, cfg config.SondeConfig) (sonde.Transport, error) {
	switch cfg.Mode {
	case "serial":
		return sonde.OpenSerial(sonde.SerialConfig{
			Path:          cfg.Serial.Path,
			Options:       sonde.PortOptions{BaudRate: cfg.Serial.Baud},
			ReadTick:      cfg.Serial.ReadTick,
			LineTimeout:   cfg.Serial.LineTimeout,
			CommandSettle: cfg.Serial.CommandSettle,
		})
	case "http":
		return sonde.DialHTTP(ctx, sonde.HTTPConfig{BaseURL: cfg.HTTP.URL, Timeout: cfg.HTTP.Timeout})
	case "sim":
		return sonde.NewSimulator(sonde.SimConfig{
			NotReadyPolls: cfg.SimNotReady,
			ShortFrames:   cfg.SimShortRead,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sonde mode %q", cfg.Mode)
	}
}

func openBank(cfg config.ActuatorConfig) (actuator.Bank, error) {
	switch cfg.Backend {
	case "pca9555":
		return actuator.OpenPCA9555(cfg.I2C.Bus, cfg.I2C.Addr)
	case "gpio":
		return actuator.OpenGPIOBank(cfg.GPIO.Chip, cfg.GPIO.Offsets)
	case "memory":
		return &actuator.MemoryBank{}, nil
	default:
		return nil, fmt.Errorf("unknown actuator backend %q", cfg.Backend)
	}
}

// channelPatterns gives GPIO banks one line per channel. Expander banks use
// the default two-port wiring.
func channelPatterns(cfg config.ActuatorConfig) []actuator.Pattern {
	if cfg.Backend == "gpio" {
		return actuator.LinePatterns(len(cfg.GPIO.Offsets))
	}
	return nil
}

func (rt *runtime) Stopper() web.Stopper {
	if rt == nil || rt.seq == nil {
		return nil
	}
	return rt.seq
}

// Close releases everything in reverse open order. The sequencer clears the
// bank before its bus is released.
func (rt *runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}
