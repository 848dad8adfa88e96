// Package survey runs the mission: it polls position and telemetry once per
// cycle, fires the sampler near worklist targets and hands each record to
// the sinks.
package survey

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"asv-survey/internal/actuator"
	"asv-survey/internal/geo"
	"asv-survey/internal/nmea"
	"asv-survey/internal/proximity"
	"asv-survey/internal/retry"
	"asv-survey/internal/sonde"
)

var ErrBootstrap = errors.New("survey: sonde bootstrap failed")

// Helm is the position source.
type Helm interface {
	PollPosition(ctx context.Context) (nmea.Fix, error)
}

// Sonde is the telemetry session.
type Sonde interface {
	InitialSetup(ctx context.Context, ids []int) error
	NegotiateParameters(ctx context.Context) (sonde.Parameters, error)
	ReadTelemetryFrame(ctx context.Context) (sonde.Frame, error)
	Parameters() sonde.Parameters
}

// Sampler fires the sampling channels.
type Sampler interface {
	SampleAndLog(ctx context.Context, annotation string, pos geo.Point) (int, error)
	Snapshot() actuator.Snapshot
}

type Config struct {
	Mission  string
	Metadata Metadata

	// ParameterIDs is the set configured on the sonde during bootstrap.
	ParameterIDs []int
	// BootstrapMaxAttempts of 0 retries until the context ends.
	BootstrapMaxAttempts int
	BootstrapRetryDelay  time.Duration

	// Cycles of 0 runs until the context ends.
	Cycles   int
	Interval time.Duration

	// RenegotiateOnMismatch re-queries the parameter set at the start of the
	// cycle after an arity mismatch.
	RenegotiateOnMismatch bool

	// SampleEvery enables timed sampling when no worklist is configured.
	SampleEvery time.Duration
	// WorklistPath, when set, is rewritten with the remaining targets after
	// every trigger.
	WorklistPath string
}

type Deps struct {
	Helm     Helm
	Sonde    Sonde
	Worklist *proximity.Worklist
	Sampler  Sampler
	Sinks    []Sink
}

// Loop owns every device for the mission; nothing else drives them while it
// runs.
type Loop struct {
	cfg      Config
	helm     Helm
	sonde    Sonde
	worklist *proximity.Worklist
	sampler  Sampler
	sinks    []Sink
	now      func() time.Time

	renegotiate      bool
	samplingDisabled bool
	lastSample       time.Time

	mu   sync.Mutex
	stat status
}

type status struct {
	state      string
	cycles     int
	records    int
	skipped    int
	mismatches int
	samples    int
	sinkErrors map[string]int
	params     []string
	lastFix    *geo.Point
	lastFixAt  time.Time
	lastRecord *Record
	lastError  string
}

func New(cfg Config, d Deps) (*Loop, error) {
	if d.Helm == nil {
		return nil, fmt.Errorf("survey: helm is required")
	}
	if d.Sonde == nil {
		return nil, fmt.Errorf("survey: sonde is required")
	}
	if cfg.Mission == "" {
		return nil, fmt.Errorf("survey: mission is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BootstrapRetryDelay <= 0 {
		cfg.BootstrapRetryDelay = 2 * time.Second
	}
	return &Loop{
		cfg:      cfg,
		helm:     d.Helm,
		sonde:    d.Sonde,
		worklist: d.Worklist,
		sampler:  d.Sampler,
		sinks:    d.Sinks,
		now:      time.Now,
		stat:     status{state: "idle", sinkErrors: map[string]int{}},
	}, nil
}

// Bootstrap configures the sonde and negotiates its parameter set, retrying
// the whole sequence until a non-empty set is agreed.
func (l *Loop) Bootstrap(ctx context.Context) error {
	l.setState("bootstrapping")
	for attempt := 1; ; attempt++ {
		ps, err := l.bootstrapOnce(ctx)
		if err == nil {
			log.Printf("survey: bootstrap ok attempt=%d params=%q", attempt, ps.IDs())
			l.mu.Lock()
			l.stat.params = ps.Labels()
			l.mu.Unlock()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("survey: bootstrap attempt=%d failed: %v", attempt, err)
		l.setError(err)
		if l.cfg.BootstrapMaxAttempts > 0 && attempt >= l.cfg.BootstrapMaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrBootstrap, attempt, err)
		}
		if !retry.SleepCtx(ctx, l.cfg.BootstrapRetryDelay) {
			return ctx.Err()
		}
	}
}

func (l *Loop) bootstrapOnce(ctx context.Context) (sonde.Parameters, error) {
	if err := l.sonde.InitialSetup(ctx, l.cfg.ParameterIDs); err != nil {
		return nil, err
	}
	ps, err := l.sonde.NegotiateParameters(ctx)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("sonde reported no parameters")
	}
	return ps, nil
}

// Run executes cycles until the configured count is reached or ctx ends. A
// cancelled context is a normal stop and returns nil; an abort-class error is
// returned.
func (l *Loop) Run(ctx context.Context) error {
	l.setState("running")
	defer l.setState("stopped")

	for cycle := 1; l.cfg.Cycles <= 0 || cycle <= l.cfg.Cycles; cycle++ {
		if err := l.RunCycle(ctx, cycle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("survey: mission aborted cycle=%d: %v", cycle, err)
			return err
		}
		if l.cfg.Cycles > 0 && cycle == l.cfg.Cycles {
			break
		}
		if !retry.SleepCtx(ctx, l.cfg.Interval) {
			return nil
		}
	}
	return nil
}

// RunCycle runs one cycle. Only abort-class errors are returned; everything
// else is logged and skips the rest of the cycle.
func (l *Loop) RunCycle(ctx context.Context, cycle int) error {
	l.mu.Lock()
	l.stat.cycles++
	l.mu.Unlock()

	if l.renegotiate {
		ps, err := l.sonde.NegotiateParameters(ctx)
		if err != nil {
			return l.skip(ctx, cycle, "renegotiate", err)
		}
		l.renegotiate = false
		log.Printf("survey: cycle=%d renegotiated params=%q", cycle, ps.IDs())
		l.mu.Lock()
		l.stat.params = ps.Labels()
		l.mu.Unlock()
	}

	fix, err := l.helm.PollPosition(ctx)
	if err != nil {
		return l.skip(ctx, cycle, "position", err)
	}
	if fix.Point.IsZero() {
		return l.skip(ctx, cycle, "position", fmt.Errorf("no-fix sentinel position %s", fix.Point))
	}
	l.mu.Lock()
	p := fix.Point
	l.stat.lastFix = &p
	l.stat.lastFixAt = l.now()
	l.mu.Unlock()

	frame, err := l.sonde.ReadTelemetryFrame(ctx)
	if err != nil {
		if Classify(err) == PolicyRetry {
			l.renegotiate = true
		}
		return l.skip(ctx, cycle, "telemetry", err)
	}
	readings, err := l.sonde.Parameters().Zip(frame)
	if err != nil {
		l.mu.Lock()
		l.stat.mismatches++
		l.mu.Unlock()
		if l.cfg.RenegotiateOnMismatch {
			l.renegotiate = true
		}
		return l.skip(ctx, cycle, "telemetry", err)
	}

	rec := NewRecord(l.cfg.Mission, cycle, fix, readings, l.cfg.Metadata, l.now())
	l.maybeSample(ctx, &rec, fix.Point)
	l.persist(ctx, rec)

	l.mu.Lock()
	l.stat.records++
	l.stat.lastRecord = &rec
	l.mu.Unlock()
	return nil
}

func (l *Loop) skip(ctx context.Context, cycle int, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cycle %d %s: %w", cycle, stage, ctx.Err())
	}
	p := Classify(err)
	l.setError(err)
	if p == PolicyAbort {
		return fmt.Errorf("cycle %d %s: %w", cycle, stage, err)
	}
	l.mu.Lock()
	l.stat.skipped++
	l.mu.Unlock()
	log.Printf("survey: cycle=%d skip stage=%s policy=%s err=%v", cycle, stage, p, err)
	return nil
}

func (l *Loop) maybeSample(ctx context.Context, rec *Record, pos geo.Point) {
	if l.sampler == nil || l.samplingDisabled {
		return
	}

	target := geo.Waypoint{Point: pos}
	switch {
	case l.worklist != nil:
		hit, ok := l.worklist.Consume(pos)
		if !ok {
			return
		}
		target = *hit
		log.Printf("survey: cycle=%d target seq=%d reached at %s remaining=%d", rec.Cycle, hit.Seq, pos, l.worklist.Len())
		if l.cfg.WorklistPath != "" {
			if err := proximity.SaveWorklistFile(l.cfg.WorklistPath, l.worklist.Remaining()); err != nil {
				log.Printf("survey: worklist write-back failed path=%s err=%v", l.cfg.WorklistPath, err)
			}
		}
	case l.cfg.SampleEvery > 0:
		if !l.lastSample.IsZero() && l.now().Sub(l.lastSample) < l.cfg.SampleEvery {
			return
		}
	default:
		return
	}

	ch, err := l.sampler.SampleAndLog(ctx, rec.Annotation(), pos)
	if err != nil {
		if Classify(err) == PolicyDisableSampling {
			l.mu.Lock()
			l.samplingDisabled = true
			l.mu.Unlock()
			log.Printf("survey: cycle=%d sampling disabled: %v", rec.Cycle, err)
		} else {
			log.Printf("survey: cycle=%d sample failed: %v", rec.Cycle, err)
		}
		l.setError(err)
		return
	}
	l.lastSample = l.now()
	rec.Sample = &SampleInfo{Channel: ch, Target: target}
	l.mu.Lock()
	l.stat.samples++
	l.mu.Unlock()
}

func (l *Loop) persist(ctx context.Context, rec Record) {
	for _, s := range l.sinks {
		if err := s.Save(ctx, rec); err != nil {
			log.Printf("survey: cycle=%d sink=%s save failed: %v", rec.Cycle, s.Name(), err)
			l.mu.Lock()
			l.stat.sinkErrors[s.Name()]++
			l.mu.Unlock()
		}
	}
}

func (l *Loop) setState(s string) {
	l.mu.Lock()
	l.stat.state = s
	l.mu.Unlock()
}

func (l *Loop) setError(err error) {
	l.mu.Lock()
	l.stat.lastError = err.Error()
	l.mu.Unlock()
}

// Snapshot is the loop state reported by the status API.
type Snapshot struct {
	Mission           string             `json:"mission"`
	State             string             `json:"state"`
	Cycles            int                `json:"cycles"`
	Records           int                `json:"records"`
	Skipped           int                `json:"skipped"`
	Mismatches        int                `json:"mismatches"`
	Samples           int                `json:"samples"`
	SinkErrors        map[string]int     `json:"sink_errors,omitempty"`
	Parameters        []string           `json:"parameters,omitempty"`
	LastFix           *geo.Point         `json:"last_fix,omitempty"`
	LastFixAt         *time.Time         `json:"last_fix_at,omitempty"`
	LastRecord        *Record            `json:"last_record,omitempty"`
	LastError         string             `json:"last_error,omitempty"`
	WorklistRemaining *int               `json:"worklist_remaining,omitempty"`
	SamplingDisabled  bool               `json:"sampling_disabled"`
	Actuator          *actuator.Snapshot `json:"actuator,omitempty"`
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	snap := Snapshot{
		Mission:          l.cfg.Mission,
		State:            l.stat.state,
		Cycles:           l.stat.cycles,
		Records:          l.stat.records,
		Skipped:          l.stat.skipped,
		Mismatches:       l.stat.mismatches,
		Samples:          l.stat.samples,
		Parameters:       append([]string(nil), l.stat.params...),
		LastError:        l.stat.lastError,
		SamplingDisabled: l.samplingDisabled,
	}
	if len(l.stat.sinkErrors) > 0 {
		snap.SinkErrors = make(map[string]int, len(l.stat.sinkErrors))
		for k, v := range l.stat.sinkErrors {
			snap.SinkErrors[k] = v
		}
	}
	if l.stat.lastFix != nil {
		p := *l.stat.lastFix
		at := l.stat.lastFixAt
		snap.LastFix = &p
		snap.LastFixAt = &at
	}
	if l.stat.lastRecord != nil {
		r := *l.stat.lastRecord
		snap.LastRecord = &r
	}
	l.mu.Unlock()

	if l.worklist != nil {
		n := l.worklist.Len()
		snap.WorklistRemaining = &n
	}
	if l.sampler != nil {
		a := l.sampler.Snapshot()
		snap.Actuator = &a
	}
	return snap
}
