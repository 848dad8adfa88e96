package sonde

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"asv-survey/internal/retry"
)

// Timing contract with the device. It has no ready signal; these pauses are
// the only synchronization.
const (
	// DefaultEchoSettle precedes the first bootstrap command.
	DefaultEchoSettle = 500 * time.Millisecond
	// DefaultCommandSettle separates a command write from reading its reply.
	DefaultCommandSettle = 500 * time.Millisecond
	// DefaultPostWritePacing follows a command that expects no reply.
	DefaultPostWritePacing = 50 * time.Millisecond
)

var (
	// ErrNotReady means the device kept answering empty or "#" until the poll
	// policy ran out.
	ErrNotReady = errors.New("sonde: device not ready")
	// ErrSessionState is returned for an operation the current state does not
	// allow.
	ErrSessionState = errors.New("sonde: invalid session state")
)

// State is the session's bootstrap progress.
type State int

const (
	Disconnected State = iota
	EchoConfigured
	RunOnBootDisabled
	ParametersNegotiated
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case EchoConfigured:
		return "echo-configured"
	case RunOnBootDisabled:
		return "run-on-boot-disabled"
	case ParametersNegotiated:
		return "parameters-negotiated"
	case Ready:
		return "ready"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type Config struct {
	EchoSettle time.Duration
	// Poll bounds the wait for a non-empty, marker-free answer.
	Poll retry.Policy
}

// Session is the command/response state machine for one sonde.
//
// A Session is not safe for concurrent use.
type Session struct {
	t      Transport
	cfg    Config
	state  State
	params Parameters
}

func NewSession(t Transport, cfg Config) *Session {
	if cfg.EchoSettle <= 0 {
		cfg.EchoSettle = DefaultEchoSettle
	}
	return &Session{t: t, cfg: cfg}
}

func (s *Session) State() State { return s.state }

// Parameters returns the set agreed by the last successful negotiation.
func (s *Session) Parameters() Parameters { return s.params }

func (s *Session) Close() error {
	s.state = Disconnected
	s.params = nil
	return s.t.Close()
}

// InitialSetup enables echo, disables run-on-power-up and configures ids as
// the active parameter set. Acknowledgments are logged, not checked; the
// caller retries the whole sequence when negotiation fails afterwards.
func (s *Session) InitialSetup(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return fmt.Errorf("sonde setup: no parameter ids")
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		if _, err := LookupParameter(id); err != nil {
			return err
		}
		strIDs[i] = strconv.Itoa(id)
	}

	s.state = Disconnected
	s.params = nil
	if !retry.SleepCtx(ctx, s.cfg.EchoSettle) {
		return ctx.Err()
	}

	steps := []struct {
		cmd  string
		next State
	}{
		{CmdSetEcho, EchoConfigured},
		{CmdDisableRunOnBoot, RunOnBootDisabled},
		{CmdParameters + " " + strings.Join(strIDs, " "), ParametersNegotiated},
	}
	for _, st := range steps {
		ack, err := s.t.Command(ctx, st.cmd)
		if err != nil {
			return fmt.Errorf("sonde setup %q: %w", st.cmd, err)
		}
		log.Printf("sonde setup: cmd=%q ack=%q", st.cmd, ack)
		s.state = st.next
	}
	return nil
}

// NegotiateParameters queries the active parameter set and resolves every ID.
// An unknown ID fails the negotiation.
func (s *Session) NegotiateParameters(ctx context.Context) (Parameters, error) {
	ps, err := retry.Poll(ctx, s.cfg.Poll, func(ctx context.Context) (Parameters, bool, error) {
		resp, err := s.t.Command(ctx, CmdParameters)
		if err != nil {
			return nil, false, err
		}
		if notReady(resp) {
			return nil, false, nil
		}
		ps, err := ParseParameterIDs(resp)
		if err != nil {
			return nil, false, err
		}
		return ps, true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: parameter query: %w", ErrNotReady, err)
		}
		return nil, err
	}
	s.params = ps
	s.state = Ready
	return ps, nil
}

// ReadTelemetryFrame polls one telemetry line. The caller checks the frame
// against Parameters with Zip.
func (s *Session) ReadTelemetryFrame(ctx context.Context) (Frame, error) {
	if s.state != Ready {
		return Frame{}, fmt.Errorf("%w: read telemetry in state %s", ErrSessionState, s.state)
	}
	f, err := retry.Poll(ctx, s.cfg.Poll, func(ctx context.Context) (Frame, bool, error) {
		resp, err := s.t.Command(ctx, CmdReadTelemetry)
		if err != nil {
			return Frame{}, false, err
		}
		if notReady(resp) {
			return Frame{}, false, nil
		}
		f, err := ParseFrame(resp)
		if err != nil {
			return Frame{}, false, err
		}
		return f, true, nil
	})
	if err != nil && errors.Is(err, retry.ErrExhausted) {
		return Frame{}, fmt.Errorf("%w: telemetry: %w", ErrNotReady, err)
	}
	return f, err
}

// ReadReadings reads a frame and zips it with the negotiated parameters.
func (s *Session) ReadReadings(ctx context.Context) ([]Reading, Frame, error) {
	f, err := s.ReadTelemetryFrame(ctx)
	if err != nil {
		return nil, Frame{}, err
	}
	rs, err := s.params.Zip(f)
	return rs, f, err
}

// StartContinuousRun puts the device in streaming mode. No reply is read.
func (s *Session) StartContinuousRun(ctx context.Context) error {
	return s.t.Send(ctx, CmdRun)
}
