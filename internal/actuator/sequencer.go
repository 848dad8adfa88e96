// Package actuator sequences the one-shot sampling channels.
//
// At most one channel is ever active: an activation switches its channel on,
// waits, and switches the whole bank off before returning, and activations
// are serialized. Round-robin activation only moves forward; a used channel
// is not selected again until Reset.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"asv-survey/internal/geo"
	"asv-survey/internal/retry"
)

var (
	ErrBankExhausted = errors.New("actuator: bank exhausted")
	ErrChannelRange  = errors.New("actuator: channel out of range")
)

// DefaultDuration is how long a channel stays active.
const DefaultDuration = 10 * time.Second

type Config struct {
	// Patterns maps channel n to Patterns[n-1]. Default DefaultPatterns().
	Patterns []Pattern
	Duration time.Duration
	// EventTail is how many recent events Events keeps.
	EventTail int
}

type Sequencer struct {
	bank  Bank
	audit AuditLog
	pats  []Pattern
	dur   time.Duration
	tail  int
	now   func() time.Time

	// run serializes activations; mu guards state and bus writes so an
	// emergency stop can land in the middle of an activation.
	run     sync.Mutex
	mu      sync.Mutex
	current int
	active  int
	events  []Event
}

func New(bank Bank, audit AuditLog, cfg Config) *Sequencer {
	pats := cfg.Patterns
	if len(pats) == 0 {
		pats = DefaultPatterns()
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.EventTail <= 0 {
		cfg.EventTail = 100
	}
	return &Sequencer{
		bank:  bank,
		audit: audit,
		pats:  append([]Pattern(nil), pats...),
		dur:   cfg.Duration,
		tail:  cfg.EventTail,
		now:   time.Now,
	}
}

// Size is the number of channels.
func (s *Sequencer) Size() int { return len(s.pats) }

func (s *Sequencer) Duration() time.Duration { return s.dur }

// Current is the last channel used by round-robin activation, 0 before the
// first one.
func (s *Sequencer) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Remaining is the number of channels round-robin activation can still use.
func (s *Sequencer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pats) - s.current
}

// Active returns the channel currently switched on, or 0.
func (s *Sequencer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActivateNext advances to the next unused channel and activates it for d.
// When every channel is used it returns ErrBankExhausted without touching
// the bus. A context that has already ended uses no channel.
func (s *Sequencer) ActivateNext(ctx context.Context, d time.Duration) (int, error) {
	s.run.Lock()
	defer s.run.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.current >= len(s.pats) {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: all %d channels used", ErrBankExhausted, len(s.pats))
	}
	s.current++
	ch := s.current
	s.mu.Unlock()

	return ch, s.activate(ctx, ch, d)
}

// ActivateChannel activates channel n for d. It ignores and does not move the
// round-robin pointer.
func (s *Sequencer) ActivateChannel(ctx context.Context, n int, d time.Duration) error {
	if n < 1 || n > len(s.pats) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrChannelRange, n, len(s.pats))
	}
	s.run.Lock()
	defer s.run.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.activate(ctx, n, d)
}

func (s *Sequencer) activate(ctx context.Context, ch int, d time.Duration) error {
	if d <= 0 {
		d = s.dur
	}

	s.mu.Lock()
	err := s.bank.Write(s.pats[ch-1])
	if err == nil {
		s.active = ch
		s.record(Event{Channel: ch, State: Active})
	}
	s.mu.Unlock()
	if err != nil {
		_ = s.clear(ch, "activation failed")
		return fmt.Errorf("actuator channel %d: %w", ch, err)
	}

	waited := retry.SleepCtx(ctx, d)

	note := ""
	if !waited {
		note = "interrupted"
	}
	if err := s.clear(ch, note); err != nil {
		return fmt.Errorf("actuator channel %d clear: %w", ch, err)
	}
	if !waited {
		return ctx.Err()
	}
	return nil
}

func (s *Sequencer) clear(ch int, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.bank.Write(AllClear)
	if s.active == ch {
		s.active = 0
		s.record(Event{Channel: ch, State: Idle, Note: note})
	}
	return err
}

// EmergencyStopAll writes the all-clear pattern. It is safe to call at any
// time, including during an activation, and repeatedly.
func (s *Sequencer) EmergencyStopAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.bank.Write(AllClear)
	s.active = 0
	s.record(Event{Channel: 0, State: Idle, Note: "emergency stop"})
	if err != nil {
		return fmt.Errorf("actuator emergency stop: %w", err)
	}
	return nil
}

// SampleAndLog logs the annotation, activates the next channel for the
// configured duration and logs the position it sampled at.
func (s *Sequencer) SampleAndLog(ctx context.Context, annotation string, pos geo.Point) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	next := s.current + 1
	if next > len(s.pats) {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: all %d channels used", ErrBankExhausted, len(s.pats))
	}
	s.record(Event{Channel: next, State: Idle, Note: "about to sample: " + annotation})
	s.mu.Unlock()

	ch, err := s.ActivateNext(ctx, s.dur)
	if err != nil {
		return ch, err
	}

	s.mu.Lock()
	s.record(Event{Channel: ch, State: Idle, Note: "sample complete: " + pos.String()})
	s.mu.Unlock()
	return ch, nil
}

// Reset rewinds round-robin activation to channel 1, after the operator has
// reloaded the bank.
func (s *Sequencer) Reset() {
	s.run.Lock()
	defer s.run.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
	s.record(Event{Channel: 0, State: Idle, Note: "reset"})
}

// RunSequential activates count channels in turn, waiting interval between
// activations. It stops early when the bank is exhausted and returns how many
// channels it activated.
func (s *Sequencer) RunSequential(ctx context.Context, count int, interval, d time.Duration) (int, error) {
	done := 0
	for done < count {
		if _, err := s.ActivateNext(ctx, d); err != nil {
			return done, err
		}
		done++
		if done < count && !retry.SleepCtx(ctx, interval) {
			return done, ctx.Err()
		}
	}
	return done, nil
}

// Events returns the most recent events, oldest first.
func (s *Sequencer) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Snapshot is the sequencer state reported by the status API.
type Snapshot struct {
	Channels  int    `json:"channels"`
	Current   int    `json:"current"`
	Remaining int    `json:"remaining"`
	Active    int    `json:"active"`
	LastEvent *Event `json:"last_event,omitempty"`
}

func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Channels:  len(s.pats),
		Current:   s.current,
		Remaining: len(s.pats) - s.current,
		Active:    s.active,
	}
	if n := len(s.events); n > 0 {
		ev := s.events[n-1]
		snap.LastEvent = &ev
	}
	return snap
}

// Close switches everything off and releases the bank.
func (s *Sequencer) Close() error {
	stopErr := s.EmergencyStopAll()
	if err := s.bank.Close(); err != nil {
		return err
	}
	return stopErr
}

// record must be called with mu held.
func (s *Sequencer) record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	s.events = append(s.events, ev)
	if len(s.events) > s.tail {
		s.events = append(s.events[:0], s.events[len(s.events)-s.tail:]...)
	}
	if s.audit != nil {
		if err := s.audit.Append(ev); err != nil {
			log.Printf("actuator: audit append failed: %v", err)
		}
	}
	log.Printf("actuator: channel=%d state=%s note=%q", ev.Channel, ev.State, ev.Note)
}
