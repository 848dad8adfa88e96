package actuator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"asv-survey/internal/geo"
)

type memAudit struct {
	mu     sync.Mutex
	events []Event
}

func (m *memAudit) Append(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memAudit) states() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.State.String()
	}
	return out
}

func TestDefaultPatterns(t *testing.T) {
	p := DefaultPatterns()
	if len(p) != 10 {
		t.Fatalf("len=%d want 10", len(p))
	}
	if p[0] != (Pattern{A: 0x01}) || p[4] != (Pattern{A: 0x10}) {
		t.Fatalf("port A patterns=%v", p[:5])
	}
	if p[5] != (Pattern{B: 0x01}) || p[9] != (Pattern{B: 0x10}) {
		t.Fatalf("port B patterns=%v", p[5:])
	}
	if p[6].Bits() != 0x0200 {
		t.Fatalf("bits=%#x want 0x200", p[6].Bits())
	}
}

func TestActivateNext_MonotonicThenExhausted(t *testing.T) {
	bank := &MemoryBank{}
	audit := &memAudit{}
	s := New(bank, audit, Config{Patterns: DefaultPatterns()[:2], Duration: time.Millisecond})
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		got, err := s.ActivateNext(ctx, time.Millisecond)
		if err != nil {
			t.Fatalf("ActivateNext: %v", err)
		}
		if got != want {
			t.Fatalf("channel=%d want %d", got, want)
		}
	}
	writes := len(bank.Writes())
	if _, err := s.ActivateNext(ctx, time.Millisecond); !errors.Is(err, ErrBankExhausted) {
		t.Fatalf("err=%v want ErrBankExhausted", err)
	}
	if len(bank.Writes()) != writes {
		t.Fatalf("exhausted bank must not write")
	}

	want := []Pattern{{A: 0x01}, AllClear, {A: 0x02}, AllClear}
	if diff := cmp.Diff(want, bank.Writes()); diff != "" {
		t.Fatalf("writes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"active", "idle", "active", "idle"}, audit.states()); diff != "" {
		t.Fatalf("audit (-want +got):\n%s", diff)
	}
	if s.Remaining() != 0 || s.Active() != 0 {
		t.Fatalf("remaining=%d active=%d", s.Remaining(), s.Active())
	}
}

func TestActivateChannel_DirectDoesNotMovePointer(t *testing.T) {
	bank := &MemoryBank{}
	s := New(bank, nil, Config{Duration: time.Millisecond})
	ctx := context.Background()

	if err := s.ActivateChannel(ctx, 7, time.Millisecond); err != nil {
		t.Fatalf("ActivateChannel: %v", err)
	}
	if err := s.ActivateChannel(ctx, 7, time.Millisecond); err != nil {
		t.Fatalf("repeat ActivateChannel: %v", err)
	}
	if s.Current() != 0 {
		t.Fatalf("current=%d want 0", s.Current())
	}
	for _, n := range []int{0, 11, -1} {
		if err := s.ActivateChannel(ctx, n, time.Millisecond); !errors.Is(err, ErrChannelRange) {
			t.Fatalf("n=%d err=%v want ErrChannelRange", n, err)
		}
	}
	want := []Pattern{{B: 0x02}, AllClear, {B: 0x02}, AllClear}
	if diff := cmp.Diff(want, bank.Writes()); diff != "" {
		t.Fatalf("writes (-want +got):\n%s", diff)
	}
}

func TestActivation_CancelStillClears(t *testing.T) {
	bank := &MemoryBank{}
	s := New(bank, nil, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	ch, err := s.ActivateNext(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) || ch != 1 {
		t.Fatalf("ch=%d err=%v want 1 and context.Canceled", ch, err)
	}
	w := bank.Writes()
	if len(w) != 2 || w[1] != AllClear {
		t.Fatalf("writes=%v want activation then all-clear", w)
	}
}

func TestActivation_EndedContextUsesNoChannel(t *testing.T) {
	bank := &MemoryBank{}
	audit := &memAudit{}
	s := New(bank, audit, Config{Patterns: DefaultPatterns()[:2], Duration: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ch, err := s.ActivateNext(ctx, time.Millisecond); !errors.Is(err, context.Canceled) || ch != 0 {
		t.Fatalf("ActivateNext ch=%d err=%v want 0 and context.Canceled", ch, err)
	}
	if err := s.ActivateChannel(ctx, 1, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("ActivateChannel err=%v want context.Canceled", err)
	}
	if _, err := s.SampleAndLog(ctx, "cycle=1", geo.Point{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("SampleAndLog err=%v want context.Canceled", err)
	}
	if n, err := s.RunSequential(ctx, 2, time.Millisecond, time.Millisecond); n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("RunSequential n=%d err=%v", n, err)
	}
	if len(bank.Writes()) != 0 || len(audit.states()) != 0 {
		t.Fatalf("writes=%v events=%v want none", bank.Writes(), audit.states())
	}
	if s.Remaining() != 2 {
		t.Fatalf("remaining=%d want 2", s.Remaining())
	}
}

func TestLinePatterns_OneLinePerChannel(t *testing.T) {
	pats := LinePatterns(10)
	if len(pats) != 10 {
		t.Fatalf("len=%d want 10", len(pats))
	}
	for i, p := range pats {
		vals, err := lineValues(p, 10)
		if err != nil {
			t.Fatalf("channel %d: %v", i+1, err)
		}
		want := make([]int, 10)
		want[i] = 1
		if diff := cmp.Diff(want, vals); diff != "" {
			t.Fatalf("channel %d lines (-want +got):\n%s", i+1, diff)
		}
	}
	if vals, err := lineValues(AllClear, 10); err != nil || len(vals) != 10 {
		t.Fatalf("all clear vals=%v err=%v", vals, err)
	}
	if _, err := lineValues(DefaultPatterns()[5], 10); err == nil {
		t.Fatalf("port B pattern on 10 lines should fail")
	}
	if vals, err := lineValues(Pattern{B: 0x80}, 16); err != nil || vals[15] != 1 {
		t.Fatalf("16-line vals=%v err=%v", vals, err)
	}
}

func TestEmergencyStopDuringActivation(t *testing.T) {
	bank := &MemoryBank{}
	s := New(bank, nil, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.ActivateNext(ctx, time.Hour)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for s.Active() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("activation never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.EmergencyStopAll(); err != nil {
		t.Fatalf("EmergencyStopAll: %v", err)
	}
	if err := s.EmergencyStopAll(); err != nil {
		t.Fatalf("second EmergencyStopAll: %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("active=%d after stop", s.Active())
	}
	w := bank.Writes()
	if len(w) != 3 || w[1] != AllClear || w[2] != AllClear {
		t.Fatalf("writes=%v", w)
	}
	cancel()
	<-done
}

func TestSampleAndLog(t *testing.T) {
	audit := &memAudit{}
	s := New(&MemoryBank{}, audit, Config{Patterns: DefaultPatterns()[:1], Duration: time.Millisecond})
	pos := geo.Point{Lat: 25.91068, Lon: -80.13621}

	ch, err := s.SampleAndLog(context.Background(), "Temperature (C)=24.1", pos)
	if err != nil || ch != 1 {
		t.Fatalf("ch=%d err=%v", ch, err)
	}
	if len(audit.events) != 4 {
		t.Fatalf("events=%d want 4: %+v", len(audit.events), audit.events)
	}
	if !strings.HasPrefix(audit.events[0].Note, "about to sample: Temperature") {
		t.Fatalf("first note=%q", audit.events[0].Note)
	}
	if !strings.Contains(audit.events[3].Note, "25.9106800") {
		t.Fatalf("last note=%q", audit.events[3].Note)
	}

	if _, err := s.SampleAndLog(context.Background(), "again", pos); !errors.Is(err, ErrBankExhausted) {
		t.Fatalf("err=%v want ErrBankExhausted", err)
	}
	if len(audit.events) != 4 {
		t.Fatalf("exhausted sample must not log, events=%d", len(audit.events))
	}

	s.Reset()
	if s.Remaining() != 1 {
		t.Fatalf("remaining=%d after reset", s.Remaining())
	}
}

func TestRunSequential_StopsWhenExhausted(t *testing.T) {
	s := New(&MemoryBank{}, nil, Config{Patterns: DefaultPatterns()[:3]})
	n, err := s.RunSequential(context.Background(), 5, time.Millisecond, time.Millisecond)
	if n != 3 || !errors.Is(err, ErrBankExhausted) {
		t.Fatalf("n=%d err=%v want 3 and ErrBankExhausted", n, err)
	}
	snap := s.Snapshot()
	if snap.Remaining != 0 || snap.Current != 3 || snap.LastEvent == nil {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestEventsTail(t *testing.T) {
	s := New(&MemoryBank{}, nil, Config{EventTail: 3})
	for i := 0; i < 5; i++ {
		_ = s.EmergencyStopAll()
	}
	if len(s.Events()) != 3 {
		t.Fatalf("events=%d want 3", len(s.Events()))
	}
}

func TestFileAudit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "samples.log")
	a, err := OpenFileAudit(path)
	if err != nil {
		t.Fatalf("OpenFileAudit: %v", err)
	}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	_ = a.Append(Event{Time: ts, Channel: 3, State: Active})
	_ = a.Append(Event{Time: ts, Channel: 3, State: Idle, Note: "sample complete"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "2024-03-01 12:30:00.000000, 3, 1\n2024-03-01 12:30:00.000000, 3, 0, sample complete\n"
	if string(b) != want {
		t.Fatalf("audit=%q want %q", b, want)
	}
}

type fakeRegs struct {
	writes [][]byte
	input  [2]byte
}

func (f *fakeRegs) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, []byte{reg, value})
	return nil
}

func (f *fakeRegs) WriteRegs(reg byte, values ...byte) error {
	f.writes = append(f.writes, append([]byte{reg}, values...))
	return nil
}

func (f *fakeRegs) ReadReg(reg byte, dst []byte) error {
	copy(dst, f.input[:])
	return nil
}

func TestPCA9555_InitAndWrite(t *testing.T) {
	regs := &fakeRegs{input: [2]byte{0x04, 0x00}}
	p, err := newPCA9555(regs)
	if err != nil {
		t.Fatalf("newPCA9555: %v", err)
	}
	if err := p.Write(Pattern{B: 0x08}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	in, err := p.ReadInputs()
	if err != nil || in != (Pattern{A: 0x04}) {
		t.Fatalf("inputs=%v err=%v", in, err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := [][]byte{
		{0x02, 0x00, 0x00},
		{0x06, 0x00},
		{0x07, 0x00},
		{0x02, 0x00, 0x08},
		{0x02, 0x00, 0x00},
	}
	if diff := cmp.Diff(want, regs.writes); diff != "" {
		t.Fatalf("register writes (-want +got):\n%s", diff)
	}
}
