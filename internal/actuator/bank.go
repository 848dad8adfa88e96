package actuator

import (
	"fmt"
	"sync"
)

// Pattern is the output state of the bank's two 8-bit ports.
type Pattern struct {
	A byte `json:"a"`
	B byte `json:"b"`
}

// AllClear switches every channel off.
var AllClear = Pattern{}

// Bits packs the pattern as A0..A7 then B0..B7.
func (p Pattern) Bits() uint16 { return uint16(p.A) | uint16(p.B)<<8 }

func (p Pattern) String() string { return fmt.Sprintf("A=%08b B=%08b", p.A, p.B) }

// DefaultPatterns is the 10-channel wiring: channels 1..5 on A0..A4 and
// 6..10 on B0..B4.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, 0, 10)
	for i := 0; i < 5; i++ {
		out = append(out, Pattern{A: 1 << i})
	}
	for i := 0; i < 5; i++ {
		out = append(out, Pattern{B: 1 << i})
	}
	return out
}

// LinePatterns is the wiring for banks with one output line per channel:
// channel n sets bit n-1 and nothing else.
func LinePatterns(n int) []Pattern {
	out := make([]Pattern, 0, n)
	for i := 0; i < n && i < 16; i++ {
		bits := uint16(1) << i
		out = append(out, Pattern{A: byte(bits), B: byte(bits >> 8)})
	}
	return out
}

// lineValues expands p into one value per line. A pattern that drives a bit
// with no line behind it is an error, not a silent no-op.
func lineValues(p Pattern, n int) ([]int, error) {
	bits := p.Bits()
	if n < 16 && bits>>n != 0 {
		return nil, fmt.Errorf("actuator: pattern %s needs more than %d lines", p, n)
	}
	vals := make([]int, n)
	for i := range vals {
		vals[i] = int(bits>>i) & 1
	}
	return vals, nil
}

// Bank writes a whole output pattern at once.
type Bank interface {
	Write(p Pattern) error
	Close() error
}

// MemoryBank records writes instead of driving hardware.
type MemoryBank struct {
	mu     sync.Mutex
	writes []Pattern
	closed bool
}

func (m *MemoryBank) Write(p Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("actuator: memory bank closed")
	}
	m.writes = append(m.writes, p)
	return nil
}

func (m *MemoryBank) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of every pattern written so far.
func (m *MemoryBank) Writes() []Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Pattern(nil), m.writes...)
}
