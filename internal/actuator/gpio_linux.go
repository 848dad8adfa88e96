//go:build linux

package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "asv-survey-actuator"

// GPIOBank drives one GPIO line per pattern bit. offsets[i] is the line for
// bit i of Pattern.Bits, so LinePatterns(len(offsets)) puts channel n on
// offsets[n-1].
type GPIOBank struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	n     int
}

// OpenGPIOBank requests offsets on chipPath as outputs, initially low.
func OpenGPIOBank(chipPath string, offsets []int) (*GPIOBank, error) {
	if len(offsets) == 0 || len(offsets) > 16 {
		return nil, fmt.Errorf("actuator gpio: need 1..16 line offsets, got %d", len(offsets))
	}
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("actuator gpio: open %s: %w", chipPath, err)
	}
	zeros := make([]int, len(offsets))
	lines, err := chip.RequestLines(offsets, gpiocdev.AsOutput(zeros...), gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("actuator gpio: request lines %v: %w", offsets, err)
	}
	return &GPIOBank{chip: chip, lines: lines, n: len(offsets)}, nil
}

func (g *GPIOBank) Write(p Pattern) error {
	if g == nil || g.lines == nil {
		return fmt.Errorf("actuator gpio: bank not open")
	}
	vals, err := lineValues(p, g.n)
	if err != nil {
		return err
	}
	return g.lines.SetValues(vals)
}

func (g *GPIOBank) Close() error {
	if g == nil || g.lines == nil {
		return nil
	}
	_ = g.Write(AllClear)
	err := g.lines.Close()
	g.lines = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
