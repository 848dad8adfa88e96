//go:build !linux

package actuator

import "fmt"

type GPIOBank struct{}

func OpenGPIOBank(chipPath string, offsets []int) (*GPIOBank, error) {
	return nil, fmt.Errorf("actuator gpio: unsupported on this platform")
}

func (g *GPIOBank) Write(p Pattern) error { return fmt.Errorf("actuator gpio: unsupported on this platform") }
func (g *GPIOBank) Close() error          { return nil }
