package actuator

import (
	"fmt"

	"asv-survey/internal/i2c"
)

// PCA9555/TCA9555 16-bit I/O expander registers.
const (
	PCA9555DefaultAddr = 0x20

	regInput0  = 0x00
	regOutput0 = 0x02
	regConfig0 = 0x06
)

type regIO interface {
	WriteReg(reg, value byte) error
	WriteRegs(reg byte, values ...byte) error
	ReadReg(reg byte, dst []byte) error
}

// PCA9555 drives the bank through an I2C port expander with both ports set
// as outputs.
type PCA9555 struct {
	dev regIO
	bus *i2c.Bus
}

// OpenPCA9555 opens busPath and configures the expander at addr.
func OpenPCA9555(busPath string, addr uint16) (*PCA9555, error) {
	if addr == 0 {
		addr = PCA9555DefaultAddr
	}
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, err
	}
	p, err := newPCA9555(bus.Dev(addr))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	p.bus = bus
	return p, nil
}

func newPCA9555(dev regIO) (*PCA9555, error) {
	if dev == nil {
		return nil, fmt.Errorf("pca9555: dev is nil")
	}
	p := &PCA9555{dev: dev}
	// Outputs low before switching the pins to output mode.
	if err := dev.WriteRegs(regOutput0, 0x00, 0x00); err != nil {
		return nil, fmt.Errorf("pca9555: clear outputs: %w", err)
	}
	if err := dev.WriteReg(regConfig0, 0x00); err != nil {
		return nil, fmt.Errorf("pca9555: config port 0: %w", err)
	}
	if err := dev.WriteReg(regConfig0+1, 0x00); err != nil {
		return nil, fmt.Errorf("pca9555: config port 1: %w", err)
	}
	return p, nil
}

func (p *PCA9555) Write(pat Pattern) error {
	if err := p.dev.WriteRegs(regOutput0, pat.A, pat.B); err != nil {
		return fmt.Errorf("pca9555: write %s: %w", pat, err)
	}
	return nil
}

// ReadInputs returns the pin levels as the expander sees them.
func (p *PCA9555) ReadInputs() (Pattern, error) {
	var b [2]byte
	if err := p.dev.ReadReg(regInput0, b[:]); err != nil {
		return Pattern{}, fmt.Errorf("pca9555: read inputs: %w", err)
	}
	return Pattern{A: b[0], B: b[1]}, nil
}

func (p *PCA9555) Close() error {
	err := p.Write(AllClear)
	if p.bus != nil {
		if cerr := p.bus.Close(); err == nil {
			err = cerr
		}
		p.bus = nil
	}
	return err
}
