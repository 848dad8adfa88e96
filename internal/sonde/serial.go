package sonde

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var sleep = time.Sleep

// Port is the slice of go.bug.st/serial.Port the transport needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

var openPortFn = func(path string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PortOptions describes the line settings. Zero values default to 9600 8N1.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`
}

// Normalize validates the options and fills defaults.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 9600
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	switch strings.ToUpper(strings.TrimSpace(o.Parity)) {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return o, nil
}

// SerialMode converts the options for serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// SerialConfig configures a direct serial link.
type SerialConfig struct {
	Path    string
	Options PortOptions

	// ReadTick is the port read timeout; one tick with no bytes is not an
	// error, the line reader keeps going until LineTimeout.
	ReadTick    time.Duration
	LineTimeout time.Duration

	// CommandSettle is the pause between writing a command and reading its
	// response. PostWritePacing follows a one-way Send.
	CommandSettle   time.Duration
	PostWritePacing time.Duration
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.ReadTick <= 0 {
		c.ReadTick = 50 * time.Millisecond
	}
	if c.LineTimeout <= 0 {
		c.LineTimeout = 2 * time.Second
	}
	if c.CommandSettle <= 0 {
		c.CommandSettle = DefaultCommandSettle
	}
	if c.PostWritePacing <= 0 {
		c.PostWritePacing = DefaultPostWritePacing
	}
	return c
}

// SerialTransport drives a sonde attached to a local serial port.
type SerialTransport struct {
	cfg  SerialConfig
	port Port

	mu      sync.Mutex
	pending []byte
	buf     []byte
}

// OpenSerial opens cfg.Path.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sonde serial path is required")
	}
	mode, err := cfg.Options.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := openPortFn(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("sonde open %s: %w", cfg.Path, err)
	}
	return NewSerialTransport(p, cfg)
}

// NewSerialTransport wraps an already open port.
func NewSerialTransport(p Port, cfg SerialConfig) (*SerialTransport, error) {
	cfg = cfg.withDefaults()
	if err := p.SetReadTimeout(cfg.ReadTick); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("sonde set read timeout: %w", err)
	}
	return &SerialTransport{cfg: cfg, port: p, buf: make([]byte, 256)}, nil
}

func (s *SerialTransport) Command(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale output belongs to an earlier command.
	s.pending = s.pending[:0]
	_ = s.port.ResetInputBuffer()

	if err := s.write(ctx, cmd); err != nil {
		return "", err
	}
	sleep(s.cfg.CommandSettle)

	line, err := s.readLine(ctx)
	if err != nil {
		return "", err
	}
	if line == cmd {
		return s.readLine(ctx)
	}
	return line, nil
}

func (s *SerialTransport) Send(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, cmd); err != nil {
		return err
	}
	sleep(s.cfg.PostWritePacing)
	return nil
}

func (s *SerialTransport) Close() error {
	if s == nil || s.port == nil {
		return nil
	}
	return s.port.Close()
}

func (s *SerialTransport) write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.WriteString(s.port, cmd+"\r"); err != nil {
		return fmt.Errorf("sonde write %q: %w", cmd, err)
	}
	return nil
}

// readLine returns the next LF-terminated line without its terminator. When
// LineTimeout passes first, whatever partial text arrived is returned; the
// device's "#" prompt has no terminator.
func (s *SerialTransport) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.cfg.LineTimeout)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.pending[:i]))
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			line := strings.TrimSpace(string(s.pending))
			s.pending = s.pending[:0]
			return line, nil
		}
		n, err := s.port.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
		}
		if err != nil {
			return "", fmt.Errorf("sonde read: %w", err)
		}
	}
}
