package helm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"asv-survey/internal/nmea"
	"asv-survey/internal/retry"
)

var sleep = time.Sleep

var (
	// ErrNoFix is returned when no decodable position arrived within the poll
	// policy.
	ErrNoFix = errors.New("helm: no position fix")
	// ErrLinkClosed means the controller closed the stream.
	ErrLinkClosed = errors.New("helm: link closed")
)

// Config controls the helm link.
//
// WritePacing and ReceiveSettle are timing contracts with the controller,
// which acknowledges nothing: every write is followed by WritePacing and
// every read is preceded by ReceiveSettle.
type Config struct {
	Addr        string
	DialTimeout time.Duration
	// ReadTimeout bounds one receive; a timeout yields no data, not an error.
	ReadTimeout   time.Duration
	WritePacing   time.Duration
	ReceiveSettle time.Duration
	ReadBytes     int

	// Poll bounds PollPosition, PollAttitude and PollControlMode.
	Poll retry.Policy
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WritePacing <= 0 {
		c.WritePacing = 1 * time.Millisecond
	}
	if c.ReceiveSettle <= 0 {
		c.ReceiveSettle = 10 * time.Millisecond
	}
	if c.ReadBytes <= 0 {
		c.ReadBytes = 1024
	}
	return c
}

// Client talks to the helm controller over one long-lived stream.
//
// Client is not safe for concurrent use; the survey loop owns it.
type Client struct {
	cfg  Config
	conn net.Conn
	buf  []byte
}

// Dial connects to cfg.Addr.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("helm addr is required")
	}
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("helm dial %s: %w", cfg.Addr, err)
	}
	return New(conn, cfg), nil
}

// New wraps an established connection.
func New(conn net.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{cfg: cfg, conn: conn, buf: make([]byte, cfg.ReadBytes)}
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// SendCommand encodes body as a sentence and writes it.
func (c *Client) SendCommand(ctx context.Context, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := io.WriteString(c.conn, nmea.Encode(body)); err != nil {
		return fmt.Errorf("helm write %q: %w", body, err)
	}
	sleep(c.cfg.WritePacing)
	return nil
}

// ReceiveRaw performs one bounded read of up to maxBytes. A timeout or an
// empty read returns "" with a nil error.
func (c *Client) ReceiveRaw(ctx context.Context, maxBytes int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if maxBytes <= 0 || maxBytes > len(c.buf) {
		maxBytes = len(c.buf)
	}
	sleep(c.cfg.ReceiveSettle)

	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.conn.SetReadDeadline(deadline)

	n, err := c.conn.Read(c.buf[:maxBytes])
	data := string(c.buf[:n])
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return data, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return data, fmt.Errorf("%w: %v", ErrLinkClosed, err)
		}
		return data, fmt.Errorf("helm read: %w", err)
	}
	return data, nil
}

// PollPosition reads until a position sentence arrives that decodes to a fix.
func (c *Client) PollPosition(ctx context.Context) (nmea.Fix, error) {
	var last string
	fix, err := retry.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (nmea.Fix, bool, error) {
		raw, err := c.ReceiveRaw(ctx, c.cfg.ReadBytes)
		if err != nil {
			return nmea.Fix{}, false, err
		}
		line, ok := nmea.FindFirstByPrefix(raw, nmea.PrefixPosition)
		if !ok {
			return nmea.Fix{}, false, nil
		}
		last = line
		fix, err := nmea.ParseFix(line)
		if err != nil {
			return nmea.Fix{}, false, nil
		}
		return fix, true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nmea.Fix{}, fmt.Errorf("%w: %w (last=%q)", ErrNoFix, err, last)
		}
		return nmea.Fix{}, err
	}
	return fix, nil
}

// PollAttitude reads until an attitude sentence with a heading arrives.
func (c *Client) PollAttitude(ctx context.Context) (nmea.Attitude, error) {
	var last string
	att, err := retry.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (nmea.Attitude, bool, error) {
		raw, err := c.ReceiveRaw(ctx, c.cfg.ReadBytes)
		if err != nil {
			return nmea.Attitude{}, false, err
		}
		line, ok := nmea.FindFirstByPrefix(raw, nmea.PrefixAttitude)
		if !ok {
			return nmea.Attitude{}, false, nil
		}
		last = line
		att, err := nmea.ParseAttitude(line)
		if err != nil {
			return nmea.Attitude{}, false, nil
		}
		return att, true, nil
	})
	if err != nil && errors.Is(err, retry.ErrExhausted) {
		return nmea.Attitude{}, fmt.Errorf("helm attitude: %w (last=%q)", err, last)
	}
	return att, err
}

// PollControlMode reads until a mode sentence arrives. Unknown codes resolve
// to nmea.ModeUnknown immediately.
func (c *Client) PollControlMode(ctx context.Context) (nmea.ControlMode, error) {
	mode, err := retry.Poll(ctx, c.cfg.Poll, func(ctx context.Context) (nmea.ControlMode, bool, error) {
		raw, err := c.ReceiveRaw(ctx, c.cfg.ReadBytes)
		if err != nil {
			return nmea.ModeUnknown, false, err
		}
		line, ok := nmea.FindFirstByPrefix(raw, nmea.PrefixMode)
		if !ok {
			return nmea.ModeUnknown, false, nil
		}
		m, err := nmea.ParseControlMode(line)
		if err != nil {
			return nmea.ModeUnknown, false, nil
		}
		return m, true, nil
	})
	if err != nil && errors.Is(err, retry.ErrExhausted) {
		return nmea.ModeUnknown, fmt.Errorf("helm control mode: %w", err)
	}
	return mode, err
}
