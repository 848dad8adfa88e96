package actuator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChannelState is the activation state recorded in the audit log.
type ChannelState int

const (
	Idle ChannelState = iota
	Active
)

func (s ChannelState) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

func (s ChannelState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is one audit log entry. Channel 0 means the whole bank.
type Event struct {
	Time    time.Time    `json:"time"`
	Channel int          `json:"channel"`
	State   ChannelState `json:"state"`
	Note    string       `json:"note,omitempty"`
}

// AuditLog receives events in order. Entries are never rewritten.
type AuditLog interface {
	Append(ev Event) error
}

// FileAudit appends "time, channel, state[, note]" lines, state being 1 for
// active and 0 for idle.
type FileAudit struct {
	mu sync.Mutex
	f  *os.File
}

func OpenFileAudit(path string) (*FileAudit, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("actuator audit open %s: %w", path, err)
	}
	return &FileAudit{f: f}, nil
}

func (a *FileAudit) Append(ev Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return fmt.Errorf("actuator audit closed")
	}
	line := fmt.Sprintf("%s, %d, %d", ev.Time.Format("2006-01-02 15:04:05.000000"), ev.Channel, int(ev.State))
	if ev.Note != "" {
		line += ", " + ev.Note
	}
	_, err := a.f.WriteString(line + "\n")
	return err
}

func (a *FileAudit) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
