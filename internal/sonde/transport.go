package sonde

import "context"

// Command vocabulary. Every command is CR-terminated on the wire.
const (
	CmdSetEcho          = "setecho 1"
	CmdDisableRunOnBoot = "pwruptorun 0"
	CmdParameters       = "para"
	CmdReadTelemetry    = "ssn"
	CmdRun              = "run"
	// CmdInit is only understood by the remote proxy.
	CmdInit = "init"
)

// NotReadyMarker appears in any response the device emits before it can
// answer the command.
const NotReadyMarker = "#"

// Transport carries sonde commands. Implementations are selected at
// construction: SerialTransport owns the port, HTTPTransport relays through a
// proxy and Simulator answers in memory.
type Transport interface {
	// Command sends cmd and returns the device's response line with any echo
	// removed. An empty string means the device said nothing in time.
	Command(ctx context.Context, cmd string) (string, error)
	// Send writes cmd without waiting for a response.
	Send(ctx context.Context, cmd string) error
	Close() error
}
