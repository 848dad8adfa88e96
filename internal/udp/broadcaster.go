// Package udp sends survey records to a shore station as JSON datagrams.
package udp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"asv-survey/internal/survey"
)

// maxDatagram keeps a record within one unfragmented datagram on typical
// radio links.
const maxDatagram = 1400

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster writes datagrams to one destination.
type Broadcaster struct {
	dest string

	mu   sync.Mutex
	conn udpConn
	sent int
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest %s: %w", dest, err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", dest, err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("udp %s: closed", b.dest)
	}
	if _, err := b.conn.Write(payload); err != nil {
		return err
	}
	b.sent++
	return nil
}

// Sent is the number of datagrams written.
func (b *Broadcaster) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *Broadcaster) Name() string { return "udp:" + b.dest }

// Save sends r as one JSON datagram. Records too large for a datagram are
// sent without their parameter map.
func (b *Broadcaster) Save(_ context.Context, r survey.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if len(payload) > maxDatagram {
		r.Params = nil
		if payload, err = json.Marshal(r); err != nil {
			return err
		}
	}
	return b.Send(payload)
}
