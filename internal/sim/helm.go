package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"asv-survey/internal/nmea"
)

type HelmConfig struct {
	Listen string
	// Interval between position/attitude/mode bursts.
	Interval time.Duration
	Vessel   Vessel
}

// HelmServer imitates the helm controller's TCP link: it streams position,
// attitude and mode sentences to every client and applies mode commands.
type HelmServer struct {
	cfg HelmConfig
	now func() time.Time

	ln        net.Listener
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	mode      nmea.ControlMode
	commands  []string
	waypoints int
	conns     map[net.Conn]struct{}
}

func NewHelmServer(cfg HelmConfig) *HelmServer {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	return &HelmServer{
		cfg:   cfg,
		now:   time.Now,
		done:  make(chan struct{}),
		mode:  nmea.ModeStandby,
		conns: map[net.Conn]struct{}{},
	}
}

// Start listens and serves until ctx is done or Close is called.
func (s *HelmServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("helm sim listen %s: %w", s.cfg.Listen, err)
	}
	s.ln = ln
	log.Printf("helm sim: listening addr=%s", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		_ = ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Printf("helm sim: accept: %v", err)
				}
				s.closeConns()
				return
			}
			s.mu.Lock()
			s.conns[conn] = struct{}{}
			s.mu.Unlock()
			s.wg.Add(2)
			go s.emit(ctx, conn)
			go s.receive(conn)
		}
	}()
	return nil
}

// Addr is the bound listen address; valid after Start.
func (s *HelmServer) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *HelmServer) Mode() nmea.ControlMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Commands returns every sentence body received, in order.
func (s *HelmServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Waypoints is the number of waypoint sentences received.
func (s *HelmServer) Waypoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waypoints
}

func (s *HelmServer) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.closeConns()
	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *HelmServer) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

func (s *HelmServer) emit(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := conn.Write([]byte(s.burst(s.now().UTC()))); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-t.C:
		}
	}
}

// burst is one GGA, PSEAA and PSEAD sentence for now.
func (s *HelmServer) burst(now time.Time) string {
	p, heading := s.cfg.Vessel.Position(now)
	tod := fmt.Sprintf("%02d%02d%05.2f", now.Hour(), now.Minute(), float64(now.Second())+float64(now.Nanosecond())/1e9)
	gga := fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,0.0,M,0.0,M,,",
		tod,
		nmea.ToDegreesMinutes(p.Lat, nmea.LatWidth), nmea.LatHemisphere(p.Lat),
		nmea.ToDegreesMinutes(p.Lon, nmea.LonWidth), nmea.LonHemisphere(p.Lon),
	)
	att := fmt.Sprintf("PSEAA,0.0,0.0,%.1f,0.0", heading)
	mode := "PSEAD," + s.Mode().Code() + ",0,0"
	return nmea.Encode(gga) + nmea.Encode(att) + nmea.Encode(mode)
}

func (s *HelmServer) receive(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sn, err := nmea.Decode(line)
		if err != nil {
			log.Printf("helm sim: drop line=%q err=%v", line, err)
			continue
		}
		s.apply(sn)
	}
}

func (s *HelmServer) apply(sn nmea.Sentence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, sn.Body())
	switch sn.ID {
	case "PSEAC":
		if len(sn.Fields) > 1 {
			if m := nmea.ModeFromCode(sn.Fields[1]); m != nmea.ModeUnknown {
				s.mode = m
			}
		}
	case "OIWPL":
		s.waypoints++
	}
}
