package web

import (
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"asv-survey/internal/survey"
)

// SurveySource is the running mission.
type SurveySource interface {
	Snapshot() survey.Snapshot
}

// Status aggregates the mission snapshot with process-level details.
type Status struct {
	start time.Time

	mu     sync.RWMutex
	source SurveySource
	stats  map[string]func() string
}

func NewStatus() *Status {
	return &Status{start: time.Now().UTC(), stats: map[string]func() string{}}
}

// SetSource attaches the mission. Until then the snapshot has no survey
// section.
func (s *Status) SetSource(src SurveySource) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// AddStat registers a named one-line statistic, e.g. a sink's size on disk.
func (s *Status) AddStat(name string, fn func() string) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.stats[name] = fn
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service   string            `json:"service"`
	NowUTC    string            `json:"now_utc"`
	UptimeSec int64             `json:"uptime_sec"`
	Started   string            `json:"started"`
	Stats     map[string]string `json:"stats,omitempty"`
	Survey    *survey.Snapshot  `json:"survey,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	snap := StatusSnapshot{
		Service:   "asv-survey",
		NowUTC:    nowUTC.Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start) / time.Second),
		Started:   humanize.RelTime(s.start, nowUTC, "ago", "from now"),
	}

	s.mu.RLock()
	src := s.source
	names := make([]string, 0, len(s.stats))
	for name := range s.stats {
		names = append(names, name)
	}
	fns := make([]func() string, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		fns = append(fns, s.stats[name])
	}
	s.mu.RUnlock()

	if len(names) > 0 {
		snap.Stats = make(map[string]string, len(names))
		for i, name := range names {
			snap.Stats[name] = fns[i]()
		}
	}
	if src != nil {
		sv := src.Snapshot()
		snap.Survey = &sv
	}
	return snap
}
