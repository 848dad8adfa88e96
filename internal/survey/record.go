package survey

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"asv-survey/internal/geo"
	"asv-survey/internal/nmea"
	"asv-survey/internal/sonde"
)

// Metadata identifies the platform that produced a record.
type Metadata struct {
	VehicleID    string   `json:"asvid"`
	SondeSerials []string `json:"sonde_serials,omitempty"`
}

// SampleInfo is set on the record of a cycle that fired a sampling channel.
type SampleInfo struct {
	Channel int          `json:"channel"`
	Target  geo.Waypoint `json:"target"`
}

// Record is one survey cycle's position and telemetry.
type Record struct {
	ID        string             `json:"id"`
	Mission   string             `json:"mission"`
	Cycle     int                `json:"cycle"`
	Date      string             `json:"date"`
	Time      string             `json:"time"`
	Latitude  float64            `json:"latitude"`
	Longitude float64            `json:"longitude"`
	Timestamp time.Time          `json:"timestamp"`
	FixTime   *time.Duration     `json:"fix_time,omitempty"`
	Metadata  Metadata           `json:"metadata"`
	Params    map[string]float64 `json:"exodata"`
	Sample    *SampleInfo        `json:"sample,omitempty"`

	// Readings keeps the negotiated parameter order for column output.
	Readings []sonde.Reading `json:"-"`
}

// NewRecord assembles a record from one cycle's fix and readings.
func NewRecord(mission string, cycle int, fix nmea.Fix, readings []sonde.Reading, meta Metadata, now time.Time) Record {
	r := Record{
		ID:        uuid.New().String(),
		Mission:   mission,
		Cycle:     cycle,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04:05"),
		Latitude:  fix.Point.Lat,
		Longitude: fix.Point.Lon,
		Timestamp: now,
		FixTime:   fix.TimeOfDay,
		Metadata:  meta,
		Params:    make(map[string]float64, len(readings)),
		Readings:  append([]sonde.Reading(nil), readings...),
	}
	for _, rd := range readings {
		r.Params[rd.Name] = rd.Value
	}
	return r
}

func (r Record) Point() geo.Point { return geo.Point{Lat: r.Latitude, Lon: r.Longitude} }

// ParamNames returns the reading names in negotiated order. Records decoded
// from JSON have no order and fall back to sorted names.
func (r Record) ParamNames() []string {
	if len(r.Readings) > 0 {
		out := make([]string, len(r.Readings))
		for i, rd := range r.Readings {
			out[i] = rd.Name
		}
		return out
	}
	out := make([]string, 0, len(r.Params))
	for k := range r.Params {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Annotation is the one-line summary written to the sampling audit log.
func (r Record) Annotation() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle=%d %s %s", r.Cycle, r.Date, r.Time)
	for _, name := range r.ParamNames() {
		fmt.Fprintf(&b, " %s=%g", name, r.Params[name])
	}
	return b.String()
}

// Sink persists records. Each sink is independent; one failing does not stop
// the others.
type Sink interface {
	Name() string
	Save(ctx context.Context, r Record) error
}
