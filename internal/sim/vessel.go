package sim

import (
	"math"
	"time"

	"asv-survey/internal/geo"
)

// Vessel is a deterministic surface track for offline runs.
type Vessel struct {
	Center  geo.Point
	RadiusM float64
	Period  time.Duration
}

func (v Vessel) withDefaults() Vessel {
	if v.Period <= 0 {
		v.Period = 10 * time.Minute
	}
	if v.RadiusM <= 0 {
		v.RadiusM = 150
	}
	return v
}

// Position returns the vessel's location and heading at now.
//
// The path is a figure-eight (Lissajous) that stays within RadiusM of the
// center:
//
//	east  = R*cos(2πt)
//	north = R/2*sin(4πt)
func (v Vessel) Position(now time.Time) (p geo.Point, headingDeg float64) {
	v = v.withDefaults()
	phase := float64(now.UnixNano()%v.Period.Nanoseconds()) / float64(v.Period.Nanoseconds())

	w := 2 * math.Pi * phase
	east := v.RadiusM * math.Cos(w)
	north := 0.5 * v.RadiusM * math.Sin(2*w)
	p = geo.Offset(v.Center, north, east)

	// Heading from instantaneous velocity (atan2(east, north)).
	ve := -math.Sin(w)
	vn := math.Cos(2 * w)
	headingDeg = math.Mod(math.Atan2(ve, vn)*180/math.Pi+360, 360)
	return p, headingDeg
}
