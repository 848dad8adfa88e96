package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"asv-survey/internal/geo"
)

// Sentence prefixes consumed from the helm link.
const (
	PrefixPosition = "$GPGGA"
	PrefixAttitude = "$PSEAA"
	PrefixMode     = "$PSEAD"
)

// Fix is a decoded position report.
type Fix struct {
	Point   geo.Point
	Quality int
	// TimeOfDay is the UTC time since midnight when the sentence carried one.
	TimeOfDay *time.Duration
}

// ParseFix decodes a GGA sentence.
//
// Fields:
//
//	0: talker+type
//	1: time (hhmmss.ss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid)
//	7: satellites
//	8: HDOP
//	9: altitude
func ParseFix(line string) (Fix, error) {
	s, err := Decode(line)
	if err != nil {
		return Fix{}, err
	}
	if !strings.HasSuffix(s.ID, "GGA") {
		return Fix{}, fmt.Errorf("%w: not a GGA sentence: %s", ErrMalformed, s.ID)
	}
	f := s.Fields
	if len(f) < 7 {
		return Fix{}, fmt.Errorf("%w: GGA has %d fields", ErrMalformed, len(f))
	}
	q := strings.TrimSpace(f[6])
	quality, err := strconv.Atoi(q)
	if err != nil || quality == 0 {
		return Fix{}, fmt.Errorf("%w: GGA fix quality %q", ErrMalformed, q)
	}
	lat, latOK := ParseDegreesMinutes(f[2], f[3])
	lon, lonOK := ParseDegreesMinutes(f[4], f[5])
	if !latOK || !lonOK {
		return Fix{}, fmt.Errorf("%w: GGA position %q,%q %q,%q", ErrMalformed, f[2], f[3], f[4], f[5])
	}
	out := Fix{Point: geo.Point{Lat: lat, Lon: lon}, Quality: quality}
	if tod, ok := parseTimeOfDay(f[1]); ok {
		out.TimeOfDay = &tod
	}
	return out, nil
}

func parseTimeOfDay(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 6 {
		return 0, false
	}
	h, err1 := strconv.Atoi(v[0:2])
	m, err2 := strconv.Atoi(v[2:4])
	sec, err3 := strconv.ParseFloat(v[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sec >= 61 {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(math.Round(sec*1e3))*time.Millisecond, true
}

// Attitude is the vehicle heading reported by the PSEAA sentence.
type Attitude struct {
	HeadingDeg float64
}

// ParseAttitude takes the heading from field index 3. The sentence needs at
// least four comma-separated fields.
func ParseAttitude(line string) (Attitude, error) {
	body := strings.TrimSpace(line)
	if i := strings.LastIndexByte(body, '*'); i != -1 {
		body = body[:i]
	}
	parts := strings.Split(body, ",")
	if len(parts) < 4 {
		return Attitude{}, fmt.Errorf("%w: attitude has %d fields", ErrMalformed, len(parts))
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
		return Attitude{}, fmt.Errorf("%w: heading %q", ErrMalformed, parts[3])
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return Attitude{HeadingDeg: h}, nil
}

// ControlMode is the helm controller's active mode.
type ControlMode int

const (
	ModeUnknown ControlMode = iota
	ModeStandby
	ModeThruster
	ModeHeading
	ModeSpeed
	ModeStationKeep
	ModeRiverNav
	ModeWaypoint
	ModeAutopilot
	ModeCompassCal
	ModeGoToRecoveryPoint
	ModeDepth
	ModeGravityVectorDirection
	ModeFileDownload
	ModeBootLoader
)

var modeCodes = map[byte]ControlMode{
	'L': ModeStandby,
	'T': ModeThruster,
	'C': ModeHeading,
	'G': ModeSpeed,
	'R': ModeStationKeep,
	'N': ModeRiverNav,
	'W': ModeWaypoint,
	'I': ModeAutopilot,
	'3': ModeCompassCal,
	'H': ModeGoToRecoveryPoint,
	'D': ModeDepth,
	'S': ModeGravityVectorDirection,
	'F': ModeFileDownload,
	'!': ModeBootLoader,
}

var modeNames = [...]string{
	ModeUnknown:                "Unknown",
	ModeStandby:                "Standby",
	ModeThruster:               "Thruster",
	ModeHeading:                "Heading",
	ModeSpeed:                  "Speed",
	ModeStationKeep:            "Station Keep",
	ModeRiverNav:               "River Nav",
	ModeWaypoint:               "Waypoint",
	ModeAutopilot:              "Autopilot",
	ModeCompassCal:             "Compass Cal",
	ModeGoToRecoveryPoint:      "Go To ERP",
	ModeDepth:                  "Depth",
	ModeGravityVectorDirection: "Gravity Vector Direction",
	ModeFileDownload:           "File Download",
	ModeBootLoader:             "Boot Loader",
}

func (m ControlMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return modeNames[ModeUnknown]
}

// ModeFromCode maps a one-character mode code; anything else is ModeUnknown.
func ModeFromCode(code string) ControlMode {
	code = strings.TrimSpace(code)
	if len(code) != 1 {
		return ModeUnknown
	}
	if m, ok := modeCodes[code[0]]; ok {
		return m
	}
	return ModeUnknown
}

// Code returns the one-character code for m, or "" for ModeUnknown.
func (m ControlMode) Code() string {
	for c, v := range modeCodes {
		if v == m {
			return string(c)
		}
	}
	return ""
}

// ParseControlMode reads the mode code at field index 1 of a PSEAD sentence.
// Unrecognized codes are ModeUnknown, not an error.
func ParseControlMode(line string) (ControlMode, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 2 {
		return ModeUnknown, fmt.Errorf("%w: mode sentence has %d fields", ErrMalformed, len(parts))
	}
	code := parts[1]
	if i := strings.IndexByte(code, '*'); i != -1 {
		code = code[:i]
	}
	return ModeFromCode(code), nil
}
