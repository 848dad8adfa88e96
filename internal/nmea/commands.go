package nmea

import (
	"fmt"
	"strconv"

	"asv-survey/internal/geo"
)

// Mode command bodies understood by the helm controller. Thrust and heading
// are truncated to integers; range checks are the caller's job.

func StandbyBody() string { return "PSEAC,L,0,0,0," }

// ThrusterBody drives the thrusters directly. thrust and diff are in
// [-100,100]; negative is astern / counter-clockwise.
func ThrusterBody(thrust, diff float64) string {
	return fmt.Sprintf("PSEAC,T,0,%d,%d,", int(thrust), int(diff))
}

// HeadingBody holds degrees in [0,360) at the given thrust.
func HeadingBody(thrust, degrees float64) string {
	return fmt.Sprintf("PSEAC,C,%d,%d,,", int(degrees), int(thrust))
}

func StationKeepBody() string { return "PSEAC,R,,,," }

func WaypointModeBody() string { return "PSEAC,W,0,0,0," }

func RecoveryPointModeBody() string { return "PSEAC,H,0,0,0," }

func StartFileDownloadBody(lines int) string {
	return "PSEAC,F," + strconv.Itoa(lines) + ",000,000,"
}

func EndFileDownloadBody() string { return "PSEAC,F,000,000,000" }

// ThrottleHeaderBody is sent ahead of a waypoint upload.
func ThrottleHeaderBody(throttle int) string {
	return fmt.Sprintf("PSEAR,0,000,%d,0,000", throttle)
}

// WaypointBody is one waypoint-upload sentence body.
func WaypointBody(p geo.Point, seq int) string {
	return fmt.Sprintf("OIWPL,%s,%s,%s,%s,%d",
		ToDegreesMinutes(p.Lat, LatWidth), LatHemisphere(p.Lat),
		ToDegreesMinutes(p.Lon, LonWidth), LonHemisphere(p.Lon),
		seq)
}
