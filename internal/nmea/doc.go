// Package nmea encodes and decodes the checksummed sentence dialect spoken by
// the helm controller and used by waypoint upload files.
//
// Only the sentences the survey consumes or produces are covered:
// - GGA position fixes
// - PSEAA attitude and PSEAD control mode
// - PSEAC mode commands, PSEAR throttle header, OIWPL waypoints
//
// Decode does not enforce checksums on received sentences; Encode always
// computes them.
package nmea
