package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Point is a WGS-84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.7f, %.7f)", p.Lat, p.Lon)
}

// IsZero reports the (0,0) sentinel some receivers emit without a fix.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c * 1000
}

// Offset moves p by north/east meters using a local flat-earth approximation.
func Offset(p Point, northM, eastM float64) Point {
	dLat := northM / (EarthRadiusKm * 1000) * 180 / math.Pi
	dLon := eastM / (EarthRadiusKm * 1000 * math.Cos(radians(p.Lat))) * 180 / math.Pi
	return Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Waypoint is a Point tagged with its sequence index. Helm missions and
// sampling worklists both use it.
type Waypoint struct {
	Seq   int   `json:"seq"`
	Point Point `json:"point"`
}
