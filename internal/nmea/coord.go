package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// LatWidth and LonWidth are the integer degree widths of the ddmm.mmmm and
	// dddmm.mmmm formats.
	LatWidth = 2
	LonWidth = 3
)

// ToDegreesMinutes renders |deg| as DD(D)MM.mmmm with width integer degree
// digits. The sign is dropped; use LatHemisphere/LonHemisphere for it.
func ToDegreesMinutes(deg float64, width int) string {
	a := math.Abs(deg)
	d := math.Floor(a)
	mins := (a - d) * 60
	// Minutes that round up to 60 carry into the degree field.
	if math.Round(mins*1e4)/1e4 >= 60 {
		d++
		mins = 0
	}
	return fmt.Sprintf("%0*d%07.4f", width, int(d), mins)
}

func LatHemisphere(deg float64) string {
	if deg >= 0 {
		return "N"
	}
	return "S"
}

func LonHemisphere(deg float64) string {
	if deg >= 0 {
		return "E"
	}
	return "W"
}

// ParseDegreesMinutes parses ddmm.mmmm or dddmm.mmmm plus hemisphere into
// signed decimal degrees. The last two digits of the integer part are minutes.
func ParseDegreesMinutes(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil || deg < 0 {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins < 0 || mins >= 60.00005 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
