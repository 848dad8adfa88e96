package nmea

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"asv-survey/internal/geo"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

const helmBlob = "$GPGGA,,,,,,0,,,,M,,M,,*66\r\n" +
	"$VCGLL,,,,,,V*04\r\n" +
	"$PSEAA,-2.2,0.7,222.6,,47.8,-0.04,-0.01,-1.00,-0.01*7A\r\n" +
	"$PSEAB,28.2,49742,0.8,23.9,7858,,,28.3,,0.8,0.0,0.0,,,6*76\r\n" +
	"$PSEAD,L,0.0,0.0,0.0,LIDAR_OFF,,1,1*63\r\n" +
	"$PSEAF,T,2*27\r\n"

func TestChecksum_KnownAttitudeBody(t *testing.T) {
	got := Checksum("PSEAA,-2.2,0.7,222.6,,47.8,-0.04,-0.01,-1.00,-0.01,")
	if got != "7D" {
		t.Fatalf("checksum=%q want 7D", got)
	}
}

func TestEncode_Framing(t *testing.T) {
	body := "PSEAC,L,0,0,0,"
	got := Encode(body)
	want := nmeaLine(body) + "\r\n"
	if got != want {
		t.Fatalf("encode=%q want %q", got, want)
	}
}

func TestChecksum_ZeroPadded(t *testing.T) {
	// 'A' ^ 'A' ^ 'B' == 'B' (0x42); "AA" alone is 0x00.
	if got := Checksum("AA"); got != "00" {
		t.Fatalf("checksum=%q want 00", got)
	}
}

func TestDecode_ReportsChecksumButDoesNotEnforce(t *testing.T) {
	good := nmeaLine("PSEAD,W,0.0,0.0,0.0")
	s, err := Decode(good)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.ID != "PSEAD" || !s.ChecksumOK {
		t.Fatalf("sentence=%+v", s)
	}

	bad := good[:len(good)-2] + "00"
	s, err = Decode(bad)
	if err != nil {
		t.Fatalf("decode bad checksum: %v", err)
	}
	if s.ChecksumOK {
		t.Fatalf("expected checksum mismatch to be reported")
	}
	if s.Fields[1] != "W" {
		t.Fatalf("fields=%v", s.Fields)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []string{
		"",
		"GPGGA,1,2*00",
		"$GPGGA,1,2",
		"$GPGGA,1,2*Z",
		"$GPGGA,1*00$GPGGA,2*00",
		"$GP*00",
	}
	for _, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q) err=%v want ErrMalformed", c, err)
		}
	}
}

func TestFindFirstByPrefix(t *testing.T) {
	got, ok := FindFirstByPrefix(helmBlob, PrefixAttitude)
	if !ok {
		t.Fatalf("expected attitude sentence")
	}
	if !strings.HasPrefix(got, "$PSEAA,-2.2") {
		t.Fatalf("got %q", got)
	}
	if _, ok := FindFirstByPrefix(helmBlob, "$GPRMC"); ok {
		t.Fatalf("unexpected RMC match")
	}
	if _, ok := FindFirstByPrefix("", PrefixPosition); ok {
		t.Fatalf("unexpected match in empty blob")
	}
}

func TestParseFix_ReferenceSentence(t *testing.T) {
	line := "$GPGGA,115739.00,4158.8441367,N,09147.4416929,W,4,13,0.9,255.747,M,-32.00,M,01,0000*6E"
	fix, err := ParseFix(line)
	if err != nil {
		t.Fatalf("ParseFix: %v", err)
	}
	if math.Abs(fix.Point.Lat-41.98074) > 1e-4 {
		t.Fatalf("lat=%v want ~41.98074", fix.Point.Lat)
	}
	if math.Abs(fix.Point.Lon-(-91.79069)) > 1e-4 {
		t.Fatalf("lon=%v want ~-91.79069", fix.Point.Lon)
	}
	if fix.Quality != 4 {
		t.Fatalf("quality=%d want 4", fix.Quality)
	}
	if fix.TimeOfDay == nil {
		t.Fatalf("expected time of day")
	}
	want := 11*time.Hour + 57*time.Minute + 39*time.Second
	if *fix.TimeOfDay != want {
		t.Fatalf("time=%s want %s", *fix.TimeOfDay, want)
	}
}

func TestParseFix_NoFixYieldsError(t *testing.T) {
	gga, ok := FindFirstByPrefix(helmBlob, PrefixPosition)
	if !ok {
		t.Fatalf("expected GGA in blob")
	}
	if _, err := ParseFix(gga); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want ErrMalformed", err)
	}
}

func TestParseFix_RejectsOtherSentences(t *testing.T) {
	if _, err := ParseFix(nmeaLine("PSEAD,L,0,0,0,0,0,0")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseAttitude(t *testing.T) {
	line, _ := FindFirstByPrefix(helmBlob, PrefixAttitude)
	a, err := ParseAttitude(line)
	if err != nil {
		t.Fatalf("ParseAttitude: %v", err)
	}
	if math.Abs(a.HeadingDeg-222.6) > 1e-9 {
		t.Fatalf("heading=%v want 222.6", a.HeadingDeg)
	}
	if _, err := ParseAttitude("$PSEAA,1,2*00"); err == nil {
		t.Fatalf("expected error for short attitude")
	}
	if _, err := ParseAttitude("$PSEAA,1,2,x*00"); err == nil {
		t.Fatalf("expected error for non-numeric heading")
	}
	if _, err := ParseAttitude("$PSEAA,1,2,NaN*00"); err == nil {
		t.Fatalf("expected error for NaN heading")
	}
}

func TestParseAttitude_WrapsHeading(t *testing.T) {
	cases := map[string]float64{
		"-10":  350,
		"-370": 350,
		"-720": 0,
		"360":  0,
		"725":  5,
	}
	for in, want := range cases {
		a, err := ParseAttitude("$PSEAA,0.0,0.0," + in + ",0.0*00")
		if err != nil {
			t.Fatalf("ParseAttitude(%s): %v", in, err)
		}
		if math.Abs(a.HeadingDeg-want) > 1e-9 || a.HeadingDeg < 0 || a.HeadingDeg >= 360 {
			t.Fatalf("heading(%s)=%v want %v", in, a.HeadingDeg, want)
		}
	}
}

func TestParseControlMode(t *testing.T) {
	line, _ := FindFirstByPrefix(helmBlob, PrefixMode)
	m, err := ParseControlMode(line)
	if err != nil {
		t.Fatalf("ParseControlMode: %v", err)
	}
	if m != ModeStandby {
		t.Fatalf("mode=%s want Standby", m)
	}

	m, err = ParseControlMode("$PSEAD,Z,0.0*00")
	if err != nil {
		t.Fatalf("unknown code must not error: %v", err)
	}
	if m != ModeUnknown || m.String() != "Unknown" {
		t.Fatalf("mode=%s want Unknown", m)
	}

	if m, _ := ParseControlMode("$PSEAD,!*00"); m != ModeBootLoader {
		t.Fatalf("mode=%s want Boot Loader", m)
	}
}

func TestControlModeCodeRoundTrip(t *testing.T) {
	for code, m := range modeCodes {
		if got := ModeFromCode(string(code)); got != m {
			t.Fatalf("ModeFromCode(%q)=%s want %s", code, got, m)
		}
		if m.Code() != string(code) {
			t.Fatalf("%s.Code()=%q want %q", m, m.Code(), code)
		}
	}
	if ModeUnknown.Code() != "" {
		t.Fatalf("unknown mode must have no code")
	}
}

func TestToDegreesMinutes(t *testing.T) {
	if got := ToDegreesMinutes(25.7581867157068842, LatWidth); got != "2545.4912" {
		t.Fatalf("lat=%q want 2545.4912", got)
	}
	if got := ToDegreesMinutes(-80.373954176902771, LonWidth); got != "08022.4373" {
		t.Fatalf("lon=%q want 08022.4373", got)
	}
	// Minutes below ten keep their leading zero.
	if got := ToDegreesMinutes(25.05, LatWidth); got != "2503.0000" {
		t.Fatalf("lat=%q want 2503.0000", got)
	}
	if LatHemisphere(0) != "N" || LatHemisphere(-1) != "S" || LonHemisphere(0) != "E" || LonHemisphere(-0.1) != "W" {
		t.Fatalf("hemisphere mismatch")
	}
}

func TestDegreesMinutesRoundTrip(t *testing.T) {
	for d := -179.99; d < 180; d += 0.731 {
		for _, width := range []int{LatWidth, LonWidth} {
			hemi := LonHemisphere(d)
			if width == LatWidth {
				hemi = LatHemisphere(d)
			}
			text := ToDegreesMinutes(d, width)
			back, ok := ParseDegreesMinutes(text, hemi)
			if !ok {
				t.Fatalf("parse %q failed (d=%v)", text, d)
			}
			if math.Abs(back-d) > 1e-4 {
				t.Fatalf("d=%v text=%q back=%v", d, text, back)
			}
		}
	}
	// Values whose minutes round up to 60 carry into degrees.
	if got := ToDegreesMinutes(25.9999999, LatWidth); got != "2600.0000" {
		t.Fatalf("carry=%q want 2600.0000", got)
	}
}

func TestCommandBodies(t *testing.T) {
	cases := map[string]string{
		StandbyBody():              "PSEAC,L,0,0,0,",
		ThrusterBody(50.9, -20.7):  "PSEAC,T,0,50,-20,",
		HeadingBody(30, 271.6):     "PSEAC,C,271,30,,",
		StationKeepBody():          "PSEAC,R,,,,",
		WaypointModeBody():         "PSEAC,W,0,0,0,",
		RecoveryPointModeBody():    "PSEAC,H,0,0,0,",
		StartFileDownloadBody(12):  "PSEAC,F,12,000,000,",
		EndFileDownloadBody():      "PSEAC,F,000,000,000",
		ThrottleHeaderBody(20):     "PSEAR,0,000,20,0,000",
		WaypointBody(geo.Point{Lat: 25.7581867157068842, Lon: -80.373954176902771}, 1): "OIWPL,2545.4912,N,08022.4373,W,1",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("body=%q want %q", got, want)
		}
	}
}
