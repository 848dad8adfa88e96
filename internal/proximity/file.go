package proximity

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"asv-survey/internal/geo"
)

// LoadWorklist reads one "latitude,longitude" pair per line. Blank lines and
// lines starting with '#' are ignored; malformed lines are logged and
// skipped. Targets are numbered 1..N in file order.
func LoadWorklist(r io.Reader) ([]geo.Waypoint, error) {
	var out []geo.Waypoint
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParsePoint(line)
		if err != nil {
			log.Printf("worklist: skipping line %d %q: %v", lineNo, line, err)
			continue
		}
		out = append(out, geo.Waypoint{Seq: len(out) + 1, Point: p})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ParsePoint parses "latitude,longitude" in decimal degrees.
func ParsePoint(line string) (geo.Point, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("want 2 fields, got %d", len(parts))
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("longitude: %w", err)
	}
	if !finite(lat) || !finite(lon) {
		return geo.Point{}, fmt.Errorf("not a finite coordinate")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Point{}, fmt.Errorf("out of range")
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

func LoadWorklistFile(path string) ([]geo.Waypoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadWorklist(f)
}

// BackupWorklistFile copies path to <base>_backup<ext> next to it, before a
// mission starts rewriting path, and returns the backup's path.
func BackupWorklistFile(path string) (string, error) {
	ext := filepath.Ext(path)
	backup := strings.TrimSuffix(path, ext) + "_backup" + ext

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".worklist-backup-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), backup); err != nil {
		return "", err
	}
	return backup, nil
}

// SaveWorklistFile rewrites path with the given targets in the format
// LoadWorklist reads. The write goes through a temp file and a rename.
func SaveWorklistFile(path string, targets []geo.Waypoint) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".worklist-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, t := range targets {
		fmt.Fprintf(w, "%s,%s\n",
			strconv.FormatFloat(t.Point.Lat, 'f', -1, 64),
			strconv.FormatFloat(t.Point.Lon, 'f', -1, 64))
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
