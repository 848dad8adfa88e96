// Command asv-mission builds a waypoint mission from a coordinate file and
// either writes it as an upload file or sends it over the helm link.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"asv-survey/internal/geo"
	"asv-survey/internal/helm"
	"asv-survey/internal/proximity"
)

type options struct {
	waypoints string
	recovery  string
	throttle  int
	out       string
	helmAddr  string
}

func main() {
	var o options
	flag.StringVar(&o.waypoints, "waypoints", "", "File of latitude,longitude lines")
	flag.StringVar(&o.recovery, "recovery", "", "Emergency recovery point as latitude,longitude")
	flag.IntVar(&o.throttle, "throttle", 50, "Cruise throttle percent")
	flag.StringVar(&o.out, "out", "", "Write the mission to this .sea file")
	flag.StringVar(&o.helmAddr, "helm", "", "Upload the mission to the helm controller at host:port")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o); err != nil {
		log.Fatalf("asv-mission: %v", err)
	}
}

func run(ctx context.Context, o options) error {
	m, err := buildMission(o)
	if err != nil {
		return err
	}
	if o.out == "" && o.helmAddr == "" {
		return fmt.Errorf("nothing to do: set -out and/or -helm")
	}
	if o.out != "" {
		if err := writeMission(o.out, m); err != nil {
			return err
		}
		log.Printf("mission written path=%s waypoints=%d", o.out, len(m.Waypoints))
	}
	if o.helmAddr != "" {
		c, err := helm.Dial(ctx, helm.Config{Addr: o.helmAddr})
		if err != nil {
			return err
		}
		defer c.Close()
		uctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.UploadWithDownloadMode(uctx, m); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		log.Printf("mission uploaded helm=%s waypoints=%d", o.helmAddr, len(m.Waypoints))
	}
	return nil
}

func buildMission(o options) (helm.Mission, error) {
	if o.waypoints == "" || o.recovery == "" {
		return helm.Mission{}, fmt.Errorf("-waypoints and -recovery are required")
	}
	if o.throttle < 0 || o.throttle > 100 {
		return helm.Mission{}, fmt.Errorf("throttle must be 0..100, got %d", o.throttle)
	}
	rec, err := proximity.ParsePoint(o.recovery)
	if err != nil {
		return helm.Mission{}, fmt.Errorf("recovery point: %w", err)
	}
	wps, err := proximity.LoadWorklistFile(o.waypoints)
	if err != nil {
		return helm.Mission{}, err
	}
	if len(wps) == 0 {
		return helm.Mission{}, fmt.Errorf("%s has no waypoints", o.waypoints)
	}
	route := make([]geo.Point, len(wps))
	for i, wp := range wps {
		route[i] = wp.Point
	}
	return helm.NewMission(route, rec, o.throttle), nil
}

// writeMission writes m next to path and renames it into place.
func writeMission(path string, m helm.Mission) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mission-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := m.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
