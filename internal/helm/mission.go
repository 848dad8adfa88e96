package helm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"asv-survey/internal/geo"
	"asv-survey/internal/nmea"
)

// ModeCommand selects one of the fixed mode-command sentences.
type ModeCommand int

const (
	CmdStandby ModeCommand = iota
	CmdThruster
	CmdHeading
	CmdStationKeep
	CmdWaypoint
	CmdGoToRecoveryPoint
	CmdStartFileDownload
	CmdEndFileDownload
)

var modeCommandNames = map[ModeCommand]string{
	CmdStandby:           "standby",
	CmdThruster:          "thruster",
	CmdHeading:           "heading",
	CmdStationKeep:       "station-keep",
	CmdWaypoint:          "waypoint",
	CmdGoToRecoveryPoint: "go-to-recovery-point",
	CmdStartFileDownload: "start-file-download",
	CmdEndFileDownload:   "end-file-download",
}

func (m ModeCommand) String() string {
	if s, ok := modeCommandNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ModeBody renders the sentence body for m.
//
//	thruster:            thrust, diff
//	heading:             thrust, degrees
//	start-file-download: line count
func ModeBody(m ModeCommand, params ...float64) (string, error) {
	want := 0
	switch m {
	case CmdThruster, CmdHeading:
		want = 2
	case CmdStartFileDownload:
		want = 1
	}
	if len(params) != want {
		return "", fmt.Errorf("helm %s takes %d params, got %d", m, want, len(params))
	}

	switch m {
	case CmdStandby:
		return nmea.StandbyBody(), nil
	case CmdThruster:
		return nmea.ThrusterBody(params[0], params[1]), nil
	case CmdHeading:
		return nmea.HeadingBody(params[0], params[1]), nil
	case CmdStationKeep:
		return nmea.StationKeepBody(), nil
	case CmdWaypoint:
		return nmea.WaypointModeBody(), nil
	case CmdGoToRecoveryPoint:
		return nmea.RecoveryPointModeBody(), nil
	case CmdStartFileDownload:
		return nmea.StartFileDownloadBody(int(params[0])), nil
	case CmdEndFileDownload:
		return nmea.EndFileDownloadBody(), nil
	default:
		return "", fmt.Errorf("helm: unknown mode command %d", int(m))
	}
}

// SetMode sends one mode command.
func (c *Client) SetMode(ctx context.Context, m ModeCommand, params ...float64) error {
	body, err := ModeBody(m, params...)
	if err != nil {
		return err
	}
	return c.SendCommand(ctx, body)
}

// UploadMission sends the throttle header, then recoveryBody, then one
// waypoint sentence per entry in list order.
func (c *Client) UploadMission(ctx context.Context, waypoints []geo.Waypoint, throttle int, recoveryBody string) error {
	if err := c.SendCommand(ctx, nmea.ThrottleHeaderBody(throttle)); err != nil {
		return err
	}
	if err := c.SendCommand(ctx, recoveryBody); err != nil {
		return err
	}
	for _, wp := range waypoints {
		if err := c.SendCommand(ctx, nmea.WaypointBody(wp.Point, wp.Seq)); err != nil {
			return fmt.Errorf("waypoint %d: %w", wp.Seq, err)
		}
	}
	return nil
}

// Mission is a waypoint route plus its emergency recovery point.
type Mission struct {
	Throttle  int
	Recovery  geo.Waypoint
	Waypoints []geo.Waypoint
}

// NewMission numbers the recovery point 0 and the route 1..N.
func NewMission(route []geo.Point, recovery geo.Point, throttle int) Mission {
	m := Mission{
		Throttle:  throttle,
		Recovery:  geo.Waypoint{Seq: 0, Point: recovery},
		Waypoints: make([]geo.Waypoint, 0, len(route)),
	}
	for i, p := range route {
		m.Waypoints = append(m.Waypoints, geo.Waypoint{Seq: i + 1, Point: p})
	}
	return m
}

// Bodies returns every sentence body in upload order.
func (m Mission) Bodies() []string {
	out := make([]string, 0, len(m.Waypoints)+2)
	out = append(out, nmea.ThrottleHeaderBody(m.Throttle))
	out = append(out, nmea.WaypointBody(m.Recovery.Point, m.Recovery.Seq))
	for _, wp := range m.Waypoints {
		out = append(out, nmea.WaypointBody(wp.Point, wp.Seq))
	}
	return out
}

// WriteTo renders the mission as an upload file, one encoded sentence per line.
func (m Mission) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, body := range m.Bodies() {
		b.WriteString(nmea.Encode(body))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Upload sends m with UploadMission.
func (c *Client) Upload(ctx context.Context, m Mission) error {
	return c.UploadMission(ctx, m.Waypoints, m.Throttle, nmea.WaypointBody(m.Recovery.Point, m.Recovery.Seq))
}

// UploadWithDownloadMode brackets the upload in file-download mode and then
// switches the controller to waypoint mode.
func (c *Client) UploadWithDownloadMode(ctx context.Context, m Mission) error {
	if err := c.SetMode(ctx, CmdStartFileDownload, float64(len(m.Bodies()))); err != nil {
		return err
	}
	if err := c.Upload(ctx, m); err != nil {
		return err
	}
	if err := c.SetMode(ctx, CmdEndFileDownload); err != nil {
		return err
	}
	return c.SetMode(ctx, CmdWaypoint)
}
