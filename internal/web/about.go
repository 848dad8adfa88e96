package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// AboutInfo is the static part of /api/about.
type AboutInfo struct {
	Mission   string `json:"mission,omitempty"`
	VehicleID string `json:"vehicle_id,omitempty"`
	SondeMode string `json:"sonde_mode,omitempty"`
	Actuator  string `json:"actuator_backend,omitempty"`
}

type AboutResponse struct {
	Service string `json:"service"`
	NowUTC  string `json:"now_utc"`
	AboutInfo
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
}

func AboutHandler(info AboutInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := AboutResponse{
			Service:   "asv-survey",
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			AboutInfo: info,
			GoVersion: runtime.Version(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			resp.ModulePath = bi.Main.Path
			resp.Version = bi.Main.Version
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					resp.Commit = s.Value
				case "vcs.modified":
					resp.Dirty = s.Value == "true"
				}
			}
		}
		writeJSON(w, resp)
	})
}
