package sonde

import (
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
)

// ProxyHandler serves /data for HTTPTransport clients on behalf of the
// device behind t. GET reads one telemetry line; POST carries a command.
func ProxyHandler(t Transport) http.Handler {
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		var cmd string
		switch r.Method {
		case http.MethodGet:
			cmd = CmdReadTelemetry
		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
			if err != nil {
				http.Error(w, "read body", http.StatusBadRequest)
				return
			}
			cmd = strings.TrimSpace(string(body))
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if cmd == "" {
			http.Error(w, "empty command", http.StatusBadRequest)
			return
		}

		mu.Lock()
		defer mu.Unlock()

		var resp string
		var err error
		switch cmd {
		case CmdInit:
			resp = "ok"
		case CmdRun:
			err = t.Send(r.Context(), cmd)
		default:
			resp, err = t.Command(r.Context(), cmd)
		}
		if err != nil {
			log.Printf("sonde proxy: cmd=%q err=%v", cmd, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, resp)
	})
	return mux
}
