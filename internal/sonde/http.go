package sonde

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig points at a sonde-proxy instance.
type HTTPConfig struct {
	// BaseURL is e.g. "http://192.168.0.60:5000"; commands go to BaseURL+"/data".
	BaseURL string
	Timeout time.Duration
}

// HTTPTransport relays commands to a remote process that owns the device.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// DialHTTP builds the transport and sends the proxy its init command, so an
// unreachable proxy fails at startup.
func DialHTTP(ctx context.Context, cfg HTTPConfig) (*HTTPTransport, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("sonde proxy url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h := &HTTPTransport{url: base + "/data", client: &http.Client{Timeout: timeout}}
	if _, err := h.Command(ctx, CmdInit); err != nil {
		return nil, fmt.Errorf("sonde proxy init: %w", err)
	}
	return h, nil
}

// Command POSTs cmd as the request body. Telemetry reads use GET.
func (h *HTTPTransport) Command(ctx context.Context, cmd string) (string, error) {
	var req *http.Request
	var err error
	if cmd == CmdReadTelemetry {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(cmd))
		if req != nil {
			req.Header.Set("Content-Type", "text/plain")
		}
	}
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sonde proxy %q: %w", cmd, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("sonde proxy %q: %w", cmd, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sonde proxy %q: status %d: %s", cmd, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func (h *HTTPTransport) Send(ctx context.Context, cmd string) error {
	_, err := h.Command(ctx, cmd)
	return err
}

func (h *HTTPTransport) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
