package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"asv-survey/internal/web"
)

func TestStartWeb_StopWaitsForServer(t *testing.T) {
	var finished atomic.Bool
	orig := webServe
	t.Cleanup(func() { webServe = orig })
	webServe = func(ctx context.Context, addr string, d web.Deps) error {
		<-ctx.Done()
		// A handler still draining when shutdown begins.
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}

	stop := startWeb(context.Background(), "127.0.0.1:0", web.Deps{})
	stop()
	if !finished.Load() {
		t.Fatalf("stop returned before the server finished")
	}
}
