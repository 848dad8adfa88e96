package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"asv-survey/internal/config"
	"asv-survey/internal/web"
)

func main() {
	var (
		configPath string
		ov         config.Overrides
	)
	flag.StringVar(&configPath, "config", "./asv.yaml", "Path to YAML config")
	flag.StringVar(&ov.Mission, "mission", "", "Mission name (overrides mission.name)")
	flag.StringVar(&ov.VehicleID, "vehicle", "", "Vehicle id (overrides mission.vehicle_id)")
	flag.StringVar(&ov.Worklist, "worklist", "", "Sampling target file (overrides sampling.worklist)")
	flag.Parse()

	cfg, err := config.LoadWithOverrides(configPath, ov)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(cfg.Web.LogBuffer)
	log.SetOutput(logs.Tee(os.Stderr))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logs); err != nil {
		log.Fatalf("asv-survey: %v", err)
	}
}

var webServe = web.Serve

// startWeb serves the status API until the returned stop is called. stop
// returns once the server has shut down and its handlers have finished.
func startWeb(ctx context.Context, addr string, d web.Deps) (stop func()) {
	webCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := webServe(webCtx, addr, d); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("web server stopped: %v", err)
		}
	}()
	log.Printf("web listening addr=%s", addr)
	return func() {
		cancel()
		<-done
	}
}

func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	log.Printf("asv-survey starting mission=%s vehicle=%s", cfg.Mission.Name, cfg.Mission.VehicleID)

	status := web.NewStatus()
	rt, err := newRuntime(ctx, cfg, status)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("asv-survey: shutdown: %v", err)
		}
	}()

	if cfg.Web.Enable {
		stopWeb := startWeb(ctx, cfg.Web.Listen, web.Deps{
			Status:   status,
			Logs:     logs,
			Stream:   rt.stream,
			Actuator: rt.Stopper(),
			About: web.AboutInfo{
				Mission:   cfg.Mission.Name,
				VehicleID: cfg.Mission.VehicleID,
				SondeMode: cfg.Sonde.Mode,
				Actuator:  cfg.Actuator.Backend,
			},
		})
		// Runs before rt.Close so no request reaches a closed bank.
		defer stopWeb()
	}

	if err := rt.loop.Bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			log.Printf("asv-survey stopping")
			return nil
		}
		return err
	}
	if err := rt.loop.Run(ctx); err != nil {
		return err
	}
	log.Printf("asv-survey stopping")
	return nil
}
