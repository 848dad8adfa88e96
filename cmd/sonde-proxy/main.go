// Command sonde-proxy owns a serial sonde and relays commands posted to
// /data, for surveys that run the sonde in http mode.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asv-survey/internal/sonde"
)

func main() {
	var (
		listen   string
		port     string
		baud     int
		simulate bool
	)
	flag.StringVar(&listen, "listen", ":5000", "HTTP listen address")
	flag.StringVar(&port, "port", "/dev/ttyUSB0", "Sonde serial port")
	flag.IntVar(&baud, "baud", 9600, "Serial baud rate")
	flag.BoolVar(&simulate, "sim", false, "Serve a simulated sonde instead of the serial port")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	t, err := openTransport(simulate, port, baud)
	if err != nil {
		log.Fatalf("sonde open failed: %v", err)
	}
	defer t.Close()

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		log.Fatalf("listen %s failed: %v", listen, err)
	}
	if err := serve(ctx, ln, t); err != nil {
		log.Fatalf("sonde-proxy: %v", err)
	}
	log.Printf("sonde-proxy stopping")
}

func openTransport(simulate bool, port string, baud int) (sonde.Transport, error) {
	if simulate {
		log.Printf("sonde-proxy: simulated sonde")
		return sonde.NewSimulator(sonde.SimConfig{}), nil
	}
	log.Printf("sonde-proxy: port=%s baud=%d", port, baud)
	return sonde.OpenSerial(sonde.SerialConfig{
		Path:    port,
		Options: sonde.PortOptions{BaudRate: baud},
	})
}

func serve(ctx context.Context, ln net.Listener, t sonde.Transport) error {
	srv := &http.Server{
		Handler:           sonde.ProxyHandler(t),
		ReadHeaderTimeout: 5 * time.Second,
		// A command may wait out the device's settle and line timeouts.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Printf("sonde-proxy listening addr=%s", ln.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
