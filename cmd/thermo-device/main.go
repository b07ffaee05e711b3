// Command thermo-device samples a MAX6675 thermocouple and serves the
// readings to dashboards over WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/thermo-dash/internal/device"
	"github.com/sweeney/thermo-dash/internal/thermocouple"
)

func main() {
	addr := flag.String("addr", ":80", "Listen address")
	interval := flag.Duration("interval", device.DefaultInterval, "Sampling interval")
	simulate := flag.Bool("simulate", false, "Use a simulated thermocouple instead of the MAX6675")
	chip := flag.String("chip", "gpiochip0", "GPIO chip the MAX6675 is wired to")
	pinSCK := flag.Int("pin-sck", thermocouple.DefaultPins.SCK, "BCM pin number for SCK")
	pinCS := flag.Int("pin-cs", thermocouple.DefaultPins.CS, "BCM pin number for CS")
	pinSO := flag.Int("pin-so", thermocouple.DefaultPins.SO, "BCM pin number for SO")
	printTemp := flag.Bool("print-temp", false, "Print one reading and exit")

	flag.Parse()

	pins := thermocouple.Pins{SCK: *pinSCK, CS: *pinCS, SO: *pinSO}
	if err := run(*addr, *interval, *simulate, *chip, pins, *printTemp); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(addr string, interval time.Duration, simulate bool, chip string, pins thermocouple.Pins, printTemp bool) error {
	reader, err := openReader(simulate, chip, pins)
	if err != nil {
		return err
	}
	defer reader.Close()

	if printTemp {
		v, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read thermocouple: %w", err)
		}
		fmt.Printf("%.2f°C\n", v)
		return nil
	}

	srv := device.New(addr, reader, interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Printf("started: addr=%s interval=%v simulate=%t", addr, interval, simulate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		log.Printf("received %v, shutting down", s)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func openReader(simulate bool, chip string, pins thermocouple.Pins) (thermocouple.Reader, error) {
	if simulate {
		return thermocouple.NewSimulated(time.Now().UnixNano(), 25, 0.75), nil
	}
	r, err := thermocouple.NewMAX6675(chip, pins)
	if err != nil {
		return nil, fmt.Errorf("init thermocouple: %w", err)
	}
	return r, nil
}
