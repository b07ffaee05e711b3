// Command thermo-dash connects to a WebSocket thermocouple device, charts and
// records its readings, sounds an alarm above a threshold, and serves the
// dashboard over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/thermo-dash/internal/alarm"
	"github.com/sweeney/thermo-dash/internal/config"
	"github.com/sweeney/thermo-dash/internal/dashboard"
	"github.com/sweeney/thermo-dash/internal/mqtt"
	"github.com/sweeney/thermo-dash/internal/notify"
	"github.com/sweeney/thermo-dash/internal/records"
	"github.com/sweeney/thermo-dash/internal/session"
	"github.com/sweeney/thermo-dash/internal/status"
	"github.com/sweeney/thermo-dash/internal/tui"
	"github.com/sweeney/thermo-dash/internal/web"
)

func main() {
	def := config.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file (flags override it)")
	device := flag.String("device", def.Device.Address, "Device address (host or host:port)")
	noConnect := flag.Bool("no-connect", false, "Do not connect to the device on startup")
	threshold := flag.Float64("threshold", def.Dashboard.Threshold, "Alarm threshold in °C")
	capacity := flag.Int("capacity", def.Dashboard.Capacity, "Number of samples shown in the chart")
	record := flag.Bool("record", def.Dashboard.Recording, "Start recording immediately")
	sounder := flag.String("sounder", def.Alarm.Sounder, "Alarm sounder: bell, gpio or none")
	httpAddr := flag.String("http", def.HTTP.Addr, "HTTP dashboard address (empty to disable)")
	broker := flag.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	storageDriver := flag.String("storage-driver", def.Storage.Driver, "Chemicals storage driver: sqlite or postgres")
	storageDSN := flag.String("storage-dsn", def.Storage.DSN, "Chemicals storage DSN")
	useTUI := flag.Bool("tui", def.Dashboard.TUI, "Run the terminal monitor")

	flag.Parse()

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("fatal: config: %v", err)
		}
		cfg = loaded
	}

	// Explicit flags win over the file.
	var driverSet, dsnSet bool
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device.Address = *device
		case "no-connect":
			cfg.Device.ConnectOnStart = !*noConnect
		case "threshold":
			cfg.Dashboard.Threshold = *threshold
		case "capacity":
			cfg.Dashboard.Capacity = *capacity
		case "record":
			cfg.Dashboard.Recording = *record
		case "sounder":
			cfg.Alarm.Sounder = *sounder
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "storage-driver":
			driverSet = true
		case "storage-dsn":
			dsnSet = true
		case "tui":
			cfg.Dashboard.TUI = *useTUI
		}
	})
	cfg.Storage = storageFromFlags(cfg.Storage, *storageDriver, *storageDSN, driverSet, dsnSet)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := status.NewTracker(time.Now(), status.Config{
		Device:        cfg.Device.Address,
		HTTPAddr:      cfg.HTTP.Addr,
		Broker:        cfg.MQTT.Broker,
		Capacity:      cfg.Dashboard.Capacity,
		AlarmInterval: cfg.Alarm.Interval,
		AlarmBurst:    cfg.Alarm.Burst,
		StorageDriver: cfg.Storage.Driver,
	})
	notifier := notify.Multi{tracker, notify.Log{}}

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.Nop{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	// Initialize alarm
	alarmCtl := alarm.NewController(newSounder(cfg.Alarm), notifier, alarm.Config{
		Interval: cfg.Alarm.Interval,
		Burst:    cfg.Alarm.Burst,
	})
	defer alarmCtl.Close()

	// Initialize device session
	sess := session.New(nil)
	sess.SetDialTimeout(cfg.Device.DialTimeout)
	defer sess.Close()

	dash := dashboard.New(dashboard.Config{
		Address:   cfg.Device.Address,
		Capacity:  cfg.Dashboard.Capacity,
		Threshold: cfg.Dashboard.Threshold,
		Recording: cfg.Dashboard.Recording,
	}, sess, alarmCtl, tracker, publisher, notifier)

	loopDone := make(chan struct{})
	go func() {
		dash.Run(ctx)
		close(loopDone)
	}()
	defer func() {
		cancel()
		<-loopDone
	}()

	// Initialize chemicals store
	var chemicals web.Chemicals
	if adapter, closeStore, err := openChemicals(ctx, cfg.Storage, notifier); err != nil {
		log.Printf("chemicals store unavailable: %v", err)
	} else {
		defer closeStore()
		chemicals = adapter
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP dashboard
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, dash, chemicals)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http dashboard listening on %s", cfg.HTTP.Addr)
	}

	if configPath != "" {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			if err := dash.SetThreshold(c.Dashboard.Threshold); err != nil {
				log.Printf("config: apply threshold: %v", err)
			}
		})
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		}
	}

	if cfg.Device.ConnectOnStart {
		if err := dash.Connect(""); err != nil {
			log.Printf("connect on start: %v", err)
		}
	}

	log.Printf("started: device=%s threshold=%.2f capacity=%d broker=%q heartbeat=%v",
		cfg.Device.Address, cfg.Dashboard.Threshold, cfg.Dashboard.Capacity, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan struct{}
	if cfg.Dashboard.TUI {
		// The monitor owns the terminal; keep the log off it.
		log.SetOutput(io.Discard)
		done := make(chan struct{})
		go func() {
			if err := tui.Run(tracker, dash); err != nil {
				fmt.Fprintf(os.Stderr, "tui: %v\n", err)
			}
			close(done)
		}()
		quit = done
	}

	return runLoop(publisher, publisher, tracker, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh, quit)
}

// runLoop publishes lifecycle events until a signal arrives or quit closes.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, quit <-chan struct{}) error {
	lastHeartbeat := now()

	shutdown := func(reason string) {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
		snap := tracker.Snapshot()
		event := mqtt.SystemEvent{
			Timestamp:  now(),
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			shutdown(signalName(s))
			return nil

		case <-quit:
			log.Printf("monitor closed, shutting down")
			shutdown("QUIT")
			return nil

		case <-tick:
			t := now()
			tracker.SetMQTTConnected(mqttStatus.IsConnected())

			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v connection=%s alert=%s recorded=%d",
				snap.Uptime().Truncate(time.Second), snap.Connection, snap.Alert, snap.ExportLen)
			if err := publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// newSounder builds the configured alarm sounder. A GPIO sounder that cannot
// be opened leaves the alarm silent rather than failing startup.
func newSounder(cfg config.AlarmConfig) alarm.Sounder {
	switch cfg.Sounder {
	case config.SounderBell:
		return alarm.NewBellSounder(os.Stdout)
	case config.SounderGPIO:
		b, err := alarm.NewBuzzerSounder(cfg.GPIOChip, cfg.GPIOLine)
		if err != nil {
			log.Printf("alarm: gpio buzzer unavailable: %v", err)
			return nil
		}
		return b
	default:
		return nil
	}
}

// storageFromFlags applies -storage-driver and -storage-dsn over cur. Switching
// driver without a DSN selects that driver's default DSN.
func storageFromFlags(cur config.StorageConfig, driver, dsn string, driverSet, dsnSet bool) config.StorageConfig {
	if driverSet && driver != cur.Driver {
		cur.Driver = driver
		cur.DSN = records.DefaultDSN(driver)
	}
	if dsnSet {
		cur.DSN = dsn
	}
	return cur
}

func openChemicals(ctx context.Context, cfg config.StorageConfig, notifier notify.Notifier) (*records.Adapter, func(), error) {
	backend, err := records.NewBackend(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := backend.Init(initCtx); err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("init %s store: %w", cfg.Driver, err)
	}
	adapter, err := records.NewAdapter(initCtx, backend, notifier)
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("load chemicals: %w", err)
	}
	return adapter, func() {
		adapter.Close()
		backend.Close()
	}, nil
}
