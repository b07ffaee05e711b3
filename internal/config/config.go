// Package config loads the thermo-dash YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/thermo-dash/internal/records"
)

// Sounder kinds for AlarmConfig.Sounder.
const (
	SounderBell = "bell"
	SounderGPIO = "gpio"
	SounderNone = "none"
)

// Config is the daemon configuration. Command-line flags override it.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	HTTP      HTTPConfig      `yaml:"http"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Storage   StorageConfig   `yaml:"storage"`
}

type DeviceConfig struct {
	Address        string        `yaml:"address" validate:"required"`
	ConnectOnStart bool          `yaml:"connect_on_start"`
	DialTimeout    time.Duration `yaml:"dial_timeout" validate:"gt=0"`
}

type DashboardConfig struct {
	Threshold float64 `yaml:"threshold"`
	Capacity  int     `yaml:"capacity" validate:"min=1,max=10000"`
	Recording bool    `yaml:"recording"`
	TUI       bool    `yaml:"tui"`
}

type AlarmConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Burst    time.Duration `yaml:"burst" validate:"gt=0,ltfield=Interval"`
	Sounder  string        `yaml:"sounder" validate:"oneof=bell gpio none"`
	GPIOChip string        `yaml:"gpio_chip"`
	GPIOLine int           `yaml:"gpio_line" validate:"min=0"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat" validate:"min=0"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Address:        "192.168.1.200",
			ConnectOnStart: true,
			DialTimeout:    10 * time.Second,
		},
		Dashboard: DashboardConfig{
			Threshold: 100,
			Capacity:  20,
		},
		Alarm: AlarmConfig{
			Interval: 1 * time.Second,
			Burst:    300 * time.Millisecond,
			Sounder:  SounderBell,
			GPIOChip: "gpiochip0",
			GPIOLine: 18,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		MQTT: MQTTConfig{
			Broker:    "",
			ClientID:  "thermo-dash",
			Heartbeat: 15 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: records.DriverSQLite,
			DSN:    records.DefaultSQLiteDSN,
		},
	}
}

// Load reads a YAML file over the defaults, then validates the result.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// The DSN default depends on the driver the file selects.
	cfg.Storage.DSN = ""

	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Device.Address == "" {
		cfg.Device.Address = "192.168.1.200"
	}
	if cfg.Device.DialTimeout <= 0 {
		cfg.Device.DialTimeout = 10 * time.Second
	}
	if cfg.Dashboard.Capacity <= 0 {
		cfg.Dashboard.Capacity = 20
	}
	if cfg.Alarm.Sounder == "" {
		cfg.Alarm.Sounder = SounderBell
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = records.DriverSQLite
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = records.DefaultDSN(cfg.Storage.Driver)
	}
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if math.IsNaN(cfg.Dashboard.Threshold) || math.IsInf(cfg.Dashboard.Threshold, 0) {
		return errors.New("dashboard.threshold must be a finite number")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
