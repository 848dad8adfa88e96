package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"asv-survey/internal/retry"
)

type Config struct {
	Mission  MissionConfig  `yaml:"mission"`
	Helm     HelmConfig     `yaml:"helm"`
	Sonde    SondeConfig    `yaml:"sonde"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Sampling SamplingConfig `yaml:"sampling"`
	Survey   SurveyConfig   `yaml:"survey"`
	Store    StoreConfig    `yaml:"store"`
	Web      WebConfig      `yaml:"web"`
}

type MissionConfig struct {
	Name      string `yaml:"name"`
	VehicleID string `yaml:"vehicle_id"`
	// SondeSerials are copied into every record's metadata.
	SondeSerials []string `yaml:"sonde_serials"`
}

type HelmConfig struct {
	Addr          string        `yaml:"addr"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WritePacing   time.Duration `yaml:"write_pacing"`
	ReceiveSettle time.Duration `yaml:"receive_settle"`
	Poll          retry.Policy  `yaml:"poll"`
	Simulate      HelmSimConfig `yaml:"simulate"`
}

// HelmSimConfig runs an in-process helm simulator and points the client at it.
type HelmSimConfig struct {
	Enable       bool          `yaml:"enable"`
	Listen       string        `yaml:"listen"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
}

type SondeConfig struct {
	// Mode is serial, http or sim.
	Mode         string        `yaml:"mode"`
	Parameters   []int         `yaml:"parameters"`
	EchoSettle   time.Duration `yaml:"echo_settle"`
	Poll         retry.Policy  `yaml:"poll"`
	Serial       SerialConfig  `yaml:"serial"`
	HTTP         HTTPConfig    `yaml:"http"`
	SimNotReady  int           `yaml:"sim_not_ready_polls"`
	SimShortRead int           `yaml:"sim_short_frames"`
}

type SerialConfig struct {
	Path          string        `yaml:"path"`
	Baud          int           `yaml:"baud"`
	ReadTick      time.Duration `yaml:"read_tick"`
	LineTimeout   time.Duration `yaml:"line_timeout"`
	CommandSettle time.Duration `yaml:"command_settle"`
}

type HTTPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ActuatorConfig struct {
	// Backend is pca9555, gpio or memory.
	Backend  string        `yaml:"backend"`
	Duration time.Duration `yaml:"duration"`
	AuditLog string        `yaml:"audit_log"`
	I2C      I2CConfig     `yaml:"i2c"`
	GPIO     GPIOConfig    `yaml:"gpio"`
}

type I2CConfig struct {
	Bus  string `yaml:"bus"`
	Addr uint16 `yaml:"addr"`
}

type GPIOConfig struct {
	Chip    string `yaml:"chip"`
	Offsets []int  `yaml:"offsets"`
}

type SamplingConfig struct {
	Worklist   string  `yaml:"worklist"`
	ThresholdM float64 `yaml:"threshold_m"`
	// Every enables timed sampling when no worklist is configured.
	Every time.Duration `yaml:"every"`
}

type SurveyConfig struct {
	Interval              time.Duration `yaml:"interval"`
	Cycles                int           `yaml:"cycles"`
	BootstrapMaxAttempts  int           `yaml:"bootstrap_max_attempts"`
	BootstrapRetryDelay   time.Duration `yaml:"bootstrap_retry_delay"`
	RenegotiateOnMismatch *bool         `yaml:"renegotiate_on_mismatch"`
}

type StoreConfig struct {
	SQLite  string `yaml:"sqlite"`
	CSVDir  string `yaml:"csv_dir"`
	UDPDest string `yaml:"udp_dest"`
}

type WebConfig struct {
	Enable    bool   `yaml:"enable"`
	Listen    string `yaml:"listen"`
	LogBuffer int    `yaml:"log_buffer"`
}

// Renegotiate reports the effective renegotiate_on_mismatch setting.
func (s SurveyConfig) Renegotiate() bool {
	return s.RenegotiateOnMismatch == nil || *s.RenegotiateOnMismatch
}

// Overrides are command-line values that replace the file's.
type Overrides struct {
	Mission   string
	VehicleID string
	Worklist  string
}

func (o Overrides) apply(cfg *Config) {
	if o.Mission != "" {
		cfg.Mission.Name = o.Mission
	}
	if o.VehicleID != "" {
		cfg.Mission.VehicleID = o.VehicleID
	}
	if o.Worklist != "" {
		cfg.Sampling.Worklist = o.Worklist
	}
}

func Load(path string) (Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

func LoadWithOverrides(path string, ov Overrides) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b, ov)
}

// Parse decodes, defaults and validates a YAML document. Unknown fields are
// rejected.
func Parse(b []byte, ov Overrides) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			msg := strings.Join(te.Errors, "; ")
			if strings.Contains(msg, "not found in type") {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", msg)
			}
			return Config{}, fmt.Errorf("config: %s", msg)
		}
		return Config{}, err
	}
	ov.apply(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Mission.VehicleID == "" {
		cfg.Mission.VehicleID = "asv"
	}

	if cfg.Helm.DialTimeout <= 0 {
		cfg.Helm.DialTimeout = 5 * time.Second
	}
	if cfg.Helm.ReadTimeout <= 0 {
		cfg.Helm.ReadTimeout = 5 * time.Second
	}
	if cfg.Helm.Poll.Interval <= 0 {
		cfg.Helm.Poll.Interval = 250 * time.Millisecond
	}
	if cfg.Helm.Poll.MaxAttempts == 0 && cfg.Helm.Poll.Budget == 0 {
		cfg.Helm.Poll.MaxAttempts = 20
	}

	// Simulator defaults (safe even if disabled).
	sim := &cfg.Helm.Simulate
	if sim.Listen == "" {
		sim.Listen = "127.0.0.1:2010"
	}
	if sim.RadiusM <= 0 {
		sim.RadiusM = 150
	}
	if sim.Period <= 0 {
		sim.Period = 10 * time.Minute
	}
	if sim.Interval <= 0 {
		sim.Interval = 500 * time.Millisecond
	}
	if sim.Enable && cfg.Helm.Addr == "" {
		cfg.Helm.Addr = sim.Listen
	}

	if cfg.Sonde.Mode == "" {
		cfg.Sonde.Mode = "serial"
	}
	cfg.Sonde.Mode = strings.ToLower(cfg.Sonde.Mode)
	if len(cfg.Sonde.Parameters) == 0 {
		// Temperature and pH.
		cfg.Sonde.Parameters = []int{1, 18}
	}
	if cfg.Sonde.Poll.Interval <= 0 {
		cfg.Sonde.Poll.Interval = 500 * time.Millisecond
	}
	if cfg.Sonde.Poll.MaxAttempts == 0 && cfg.Sonde.Poll.Budget == 0 {
		cfg.Sonde.Poll.MaxAttempts = 20
	}
	if cfg.Sonde.Serial.Baud <= 0 {
		cfg.Sonde.Serial.Baud = 9600
	}
	if cfg.Sonde.HTTP.Timeout <= 0 {
		cfg.Sonde.HTTP.Timeout = 10 * time.Second
	}

	if cfg.Actuator.Backend == "" {
		cfg.Actuator.Backend = "pca9555"
	}
	cfg.Actuator.Backend = strings.ToLower(cfg.Actuator.Backend)
	if cfg.Actuator.Duration <= 0 {
		cfg.Actuator.Duration = 10 * time.Second
	}
	if cfg.Actuator.I2C.Bus == "" {
		cfg.Actuator.I2C.Bus = "/dev/i2c-1"
	}
	if cfg.Actuator.I2C.Addr == 0 {
		cfg.Actuator.I2C.Addr = 0x20
	}
	if cfg.Actuator.GPIO.Chip == "" {
		cfg.Actuator.GPIO.Chip = "gpiochip0"
	}

	if cfg.Sampling.ThresholdM <= 0 {
		cfg.Sampling.ThresholdM = 5
	}

	if cfg.Survey.Interval <= 0 {
		cfg.Survey.Interval = 5 * time.Second
	}
	if cfg.Survey.BootstrapRetryDelay <= 0 {
		cfg.Survey.BootstrapRetryDelay = 2 * time.Second
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.LogBuffer <= 0 {
		cfg.Web.LogBuffer = 500
	}
}

// Validate checks a defaulted config.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Mission.Name) == "" {
		return fmt.Errorf("mission.name is required")
	}
	if strings.ContainsAny(cfg.Mission.Name, `/\`) {
		return fmt.Errorf("mission.name must not contain path separators")
	}
	if cfg.Helm.Addr == "" {
		return fmt.Errorf("helm.addr is required unless helm.simulate.enable is true")
	}
	if cfg.Helm.Poll.MaxAttempts < 0 {
		return fmt.Errorf("helm.poll.max_attempts must be >= 0")
	}

	switch cfg.Sonde.Mode {
	case "serial":
		if cfg.Sonde.Serial.Path == "" {
			return fmt.Errorf("sonde.serial.path is required when sonde.mode is serial")
		}
	case "http":
		if cfg.Sonde.HTTP.URL == "" {
			return fmt.Errorf("sonde.http.url is required when sonde.mode is http")
		}
	case "sim":
	default:
		return fmt.Errorf("sonde.mode must be one of serial, http, sim")
	}
	for _, id := range cfg.Sonde.Parameters {
		if id <= 0 {
			return fmt.Errorf("sonde.parameters must be positive ids (got %d)", id)
		}
	}
	if cfg.Sonde.Poll.MaxAttempts < 0 {
		return fmt.Errorf("sonde.poll.max_attempts must be >= 0")
	}

	switch cfg.Actuator.Backend {
	case "pca9555", "memory":
	case "gpio":
		if n := len(cfg.Actuator.GPIO.Offsets); n == 0 || n > 16 {
			return fmt.Errorf("actuator.gpio.offsets must list 1..16 line offsets (got %d)", n)
		}
	default:
		return fmt.Errorf("actuator.backend must be one of pca9555, gpio, memory")
	}
	if cfg.Actuator.I2C.Addr > 0x7f {
		return fmt.Errorf("actuator.i2c.addr must be a 7-bit address")
	}

	if cfg.Sampling.Worklist != "" && cfg.Sampling.Every > 0 {
		return fmt.Errorf("sampling.worklist and sampling.every cannot both be set")
	}

	if cfg.Survey.Cycles < 0 {
		return fmt.Errorf("survey.cycles must be >= 0")
	}
	if cfg.Survey.BootstrapMaxAttempts < 0 {
		return fmt.Errorf("survey.bootstrap_max_attempts must be >= 0")
	}
	return nil
}
