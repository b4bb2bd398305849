package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/gookit/validate"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/sunrised/internal/ramp"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Database        DatabaseConfig    `yaml:"database"`
	NVRAM           NVRAMConfig       `yaml:"nvram"`
	Clock           ClockConfig       `yaml:"clock"`
	PWM             PWMConfig         `yaml:"pwm"`
	Ramp            RampConfig        `yaml:"ramp"`
	Loop            LoopConfig        `yaml:"loop"`
	Sync            SyncConfig        `yaml:"sync"`
	Mode            Mode              `yaml:"mode"`
	Debug           DebugConfig       `yaml:"debug"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"required|in:trace,debug,info,warn,error"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // JSON lines instead of the console writer
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// NVRAMConfig sizes the persistent byte store
type NVRAMConfig struct {
	Size int `yaml:"size" validate:"required|min:5|max:255"` // Cells, the config uses the first 5
}

// ClockConfig selects the clock source
type ClockConfig struct {
	Source string `yaml:"source" validate:"required|in:soft,system"`
}

// PWMConfig describes the output fixture
type PWMConfig struct {
	Backend        string          `yaml:"backend" validate:"required|in:sysfs,hue,log"`
	ResolutionBits int             `yaml:"resolution_bits" validate:"required|min:1|max:16"`
	Channels       []ChannelConfig `yaml:"channels"`
	Sysfs          SysfsConfig     `yaml:"sysfs"`
	Hue            HueConfig       `yaml:"hue"`
}

// ChannelConfig is one output channel and its ramp start offset
type ChannelConfig struct {
	Offset Duration `yaml:"offset"` // Delay after session start before this channel ramps
	Pin    int      `yaml:"pin"`    // sysfs pin
	Light  int      `yaml:"light"`  // Hue light ID
}

// SysfsConfig contains Linux PWM chip settings
type SysfsConfig struct {
	Root      string   `yaml:"root"`
	Chip      int      `yaml:"chip"`
	Period    Duration `yaml:"period"`
	ActiveLow bool     `yaml:"active_low"`
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string  `yaml:"bridge"`
	Token        string  `yaml:"token"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// RampConfig shapes the brightness curve
type RampConfig struct {
	Exponent float64  `yaml:"exponent"`
	Tick     Duration `yaml:"tick"` // Duty re-evaluation cadence while ramping
}

// LoopConfig contains sequencer loop timings
type LoopConfig struct {
	Interval Duration `yaml:"interval"`                         // Idle between trigger checks
	Settle   Duration `yaml:"settle"`                           // Plain delays only, for this long after boot
	Suspend  string   `yaml:"suspend" validate:"in:none,timer"` // Idle strategy once settled
}

// SyncConfig contains remote sync settings
type SyncConfig struct {
	ConfigURL string   `yaml:"config_url" validate:"fullUrl"`
	TimeURL   string   `yaml:"time_url" validate:"fullUrl"`
	Timeout   Duration `yaml:"timeout"`
	Interval  Duration `yaml:"interval"` // 0 = boot and on demand only
	OnBoot    *bool    `yaml:"on_boot"`  // default: true
}

// SyncOnBoot reports whether to sync during boot
func (c *SyncConfig) SyncOnBoot() bool {
	return c.OnBoot == nil || *c.OnBoot
}

// Mode selects the startup behaviour
type Mode string

const (
	ModeNormal    Mode = "normal"
	ModeDebugRamp Mode = "debug-ramp" // one shortened session right after boot
	ModeDebugPWM  Mode = "debug-pwm"  // light each channel in turn right after boot
)

// DebugConfig contains debug mode settings
type DebugConfig struct {
	RampDuration Duration `yaml:"ramp_duration"`
	KeepOn       Duration `yaml:"keep_on"`
	PWMStep      Duration `yaml:"pwm_step"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Serve /metrics on the healthcheck server
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"min:1|max:65535"`
}

// MQTTConfig contains broker settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos" validate:"min:0|max:2"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 64)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 64
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Stagger returns the per-channel ramp start offsets
func (c *PWMConfig) Stagger() ramp.Stagger {
	s := make(ramp.Stagger, len(c.Channels))
	for i, ch := range c.Channels {
		s[i] = ch.Offset.Duration()
	}
	return s
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables, decodes YAML, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./sunrised.sqlite"
	}
	if cfg.NVRAM.Size == 0 {
		cfg.NVRAM.Size = 31 // DS1302 RAM size
	}
	if cfg.Clock.Source == "" {
		cfg.Clock.Source = "soft"
	}

	// PWM defaults - three channels staggered by five minutes
	if cfg.PWM.Backend == "" {
		cfg.PWM.Backend = "log"
	}
	if cfg.PWM.ResolutionBits == 0 {
		cfg.PWM.ResolutionBits = 12
	}
	if len(cfg.PWM.Channels) == 0 {
		cfg.PWM.Channels = []ChannelConfig{
			{Offset: 0, Pin: 0, Light: 1},
			{Offset: Duration(5 * time.Minute), Pin: 1, Light: 2},
			{Offset: Duration(10 * time.Minute), Pin: 2, Light: 3},
		}
	}
	if cfg.PWM.Sysfs.Root == "" {
		cfg.PWM.Sysfs.Root = "/sys/class/pwm"
	}
	if cfg.PWM.Sysfs.Period == 0 {
		cfg.PWM.Sysfs.Period = Duration(time.Millisecond) // 1 kHz
	}
	if cfg.PWM.Hue.RateLimitRPS == 0 {
		cfg.PWM.Hue.RateLimitRPS = 5.0
	}

	// Ramp defaults
	if cfg.Ramp.Exponent == 0 {
		cfg.Ramp.Exponent = ramp.DefaultExponent
	}
	if cfg.Ramp.Tick == 0 {
		cfg.Ramp.Tick = Duration(ramp.DefaultTick)
	}

	// Loop defaults
	if cfg.Loop.Interval == 0 {
		cfg.Loop.Interval = Duration(55 * time.Second)
	}
	if cfg.Loop.Settle == 0 {
		cfg.Loop.Settle = Duration(5 * time.Minute)
	}
	if cfg.Loop.Suspend == "" {
		cfg.Loop.Suspend = "none"
	}

	// Sync defaults - Interval defaults to 0 (boot and on demand only)
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = Duration(10 * time.Second)
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeNormal
	}

	// Debug defaults
	if cfg.Debug.RampDuration == 0 {
		cfg.Debug.RampDuration = Duration(time.Minute)
	}
	if cfg.Debug.KeepOn == 0 {
		cfg.Debug.KeepOn = Duration(10 * time.Second)
	}
	if cfg.Debug.PWMStep == 0 {
		cfg.Debug.PWMStep = Duration(2 * time.Second)
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sunrised"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "sunrised"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks every section and the rules that span fields.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		data any
	}{
		{"log", &c.Log},
		{"database", &c.Database},
		{"nvram", &c.NVRAM},
		{"clock", &c.Clock},
		{"pwm", &c.PWM},
		{"loop", &c.Loop},
		{"sync", &c.Sync},
		{"healthcheck", &c.Healthcheck},
		{"mqtt", &c.MQTT},
	}
	for _, s := range sections {
		v := validate.Struct(s.data)
		if !v.Validate() {
			return fmt.Errorf("%s: %s", s.name, v.Errors.One())
		}
	}

	switch c.Mode {
	case ModeNormal, ModeDebugRamp, ModeDebugPWM:
	default:
		return fmt.Errorf("mode: unknown mode %q", c.Mode)
	}

	if len(c.PWM.Channels) == 0 {
		return fmt.Errorf("pwm: at least one channel is required")
	}
	switch c.PWM.Backend {
	case "hue":
		if c.PWM.Hue.Bridge == "" || c.PWM.Hue.Token == "" {
			return fmt.Errorf("pwm.hue: bridge and token are required")
		}
	case "sysfs":
		if c.PWM.Sysfs.Period <= 0 {
			return fmt.Errorf("pwm.sysfs: period must be positive")
		}
	}

	if c.Ramp.Exponent <= 0 {
		return fmt.Errorf("ramp: exponent must be positive")
	}
	if c.Ramp.Tick <= 0 || c.Loop.Interval <= 0 {
		return fmt.Errorf("ramp.tick and loop.interval must be positive")
	}
	if c.Loop.Interval.Duration() >= time.Minute {
		return fmt.Errorf("loop: interval %s would skip trigger minutes", c.Loop.Interval.Duration())
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync: interval must not be negative")
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// GetShutdownTimeout returns the graceful shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Addr returns the listen address
func (c *HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
