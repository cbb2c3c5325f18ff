package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig       `yaml:"log"`
	Database        DatabaseConfig  `yaml:"database"`
	Geo             GeoConfig       `yaml:"geo"`
	Site            SiteConfig      `yaml:"site"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	Hue             HueConfig       `yaml:"hue"`
	Influx          InfluxConfig    `yaml:"influx"`
	HTTP            HTTPConfig      `yaml:"http"`
	Glass           GlassConfig     `yaml:"glass"`
	Occupancy       OccupancyConfig `yaml:"occupancy"`
	Circadian       CircadianConfig `yaml:"circadian"`
	WakeLight       WakeLightConfig `yaml:"wake_light"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GeoConfig contains the location used for sunrise/sunset calculations
type GeoConfig struct {
	Name     string  `yaml:"name"`
	Timezone string  `yaml:"timezone"`
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
}

// HasLocation reports whether coordinates are configured.
func (c GeoConfig) HasLocation() bool {
	return c.Lat != 0 || c.Lon != 0
}

// SiteConfig points at the site model file (rooms, devices, capabilities)
type SiteConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains broker settings for telemetry and commands
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	QoS            int      `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// IsEnabled returns true if a broker is configured
func (c MQTTConfig) IsEnabled() bool {
	return c.Broker != ""
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string  `yaml:"bridge"`
	Token        string  `yaml:"token"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// IsEnabled returns true if a Hue bridge is configured
func (c HueConfig) IsEnabled() bool {
	return c.Bridge != "" && c.Token != ""
}

// InfluxConfig contains telemetry history settings
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// IsEnabled returns true if an InfluxDB URL is configured
func (c InfluxConfig) IsEnabled() bool {
	return c.URL != ""
}

// HTTPConfig contains API server settings
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GlassConfig contains the security panel ("glass") settings
type GlassConfig struct {
	ArmDelay Duration                `yaml:"arm_delay"`
	Bridges  map[string]GlassBridge `yaml:"bridges"`
}

// GlassBridge is a single wall panel allowed to disarm security
type GlassBridge struct {
	PIN string `yaml:"pin"`
	PSK string `yaml:"psk"`
}

// OccupancyConfig contains room occupancy settings
type OccupancyConfig struct {
	DefaultIdle  Duration            `yaml:"default_idle"`
	IdleTimeouts map[string]Duration `yaml:"idle_timeouts"` // keyed by room type; "0s" means never idle
	DimBeforeOff Duration            `yaml:"dim_before_off"`
	Refresh      Duration            `yaml:"refresh"` // circadian refresh interval for lit rooms
	InboxSize    int                 `yaml:"inbox_size"`
}

// Waypoint is a color temperature / brightness pair
type Waypoint struct {
	Kelvin     int `yaml:"kelvin"`
	Brightness int `yaml:"brightness"`
}

// CircadianConfig contains circadian lighting waypoints
type CircadianConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Day        Waypoint `yaml:"day"`
	Evening    Waypoint `yaml:"evening"`
	Night      Waypoint `yaml:"night"`
	NightStart string   `yaml:"night_start"` // time expression, e.g. "22:30" or "@sunset + 4h"
	Transition Duration `yaml:"transition"`
}

// WakeLightConfig contains sunrise simulation settings
type WakeLightConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Room         string   `yaml:"room"`
	Buffer       Duration `yaml:"buffer"` // ramp starts at sunrise - buffer
	Span         Duration `yaml:"span"`
	Grace        Duration `yaml:"grace"`
	Step         Duration `yaml:"step"`
	DismissDelay Duration `yaml:"dismiss_delay"`
	Warm         int      `yaml:"warm"`
	Daylight     int      `yaml:"daylight"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	QueueSize int `yaml:"queue_size"` // Per-subscriber queue size (default: 100)
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention period as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
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

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding env vars and applying defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hubd.sqlite"
	}
	if cfg.Site.Path == "" {
		cfg.Site.Path = "site.yaml"
	}
	if cfg.Geo.Timezone == "" {
		cfg.Geo.Timezone = "UTC"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "hubd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "hubd"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}

	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}

	if cfg.Influx.Bucket == "" {
		cfg.Influx.Bucket = "telemetry"
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}

	if cfg.Glass.ArmDelay == 0 {
		cfg.Glass.ArmDelay = Duration(10 * time.Minute)
	}

	// Occupancy defaults
	if cfg.Occupancy.DefaultIdle == 0 {
		cfg.Occupancy.DefaultIdle = Duration(5 * time.Minute)
	}
	if cfg.Occupancy.Refresh == 0 {
		cfg.Occupancy.Refresh = Duration(5 * time.Minute)
	}
	if cfg.Occupancy.InboxSize <= 0 {
		cfg.Occupancy.InboxSize = 32
	}

	// Circadian defaults
	if cfg.Circadian.Day == (Waypoint{}) {
		cfg.Circadian.Day = Waypoint{Kelvin: 5000, Brightness: 100}
	}
	if cfg.Circadian.Evening == (Waypoint{}) {
		cfg.Circadian.Evening = Waypoint{Kelvin: 2700, Brightness: 80}
	}
	if cfg.Circadian.Night == (Waypoint{}) {
		cfg.Circadian.Night = Waypoint{Kelvin: 2200, Brightness: 20}
	}
	if cfg.Circadian.NightStart == "" {
		cfg.Circadian.NightStart = "22:30"
	}
	if cfg.Circadian.Transition == 0 {
		cfg.Circadian.Transition = Duration(time.Hour)
	}

	// Wake light defaults
	if cfg.WakeLight.Buffer == 0 {
		cfg.WakeLight.Buffer = Duration(30 * time.Minute)
	}
	if cfg.WakeLight.Span == 0 {
		cfg.WakeLight.Span = Duration(30 * time.Minute)
	}
	if cfg.WakeLight.Grace == 0 {
		cfg.WakeLight.Grace = Duration(time.Hour)
	}
	if cfg.WakeLight.Step == 0 {
		cfg.WakeLight.Step = Duration(30 * time.Second)
	}
	if cfg.WakeLight.DismissDelay == 0 {
		cfg.WakeLight.DismissDelay = Duration(2 * time.Second)
	}
	if cfg.WakeLight.Warm == 0 {
		cfg.WakeLight.Warm = 2000
	}
	if cfg.WakeLight.Daylight == 0 {
		cfg.WakeLight.Daylight = 5500
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	if c.WakeLight.Enabled && c.WakeLight.Room == "" {
		return fmt.Errorf("wake_light.room is required when wake_light is enabled")
	}
	// PIN/PSK are checked per request so a misconfigured panel surfaces as a 500
	for id := range c.Glass.Bridges {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("glass.bridges: empty bridge id")
		}
	}
	return nil
}

// IdleTimeout returns the configured idle timeout for a room type.
// ok is false when the room type has no explicit entry.
func (c OccupancyConfig) IdleTimeout(roomType string) (d time.Duration, ok bool) {
	v, ok := c.IdleTimeouts[roomType]
	return v.Duration(), ok
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
