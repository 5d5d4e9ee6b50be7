// Package config loads daemon settings from defaults, an optional file,
// SOS_TRIGGER_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/sweeney/sos-trigger/internal/evdev"
	"github.com/sweeney/sos-trigger/internal/gpio"
	"github.com/sweeney/sos-trigger/internal/logic"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to environment overrides, e.g.
// SOS_TRIGGER_SESSION_COUNTDOWN for session.countdown.
const EnvPrefix = "SOS_TRIGGER"

// Config represents the daemon configuration.
type Config struct {
	Session   SessionConfig            `mapstructure:"session" yaml:"session"`
	Gestures  map[string]GestureConfig `mapstructure:"gestures" yaml:"gestures"`
	Inputs    InputsConfig             `mapstructure:"inputs" yaml:"inputs"`
	MQTT      MQTTConfig               `mapstructure:"mqtt" yaml:"mqtt"`
	HTTP      HTTPConfig               `mapstructure:"http" yaml:"http"`
	Store     StoreConfig              `mapstructure:"store" yaml:"store"`
	Heartbeat time.Duration            `mapstructure:"heartbeat" yaml:"heartbeat"`
	Log       LogConfig                `mapstructure:"log" yaml:"log"`
}

// SessionConfig controls the escalation countdown.
type SessionConfig struct {
	Countdown     int           `mapstructure:"countdown" yaml:"countdown"`
	TickInterval  time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	ShortAlertAt  int           `mapstructure:"short_alert_at" yaml:"short_alert_at"`
	Level2Presses int           `mapstructure:"level2_presses" yaml:"level2_presses"`
	Level3Presses int           `mapstructure:"level3_presses" yaml:"level3_presses"`
	InitialLevel  int           `mapstructure:"initial_level" yaml:"initial_level"`
}

// GestureConfig describes one gesture. The map key is its name.
type GestureConfig struct {
	Disabled      bool          `mapstructure:"disabled" yaml:"disabled,omitempty"`
	Buttons       []string      `mapstructure:"buttons" yaml:"buttons"`
	Presses       int           `mapstructure:"presses" yaml:"presses"`
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	MinGap        time.Duration `mapstructure:"min_gap" yaml:"min_gap"`
	Cooldown      time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	ChordWindow   time.Duration `mapstructure:"chord_window" yaml:"chord_window"`
	IgnoreRepeats bool          `mapstructure:"ignore_repeats" yaml:"ignore_repeats"`
	Trigger       string        `mapstructure:"trigger" yaml:"trigger,omitempty"`
	Action        string        `mapstructure:"action" yaml:"action"`
}

type InputsConfig struct {
	GPIO  GPIOConfig  `mapstructure:"gpio" yaml:"gpio"`
	Evdev EvdevConfig `mapstructure:"evdev" yaml:"evdev"`
}

// GPIOConfig maps button ids to BCM line offsets.
type GPIOConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Chip     string         `mapstructure:"chip" yaml:"chip"`
	Debounce time.Duration  `mapstructure:"debounce" yaml:"debounce"`
	Pins     map[string]int `mapstructure:"pins" yaml:"pins"`
}

// EvdevConfig maps button ids to Linux key codes.
type EvdevConfig struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Device  string         `mapstructure:"device" yaml:"device"`
	Grab    bool           `mapstructure:"grab" yaml:"grab"`
	Keys    map[string]int `mapstructure:"keys" yaml:"keys"`
}

// MQTTConfig holds broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `mapstructure:"broker" yaml:"broker"`
	ClientID   string `mapstructure:"client_id" yaml:"client_id"`
	Prefix     string `mapstructure:"prefix" yaml:"prefix"`
	Username   string `mapstructure:"username" yaml:"username,omitempty"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// HTTPConfig holds the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig holds the incident database path. Empty disables history.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	sc := logic.DefaultSessionConfig()
	cfg := &Config{
		Session: SessionConfig{
			Countdown:     sc.Countdown,
			TickInterval:  sc.TickInterval,
			ShortAlertAt:  sc.ShortAlertAt,
			Level2Presses: sc.Level2Presses,
			Level3Presses: sc.Level3Presses,
			InitialLevel:  sc.InitialLevel,
		},
		Gestures: make(map[string]GestureConfig),
		Inputs: InputsConfig{
			GPIO: GPIOConfig{
				Enabled:  true,
				Chip:     gpio.DefaultChip,
				Debounce: gpio.DefaultDebounce,
				Pins:     copyMap(gpio.DefaultPins),
			},
			Evdev: EvdevConfig{
				Device: "/dev/input/event0",
				Keys:   copyMap(evdev.DefaultKeys),
			},
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://127.0.0.1:1883",
			ClientID:   "sos-trigger",
			Prefix:     "safety/sos-trigger",
			BufferSize: 100,
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Store:     StoreConfig{Path: "/var/lib/sos-trigger/incidents.db"},
		Heartbeat: 15 * time.Minute,
		Log:       LogConfig{Level: "info", Format: "text"},
	}
	for _, g := range logic.DefaultGestures() {
		cfg.Gestures[g.Name] = fromLogic(g)
	}
	return cfg
}

func fromLogic(g logic.GestureConfig) GestureConfig {
	buttons := make([]string, len(g.Buttons))
	for i, b := range g.Buttons {
		buttons[i] = string(b)
	}
	return GestureConfig{
		Buttons:       buttons,
		Presses:       g.RequiredPresses,
		Window:        g.PressWindow,
		MinGap:        g.MinGap,
		Cooldown:      g.Cooldown,
		ChordWindow:   g.ChordWindow,
		IgnoreRepeats: g.IgnoreRepeats,
		Trigger:       string(g.Trigger),
		Action:        string(g.Action),
	}
}

func copyMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SetDefaults registers every default key on v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("session.countdown", d.Session.Countdown)
	v.SetDefault("session.tick_interval", d.Session.TickInterval)
	v.SetDefault("session.short_alert_at", d.Session.ShortAlertAt)
	v.SetDefault("session.level2_presses", d.Session.Level2Presses)
	v.SetDefault("session.level3_presses", d.Session.Level3Presses)
	v.SetDefault("session.initial_level", d.Session.InitialLevel)

	for name, g := range d.Gestures {
		key := "gestures." + name + "."
		v.SetDefault(key+"disabled", g.Disabled)
		v.SetDefault(key+"buttons", g.Buttons)
		v.SetDefault(key+"presses", g.Presses)
		v.SetDefault(key+"window", g.Window)
		v.SetDefault(key+"min_gap", g.MinGap)
		v.SetDefault(key+"cooldown", g.Cooldown)
		v.SetDefault(key+"chord_window", g.ChordWindow)
		v.SetDefault(key+"ignore_repeats", g.IgnoreRepeats)
		v.SetDefault(key+"trigger", g.Trigger)
		v.SetDefault(key+"action", g.Action)
	}

	v.SetDefault("inputs.gpio.enabled", d.Inputs.GPIO.Enabled)
	v.SetDefault("inputs.gpio.chip", d.Inputs.GPIO.Chip)
	v.SetDefault("inputs.gpio.debounce", d.Inputs.GPIO.Debounce)
	for name, pin := range d.Inputs.GPIO.Pins {
		v.SetDefault("inputs.gpio.pins."+name, pin)
	}
	v.SetDefault("inputs.evdev.enabled", d.Inputs.Evdev.Enabled)
	v.SetDefault("inputs.evdev.device", d.Inputs.Evdev.Device)
	v.SetDefault("inputs.evdev.grab", d.Inputs.Evdev.Grab)
	for name, code := range d.Inputs.Evdev.Keys {
		v.SetDefault("inputs.evdev.keys."+name, code)
	}

	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.prefix", d.MQTT.Prefix)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.buffer_size", d.MQTT.BufferSize)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("heartbeat", d.Heartbeat)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads path into v. With an empty path, sos-trigger.{toml,yaml,json}
// is searched for in the working directory and /etc/sos-trigger; a missing
// file is not an error in that case.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("sos-trigger")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/sos-trigger")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and reports the first problem wrapped in
// ErrInvalid.
func (c *Config) Validate() error {
	if err := c.SessionConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	gestures, err := c.GestureConfigs()
	if err != nil {
		return err
	}
	if _, err := logic.NewGestureSet(gestures); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !c.Inputs.GPIO.Enabled && !c.Inputs.Evdev.Enabled {
		return fmt.Errorf("%w: at least one of inputs.gpio and inputs.evdev must be enabled", ErrInvalid)
	}
	if c.Inputs.GPIO.Enabled {
		if c.Inputs.GPIO.Chip == "" {
			return fmt.Errorf("%w: inputs.gpio.chip is required", ErrInvalid)
		}
		if c.Inputs.GPIO.Debounce < 0 {
			return fmt.Errorf("%w: inputs.gpio.debounce must not be negative", ErrInvalid)
		}
		if _, err := gpio.ParsePins(c.Inputs.GPIO.Pins); err != nil {
			return fmt.Errorf("%w: inputs.gpio.pins: %v", ErrInvalid, err)
		}
	}
	if c.Inputs.Evdev.Enabled {
		if c.Inputs.Evdev.Device == "" {
			return fmt.Errorf("%w: inputs.evdev.device is required", ErrInvalid)
		}
		if _, err := evdev.ParseKeymap(c.Inputs.Evdev.Keys); err != nil {
			return fmt.Errorf("%w: inputs.evdev.keys: %v", ErrInvalid, err)
		}
	}

	if c.MQTT.Broker != "" && c.MQTT.Prefix == "" {
		return fmt.Errorf("%w: mqtt.prefix is required when a broker is set", ErrInvalid)
	}
	if c.MQTT.BufferSize < 0 {
		return fmt.Errorf("%w: mqtt.buffer_size must not be negative", ErrInvalid)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// SessionConfig converts the session section.
func (c *Config) SessionConfig() logic.SessionConfig {
	return logic.SessionConfig{
		Countdown:     c.Session.Countdown,
		ShortAlertAt:  c.Session.ShortAlertAt,
		Level2Presses: c.Session.Level2Presses,
		Level3Presses: c.Session.Level3Presses,
		InitialLevel:  c.Session.InitialLevel,
		TickInterval:  c.Session.TickInterval,
	}
}

// GestureConfigs converts the enabled gestures, ordered by name.
func (c *Config) GestureConfigs() ([]logic.GestureConfig, error) {
	names := make([]string, 0, len(c.Gestures))
	for name, g := range c.Gestures {
		if !g.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]logic.GestureConfig, 0, len(names))
	for _, name := range names {
		g := c.Gestures[name]
		action, ok := logic.ParseAction(g.Action)
		if !ok {
			return nil, fmt.Errorf("%w: gesture %s: unknown action %q", ErrInvalid, name, g.Action)
		}
		buttons := make([]logic.Button, len(g.Buttons))
		for i, b := range g.Buttons {
			buttons[i] = logic.Button(strings.ToLower(strings.TrimSpace(b)))
		}
		lg := logic.GestureConfig{
			Name:            name,
			Buttons:         buttons,
			RequiredPresses: g.Presses,
			PressWindow:     g.Window,
			MinGap:          g.MinGap,
			Cooldown:        g.Cooldown,
			ChordWindow:     g.ChordWindow,
			IgnoreRepeats:   g.IgnoreRepeats,
			Trigger:         logic.Transition(strings.ToUpper(g.Trigger)),
			Action:          action,
		}
		if err := lg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		out = append(out, lg)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no gestures enabled", ErrInvalid)
	}
	return out, nil
}

// EnabledInputs returns the names of the enabled input surfaces.
func (c *Config) EnabledInputs() []string {
	var out []string
	if c.Inputs.GPIO.Enabled {
		out = append(out, "gpio")
	}
	if c.Inputs.Evdev.Enabled {
		out = append(out, "evdev")
	}
	return out
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.MQTT.Password != "" {
		cp.MQTT.Password = "********"
	}
	return &cp
}
