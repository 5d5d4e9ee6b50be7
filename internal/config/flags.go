package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"countdown":    "session.countdown",
	"broker":       "mqtt.broker",
	"http":         "http.addr",
	"store":        "store.path",
	"heartbeat":    "heartbeat",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"gpio":         "inputs.gpio.enabled",
	"gpio-chip":    "inputs.gpio.chip",
	"evdev":        "inputs.evdev.enabled",
	"evdev-device": "inputs.evdev.device",
	"evdev-grab":   "inputs.evdev.grab",
}

// RegisterFlags adds the override flags to fs. Their defaults mirror
// Default so --help shows real values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("countdown", d.Session.Countdown, "countdown ticks before an armed session fires")
	fs.String("broker", d.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.String("http", d.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.String("store", d.Store.Path, "incident database path (empty to disable)")
	fs.Duration("heartbeat", d.Heartbeat, "heartbeat interval (0 to disable)")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: text or json")
	fs.Bool("gpio", d.Inputs.GPIO.Enabled, "watch GPIO button lines")
	fs.String("gpio-chip", d.Inputs.GPIO.Chip, "GPIO chip name")
	fs.Bool("evdev", d.Inputs.Evdev.Enabled, "read an evdev input device")
	fs.String("evdev-device", d.Inputs.Evdev.Device, "evdev device node")
	fs.Bool("evdev-grab", d.Inputs.Evdev.Grab, "grab the evdev device exclusively")
}

// BindFlags binds the registered flags to their keys. A flag only
// overrides the file and environment when it is set explicitly.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
