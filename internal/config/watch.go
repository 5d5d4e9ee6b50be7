package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the config file on change and passes each valid result to
// onChange. Invalid reloads are logged and ignored. It does nothing when no
// file was read.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(reloadHandler(v, log, onChange))
	v.WatchConfig()
	return true
}

func reloadHandler(v *viper.Viper, log *slog.Logger, onChange func(*Config)) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			log.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		log.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	}
}
