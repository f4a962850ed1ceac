package redisstream

import (
	"github.com/go-go-golems/wisp/pkg/config"
)

const settingsPrefix = "wisp.bus.redis."

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool
	Addr     string
	Group    string
	Consumer string
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "wisp",
		Consumer: "wisp-1",
	}
}

// LoadSettings reads the wisp.bus.redis block. Missing keys keep their
// defaults; present keys must have the right type.
func LoadSettings(cfg config.Configuration) (Settings, error) {
	s := DefaultSettings()
	if cfg == nil {
		return s, nil
	}
	if cfg.HasPath(settingsPrefix + "enabled") {
		v, err := cfg.GetBoolean(settingsPrefix + "enabled")
		if err != nil {
			return s, err
		}
		s.Enabled = v
	}
	for key, dst := range map[string]*string{
		"addr":     &s.Addr,
		"group":    &s.Group,
		"consumer": &s.Consumer,
	} {
		if !cfg.HasPath(settingsPrefix + key) {
			continue
		}
		v, err := cfg.GetString(settingsPrefix + key)
		if err != nil {
			return s, err
		}
		*dst = v
	}
	return s, nil
}
