package websocket

import (
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/wisp/pkg/config"
)

const (
	DefaultPort    = 8080
	DefaultTLSPort = 8443

	settingsPrefix = "wisp.websocket."
)

// Settings are read from the wisp.websocket configuration block.
type Settings struct {
	Host     string
	Port     int
	SSL      bool
	CertFile string
	KeyFile  string

	// MaxConnections caps concurrent sessions; 0 means unlimited.
	MaxConnections int64
	// FragmentSize > 0 delivers inbound messages in chunks of at most this
	// many bytes, with isFinal=false on all but the last.
	FragmentSize int
	// SendQueue bounds the pending writes per session.
	SendQueue       int
	ShutdownTimeout time.Duration
	// ReadLimit caps inbound message size in bytes; 0 means no limit.
	ReadLimit int64
}

func DefaultSettings() Settings {
	return Settings{
		Host:            "0.0.0.0",
		SendQueue:       256,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadSettings overlays the keys present under wisp.websocket onto the
// defaults. A key that is present but malformed is an error.
func LoadSettings(cfg config.Configuration) (Settings, error) {
	s := DefaultSettings()
	if cfg == nil {
		s.Port = DefaultPort
		return s, nil
	}

	var err error
	str := func(key string, dst *string) {
		if err != nil || !cfg.HasPath(settingsPrefix+key) {
			return
		}
		*dst, err = cfg.GetString(settingsPrefix + key)
	}
	integer := func(key string, dst *int) {
		if err != nil || !cfg.HasPath(settingsPrefix+key) {
			return
		}
		*dst, err = cfg.GetInt(settingsPrefix + key)
	}
	long := func(key string, dst *int64) {
		if err != nil || !cfg.HasPath(settingsPrefix+key) {
			return
		}
		*dst, err = cfg.GetLong(settingsPrefix + key)
	}

	str("host", &s.Host)
	integer("port", &s.Port)
	if err == nil && cfg.HasPath(settingsPrefix+"ssl") {
		s.SSL, err = cfg.GetBoolean(settingsPrefix + "ssl")
	}
	str("cert-file", &s.CertFile)
	str("key-file", &s.KeyFile)
	long("max-connections", &s.MaxConnections)
	integer("fragment-size", &s.FragmentSize)
	integer("send-queue", &s.SendQueue)
	long("read-limit", &s.ReadLimit)
	if err == nil && cfg.HasPath(settingsPrefix+"shutdown-timeout") {
		s.ShutdownTimeout, err = cfg.GetDuration(settingsPrefix + "shutdown-timeout")
	}
	if err != nil {
		return s, err
	}

	// an explicit 0 asks the OS for a free port
	if !cfg.HasPath(settingsPrefix + "port") {
		s.Port = DefaultPort
		if s.SSL {
			s.Port = DefaultTLSPort
		}
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	switch {
	case s.Port < 0 || s.Port > 65535:
		return errors.Errorf("wisp.websocket.port out of range: %d", s.Port)
	case s.MaxConnections < 0:
		return errors.New("wisp.websocket.max-connections must not be negative")
	case s.FragmentSize < 0:
		return errors.New("wisp.websocket.fragment-size must not be negative")
	case s.SendQueue <= 0:
		return errors.New("wisp.websocket.send-queue must be positive")
	case (s.CertFile == "") != (s.KeyFile == ""):
		return errors.New("wisp.websocket.cert-file and key-file must be set together")
	}
	return nil
}
