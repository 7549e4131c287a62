package server

import (
	"time"

	"github.com/omnisign/sessionguard/internal/platform/config"
	"github.com/omnisign/sessionguard/internal/services/guard/lockout"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds the guard process settings.
type Config struct {
	HTTPAddr              string        `env:"OMNISIGN_GUARD_HTTP_ADDR" envDefault:"127.0.0.1:8090"`
	Storage               string        `env:"OMNISIGN_GUARD_STORAGE" envDefault:"sqlite"`
	DBPath                string        `env:"OMNISIGN_GUARD_DB_PATH" envDefault:"data/guard.db"`
	Namespace             string        `env:"OMNISIGN_GUARD_NAMESPACE" envDefault:"omnisign"`
	AllowedOrigins        []string      `env:"OMNISIGN_GUARD_ALLOWED_ORIGINS" envSeparator:","`
	DefaultTimeoutMinutes int           `env:"OMNISIGN_GUARD_DEFAULT_TIMEOUT_MINUTES" envDefault:"30"`
	MinTimeoutMinutes     int           `env:"OMNISIGN_GUARD_MIN_TIMEOUT_MINUTES" envDefault:"5"`
	LockoutThreshold      int           `env:"OMNISIGN_GUARD_LOCKOUT_THRESHOLD" envDefault:"4"`
	LockoutWindow         time.Duration `env:"OMNISIGN_GUARD_LOCKOUT_WINDOW" envDefault:"30m"`
	RequireCurrentPIN     bool          `env:"OMNISIGN_GUARD_REQUIRE_CURRENT_PIN" envDefault:"false"`
	CeremonySweepSchedule string        `env:"OMNISIGN_GUARD_CEREMONY_SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

// LoadConfigFromEnv reads Config from the process environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) sessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.DefaultTimeoutMinutes = c.DefaultTimeoutMinutes
	sc.MinTimeoutMinutes = c.MinTimeoutMinutes
	sc.Lockout = lockout.Policy{Threshold: c.LockoutThreshold, Window: c.LockoutWindow}
	sc.RequireCurrentPIN = c.RequireCurrentPIN
	return sc
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return storage.DefaultNamespace
	}
	return c.Namespace
}
