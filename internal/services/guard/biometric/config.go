package biometric

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/omnisign/sessionguard/internal/platform/branding"
	"github.com/omnisign/sessionguard/internal/platform/timeouts"
)

const defaultOrigin = "http://localhost:8090"

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName   string        `env:"OMNISIGN_GUARD_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID            string        `env:"OMNISIGN_GUARD_WEBAUTHN_RP_ID"              envDefault:"localhost"`
	RPOrigins       []string      `env:"OMNISIGN_GUARD_WEBAUTHN_RP_ORIGINS"         envSeparator:","`
	CeremonyTimeout time.Duration `env:"OMNISIGN_GUARD_WEBAUTHN_CEREMONY_TIMEOUT"   envDefault:"1m"`
}

// LoadConfigFromEnv returns relying party configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		cfg = Config{RPID: "localhost"}
		if rpID, ok := lookupEnv("OMNISIGN_GUARD_WEBAUTHN_RP_ID"); ok {
			cfg.RPID = rpID
		}
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.RPDisplayName == "" {
		c.RPDisplayName = branding.AppName
	}
	if c.RPID == "" {
		c.RPID = "localhost"
	}
	if len(c.RPOrigins) == 0 {
		c.RPOrigins = []string{defaultOrigin}
	}
	if c.CeremonyTimeout <= 0 {
		c.CeremonyTimeout = timeouts.BiometricCeremony
	}
	return c
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
