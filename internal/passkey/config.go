package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Purpose describes the ceremony a challenge was issued for.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

// ConfirmationPolicy selects how passkey-only accounts are confirmed.
type ConfirmationPolicy string

const (
	// ConfirmationAuto confirms accounts at creation with no email.
	ConfirmationAuto ConfirmationPolicy = "auto"
	// ConfirmationEmail creates accounts pending and queues a confirmation email.
	ConfirmationEmail ConfirmationPolicy = "email"
)

// Config controls WebAuthn relying party settings and ceremony lifetimes.
type Config struct {
	RPDisplayName string             `env:"LATCHKEY_RP_DISPLAY_NAME" envDefault:"Latchkey"`
	RPID          string             `env:"LATCHKEY_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string           `env:"LATCHKEY_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration      `env:"LATCHKEY_CHALLENGE_TTL"   envDefault:"5m"`
	PendingTTL    time.Duration      `env:"LATCHKEY_PENDING_TTL"     envDefault:"15m"`
	Confirmation  ConfirmationPolicy `env:"LATCHKEY_CONFIRMATION"    envDefault:"email"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Latchkey",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8087"},
			ChallengeTTL:  5 * time.Minute,
			PendingTTL:    15 * time.Minute,
			Confirmation:  ConfirmationEmail,
		}
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8087"}
	}
	if cfg.Confirmation != ConfirmationAuto && cfg.Confirmation != ConfirmationEmail {
		cfg.Confirmation = ConfirmationEmail
	}
	return cfg
}
