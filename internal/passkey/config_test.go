package passkey

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "localhost" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "localhost")
	}
	if cfg.RPDisplayName != "Latchkey" {
		t.Fatalf("RPDisplayName = %q, want %q", cfg.RPDisplayName, "Latchkey")
	}
	if len(cfg.RPOrigins) != 1 || cfg.RPOrigins[0] != "http://localhost:8087" {
		t.Fatalf("RPOrigins = %v, want [%q]", cfg.RPOrigins, "http://localhost:8087")
	}
	if cfg.ChallengeTTL != 5*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 5*time.Minute)
	}
	if cfg.PendingTTL != 15*time.Minute {
		t.Fatalf("PendingTTL = %v, want %v", cfg.PendingTTL, 15*time.Minute)
	}
	if cfg.Confirmation != ConfirmationEmail {
		t.Fatalf("Confirmation = %q, want %q", cfg.Confirmation, ConfirmationEmail)
	}
}

func TestLoadConfigFromEnvCustomRP(t *testing.T) {
	t.Setenv("LATCHKEY_RP_ID", "example.com")
	t.Setenv("LATCHKEY_RP_DISPLAY_NAME", "Example")
	cfg := LoadConfigFromEnv()
	if cfg.RPID != "example.com" {
		t.Fatalf("RPID = %q, want %q", cfg.RPID, "example.com")
	}
	if cfg.RPDisplayName != "Example" {
		t.Fatalf("RPDisplayName = %q, want %q", cfg.RPDisplayName, "Example")
	}
}

func TestLoadConfigFromEnvCustomOrigins(t *testing.T) {
	t.Setenv("LATCHKEY_RP_ORIGINS", "https://a.com,https://b.com")
	cfg := LoadConfigFromEnv()
	if len(cfg.RPOrigins) != 2 {
		t.Fatalf("RPOrigins len = %d, want 2", len(cfg.RPOrigins))
	}
	if cfg.RPOrigins[0] != "https://a.com" || cfg.RPOrigins[1] != "https://b.com" {
		t.Fatalf("RPOrigins = %v", cfg.RPOrigins)
	}
}

func TestLoadConfigFromEnvCustomTTLs(t *testing.T) {
	t.Setenv("LATCHKEY_CHALLENGE_TTL", "2m")
	t.Setenv("LATCHKEY_PENDING_TTL", "30m")
	cfg := LoadConfigFromEnv()
	if cfg.ChallengeTTL != 2*time.Minute {
		t.Fatalf("ChallengeTTL = %v, want %v", cfg.ChallengeTTL, 2*time.Minute)
	}
	if cfg.PendingTTL != 30*time.Minute {
		t.Fatalf("PendingTTL = %v, want %v", cfg.PendingTTL, 30*time.Minute)
	}
}

func TestLoadConfigFromEnvUnknownConfirmationPolicy(t *testing.T) {
	t.Setenv("LATCHKEY_CONFIRMATION", "mystery")
	cfg := LoadConfigFromEnv()
	if cfg.Confirmation != ConfirmationEmail {
		t.Fatalf("Confirmation = %q, want fallback %q", cfg.Confirmation, ConfirmationEmail)
	}
}

func TestLoadConfigFromEnvAutoConfirmation(t *testing.T) {
	t.Setenv("LATCHKEY_CONFIRMATION", "auto")
	cfg := LoadConfigFromEnv()
	if cfg.Confirmation != ConfirmationAuto {
		t.Fatalf("Confirmation = %q, want %q", cfg.Confirmation, ConfirmationAuto)
	}
}
