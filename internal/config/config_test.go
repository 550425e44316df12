package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"BOT_TOKEN", "BACKEND_BASE_URL", "ROSTER_STALE_AFTER", "OPERATOR_IDS", "PLATFORM_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.RosterStaleAfter != 30*time.Second || cfg.RosterSweepEvery != 5*time.Second {
		t.Fatalf("unexpected roster timings %v %v", cfg.RosterStaleAfter, cfg.RosterSweepEvery)
	}
	if cfg.SuccessAdvanceDelay != 2*time.Second {
		t.Fatalf("advance delay = %v", cfg.SuccessAdvanceDelay)
	}
	if cfg.PlatformLevel != 31 || cfg.EnrichWorkers != 4 {
		t.Fatalf("unexpected presence settings %+v", cfg)
	}

	err := cfg.Validate()
	if !errors.Is(err, ErrMissingBotToken) || !errors.Is(err, ErrMissingBackendURL) {
		t.Fatalf("validate = %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/")
	t.Setenv("OPERATOR_IDS", "1, 2,bad,3")
	t.Setenv("ROSTER_STALE_AFTER", "45s")
	t.Setenv("BACKEND_TIMEOUT", "nonsense")

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BackendBaseURL != "https://api.example.com" {
		t.Fatalf("base url = %q", cfg.BackendBaseURL)
	}
	if !cfg.IsOperator(2) || !cfg.IsOperator(3) || cfg.IsOperator(4) || len(cfg.OperatorIDs) != 3 {
		t.Fatalf("operators = %v", cfg.OperatorIDs)
	}
	if cfg.RosterStaleAfter != 45*time.Second {
		t.Fatalf("stale after = %v", cfg.RosterStaleAfter)
	}
	if cfg.BackendTimeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.BackendTimeout)
	}
}
