package config

import "testing"

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOTAL_ROUNDS", "4")
	t.Setenv("CLUE_SECONDS", "120")
	t.Setenv("RESOLVE_DELAY_SECONDS", "10")

	cfg := Load()
	if cfg.TotalRounds != 4 {
		t.Fatalf("expected 4 rounds, got %d", cfg.TotalRounds)
	}
	if cfg.ClueDurationSeconds != 120 {
		t.Fatalf("expected 120s clue ceiling, got %d", cfg.ClueDurationSeconds)
	}
	if cfg.ResolveDelaySeconds != 10 {
		t.Fatalf("expected 10s resolve delay, got %d", cfg.ResolveDelaySeconds)
	}
}

func TestLoadRejectsStalledResolveDelay(t *testing.T) {
	for _, raw := range []string{"0", "-5", "nope"} {
		t.Setenv("RESOLVE_DELAY_SECONDS", raw)
		cfg := Load()
		if cfg.ResolveDelaySeconds != Default().ResolveDelaySeconds {
			t.Fatalf("RESOLVE_DELAY_SECONDS=%s: expected default %d, got %d",
				raw, Default().ResolveDelaySeconds, cfg.ResolveDelaySeconds)
		}
	}
}

func TestLoadKeepsOptionalTimersDisablable(t *testing.T) {
	// Theme and secret phases have manual advance paths; zero disables the
	// timer entirely.
	t.Setenv("THEME_SECONDS", "0")
	t.Setenv("SECRET_SECONDS", "0")

	cfg := Load()
	if cfg.ThemeDurationSeconds != 0 || cfg.SecretDurationSeconds != 0 {
		t.Fatalf("expected disabled theme/secret timers, got %d/%d",
			cfg.ThemeDurationSeconds, cfg.SecretDurationSeconds)
	}
}
