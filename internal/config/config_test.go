// README: Config loader tests: defaults, env overrides, validation.
package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SPARKLE_AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.CountdownSeconds != 25 {
		t.Errorf("dispatch.countdown_seconds = %d, want 25", cfg.Dispatch.CountdownSeconds)
	}
	if cfg.Cancellation.FreeWindowMins != 5 || cfg.Cancellation.TierAThresholdMins != 10 {
		t.Errorf("cancellation tiers = %d/%d, want 5/10",
			cfg.Cancellation.FreeWindowMins, cfg.Cancellation.TierAThresholdMins)
	}
	if cfg.Payout.TakeRate != "0.25" {
		t.Errorf("payout.take_rate = %q, want 0.25", cfg.Payout.TakeRate)
	}
	if cfg.Payments.Mode != "sim" {
		t.Errorf("payments.mode = %q, want sim", cfg.Payments.Mode)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPARKLE_AUTH_JWT_SECRET", "test-secret")
	t.Setenv("SPARKLE_DISPATCH_COUNTDOWN_SECONDS", "40")
	t.Setenv("SPARKLE_CANCELLATION_TIER_B_FEE_CENTS", "4500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dispatch.CountdownSeconds != 40 {
		t.Errorf("countdown override = %d, want 40", cfg.Dispatch.CountdownSeconds)
	}
	if cfg.Cancellation.TierBFeeCents != 4500 {
		t.Errorf("tier B override = %d, want 4500", cfg.Cancellation.TierBFeeCents)
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	t.Setenv("SPARKLE_AUTH_JWT_SECRET", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestValidateRejectsUnorderedTiers(t *testing.T) {
	t.Setenv("SPARKLE_AUTH_JWT_SECRET", "test-secret")
	t.Setenv("SPARKLE_CANCELLATION_TIER_A_THRESHOLD_MINS", "4")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for tier_a_threshold_mins <= free_window_mins")
	}
}
