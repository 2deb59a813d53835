package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr %s", cfg.HTTPAddr)
	}
	if cfg.AutoExecuteConfidence != 0.85 || cfg.MinSelectConfidence != 0.6 {
		t.Fatalf("unexpected thresholds: %+v", cfg)
	}
	if cfg.AutoExecuteEnabled {
		t.Fatal("auto-execute must default off")
	}
	if !cfg.LLMFallbackEnabled || !cfg.ContextRetryEnabled {
		t.Fatal("fallback and retry must default on")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROUTER_RUNTIME_HTTP_ADDR", ":9999")
	t.Setenv("ROUTER_RUNTIME_AUTO_EXECUTE_ENABLED", "true")
	t.Setenv("ROUTER_RUNTIME_AUTO_EXECUTE_CONFIDENCE", "0.9")
	t.Setenv("ROUTER_RUNTIME_SNAPSHOT_MAX_AGE_TURNS", "3")
	t.Setenv("ROUTER_RUNTIME_SAFE_REASONS", "exact label, unique match ,")

	cfg := FromEnv()
	if cfg.HTTPAddr != ":9999" || !cfg.AutoExecuteEnabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.AutoExecuteConfidence != 0.9 || cfg.SnapshotMaxAgeTurns != 3 {
		t.Fatalf("numeric overrides not applied: %+v", cfg)
	}
	reasons := cfg.SafeReasons()
	if len(reasons) != 2 || reasons[1] != "unique match" {
		t.Fatalf("unexpected safe reasons: %v", reasons)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("ROUTER_RUNTIME_LLM_TIMEOUT_SECONDS", "soon")
	t.Setenv("ROUTER_RUNTIME_AUTO_EXECUTE_ENABLED", "maybe")

	cfg := FromEnv()
	if cfg.LLMTimeoutSec != 12 {
		t.Fatalf("expected fallback timeout, got %d", cfg.LLMTimeoutSec)
	}
	if cfg.AutoExecuteEnabled {
		t.Fatal("malformed bool must keep the default")
	}
}
