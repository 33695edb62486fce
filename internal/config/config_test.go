package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ClassifierProvider != "auto" {
		t.Fatalf("ClassifierProvider = %q, want %q", cfg.ClassifierProvider, "auto")
	}
	if cfg.ConfidenceFloor != 0.55 {
		t.Fatalf("ConfidenceFloor = %v, want 0.55", cfg.ConfidenceFloor)
	}
	if cfg.TieBreakEpsilon != 0.05 {
		t.Fatalf("TieBreakEpsilon = %v, want 0.05", cfg.TieBreakEpsilon)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", cfg.HistoryWindow)
	}
	if cfg.DispatchTimeout != 10*time.Second {
		t.Fatalf("DispatchTimeout = %v, want 10s", cfg.DispatchTimeout)
	}
	if cfg.RetryBase != 200*time.Millisecond {
		t.Fatalf("RetryBase = %v, want 200ms", cfg.RetryBase)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_CONFIDENCE_FLOOR", "0.7")
	t.Setenv("APP_DISPATCH_TIMEOUT", "5s")
	t.Setenv("CLASSIFIER_PROVIDER", "rules")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ConfidenceFloor != 0.7 {
		t.Fatalf("ConfidenceFloor = %v, want 0.7", cfg.ConfidenceFloor)
	}
	if cfg.DispatchTimeout != 5*time.Second {
		t.Fatalf("DispatchTimeout = %v, want 5s", cfg.DispatchTimeout)
	}
	if cfg.ClassifierProvider != "rules" {
		t.Fatalf("ClassifierProvider = %q, want %q", cfg.ClassifierProvider, "rules")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad provider", "CLASSIFIER_PROVIDER", "magic"},
		{"floor too high", "APP_CONFIDENCE_FLOOR", "1.5"},
		{"negative epsilon", "APP_TIE_BREAK_EPSILON", "-0.1"},
		{"zero history", "APP_HISTORY_WINDOW", "0"},
		{"tiny dispatch timeout", "APP_DISPATCH_TIMEOUT", "10ms"},
		{"unparsable bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadOpenAIProviderRequiresKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CLASSIFIER_PROVIDER", "openai")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want missing key error")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want %q", cfg.OpenAIAPIKey, "sk-test")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_CONFIDENCE_FLOOR",
		"APP_TIE_BREAK_EPSILON",
		"APP_HISTORY_WINDOW",
		"APP_DISPATCH_TIMEOUT",
		"APP_CLASSIFIER_RETRY_BASE",
		"APP_CLASSIFIER_RETRY_CAP",
		"APP_CONFIRM_DESTRUCTIVE_BELOW",
		"APP_SLOT_ACCEPTANCE",
		"CLASSIFIER_PROVIDER",
		"OPENAI_API_KEY",
		"OPENAI_CLASSIFIER_MODEL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
