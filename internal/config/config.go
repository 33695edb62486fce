package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the todo chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	ClassifierProvider string

	OpenAIAPIKey string
	OpenAIModel  string

	ConfidenceFloor float64
	TieBreakEpsilon float64
	HistoryWindow   int
	DispatchTimeout time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration

	ConfirmDestructiveBelow float64
	SlotAcceptance          float64

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "taskchat"),
		AllowAnyOrigin:     false,
		ClassifierProvider: envOrDefault("CLASSIFIER_PROVIDER", "auto"),
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:        envOrDefault("OPENAI_CLASSIFIER_MODEL", "gpt-4o-mini"),
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,
		DispatchTimeout: 10 * time.Second,
		RetryBase:       200 * time.Millisecond,
		RetryCap:        2 * time.Second,

		ConfidenceFloor: 0.55,
		TieBreakEpsilon: 0.05,
		HistoryWindow:   10,

		ConfirmDestructiveBelow: 0.75,
		SlotAcceptance:          0.5,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchTimeout, err = durationFromEnv("APP_DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBase, err = durationFromEnv("APP_CLASSIFIER_RETRY_BASE", cfg.RetryBase)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryCap, err = durationFromEnv("APP_CLASSIFIER_RETRY_CAP", cfg.RetryCap)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceFloor, err = floatFromEnv("APP_CONFIDENCE_FLOOR", cfg.ConfidenceFloor)
	if err != nil {
		return Config{}, err
	}
	cfg.TieBreakEpsilon, err = floatFromEnv("APP_TIE_BREAK_EPSILON", cfg.TieBreakEpsilon)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfirmDestructiveBelow, err = floatFromEnv("APP_CONFIRM_DESTRUCTIVE_BELOW", cfg.ConfirmDestructiveBelow)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotAcceptance, err = floatFromEnv("APP_SLOT_ACCEPTANCE", cfg.SlotAcceptance)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("APP_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ClassifierProvider)) {
	case "auto", "rules", "openai":
	default:
		return Config{}, fmt.Errorf("CLASSIFIER_PROVIDER must be auto, rules, or openai")
	}
	if strings.EqualFold(cfg.ClassifierProvider, "openai") && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("CLASSIFIER_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if cfg.ConfidenceFloor <= 0 || cfg.ConfidenceFloor >= 1 {
		return Config{}, fmt.Errorf("APP_CONFIDENCE_FLOOR must be in (0, 1)")
	}
	if cfg.TieBreakEpsilon < 0 || cfg.TieBreakEpsilon >= 0.5 {
		return Config{}, fmt.Errorf("APP_TIE_BREAK_EPSILON must be in [0, 0.5)")
	}
	if cfg.ConfirmDestructiveBelow <= 0 || cfg.ConfirmDestructiveBelow > 1 {
		return Config{}, fmt.Errorf("APP_CONFIRM_DESTRUCTIVE_BELOW must be in (0, 1]")
	}
	if cfg.SlotAcceptance <= 0 || cfg.SlotAcceptance >= 1 {
		return Config{}, fmt.Errorf("APP_SLOT_ACCEPTANCE must be in (0, 1)")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("APP_HISTORY_WINDOW must be positive")
	}
	if cfg.DispatchTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_DISPATCH_TIMEOUT must be at least 1s")
	}
	if cfg.RetryBase <= 0 {
		return Config{}, fmt.Errorf("APP_CLASSIFIER_RETRY_BASE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
