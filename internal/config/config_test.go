package config

import (
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Provider: ProviderConfig{BaseURL: "https://maps.example.com/api"},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		cfg := validConfig()
		cfg.HTTP.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for port %d", port)
		}
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database.addrs")
	}
}

func TestValidate_MissingProviderBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Provider.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing provider.base_url")
	}
}

func TestValidate_GeohashPrecisionTooLarge(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.GeohashPrecision = 13
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for geohash precision > 12")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Storage.KeyPrefix != "placedex:" {
		t.Errorf("expected default key prefix, got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Resolver.MinResultsSearch != 5 {
		t.Errorf("expected min_results_search default 5, got %d", cfg.Resolver.MinResultsSearch)
	}
	if cfg.Resolver.MinResultsAutocomplete != 3 {
		t.Errorf("expected min_results_autocomplete default 3, got %d", cfg.Resolver.MinResultsAutocomplete)
	}
	if cfg.Provider.Retry.Multiplier != 2.0 {
		t.Errorf("expected retry multiplier default 2.0, got %f", cfg.Provider.Retry.Multiplier)
	}
	if cfg.Provider.Breaker.HalfOpenMaxCalls != 1 {
		t.Errorf("expected half_open_max_calls default 1, got %d", cfg.Provider.Breaker.HalfOpenMaxCalls)
	}
	if cfg.Resolver.GeohashPrecision != 7 {
		t.Errorf("expected geohash precision default 7, got %d", cfg.Resolver.GeohashPrecision)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PLACEDEX_TEST_KEY", "secret")

	in := []byte("api_key: ${PLACEDEX_TEST_KEY}\nurl: ${PLACEDEX_TEST_MISSING:-fallback}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: secret\nurl: fallback\n" {
		t.Errorf("unexpected expansion result: %q", out)
	}
}
