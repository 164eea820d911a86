package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("expected default store backend memory, got %s", cfg.StoreBackend)
	}
	if cfg.CancelPolicy != CancelPolicyReopen {
		t.Errorf("expected default cancel policy reopen, got %s", cfg.CancelPolicy)
	}
	if cfg.Lane != "Dr-Chair" {
		t.Errorf("expected default lane Dr-Chair, got %s", cfg.Lane)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Errorf("expected default OTP TTL 5m, got %s", cfg.OTPTTL)
	}
	if cfg.MaxFailedAttempts != 3 {
		t.Errorf("expected 3 max failed attempts, got %d", cfg.MaxFailedAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Dynamo")
	t.Setenv("CANCEL_POLICY", "TOMBSTONE")
	t.Setenv("OPENINGS_DEFAULT_LIMIT", "10")
	t.Setenv("OTP_TTL", "2m")

	cfg := Load()

	if cfg.StoreBackend != StoreDynamo {
		t.Errorf("expected store backend normalized to dynamo, got %s", cfg.StoreBackend)
	}
	if cfg.CancelPolicy != CancelPolicyTombstone {
		t.Errorf("expected cancel policy normalized to tombstone, got %s", cfg.CancelPolicy)
	}
	if cfg.OpeningsLimit != 10 {
		t.Errorf("expected openings limit 10, got %d", cfg.OpeningsLimit)
	}
	if cfg.OTPTTL != 2*time.Minute {
		t.Errorf("expected OTP TTL 2m, got %s", cfg.OTPTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, true},
		{"unknown cancel policy", func(c *Config) { c.CancelPolicy = "both" }, true},
		{"postgres without url", func(c *Config) { c.StoreBackend = StorePostgres }, true},
		{"postgres with url", func(c *Config) {
			c.StoreBackend = StorePostgres
			c.DatabaseURL = "postgres://localhost/clinic"
		}, false},
		{"zero openings limit", func(c *Config) { c.OpeningsLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
