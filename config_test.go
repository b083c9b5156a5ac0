package factpod

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero config should validate: %v", err)
	}

	if cfg.RedirectURLTemplate != DefaultRedirectURLTemplate {
		t.Errorf("redirect template default not applied: %q", cfg.RedirectURLTemplate)
	}
	if cfg.StateTTL != DefaultStateTTL {
		t.Errorf("state TTL default not applied: %v", cfg.StateTTL)
	}
	if strings.Join(cfg.Scopes, " ") != "facts:read facts:make-irrelevant" {
		t.Errorf("scope default not applied: %v", cfg.Scopes)
	}
	if cfg.StateAttempts != DefaultStateAttempts {
		t.Errorf("state attempts default not applied: %d", cfg.StateAttempts)
	}
	if cfg.Logger == nil {
		t.Error("logger default not applied")
	}
	if cfg.RateLimit.RegistrationsPerInterval != 10 || cfg.RateLimit.Burst != 3 {
		t.Errorf("rate limit defaults not applied: %+v", cfg.RateLimit)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"template without verb", Config{RedirectURLTemplate: "https://gateway.example/callback"}, true},
		{"template with two verbs", Config{RedirectURLTemplate: "https://%s/cb/%s"}, true},
		{"sub-second TTL", Config{StateTTL: 100 * time.Millisecond}, true},
		{"passphrase without salt", Config{Security: SecurityConfig{EncryptionPassphrase: "p"}}, true},
		{"passphrase with salt", Config{Security: SecurityConfig{EncryptionPassphrase: "p", EncryptionSalt: "s"}}, false},
		{"custom valid template", Config{RedirectURLTemplate: "https://gw.example/%s/cb"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
