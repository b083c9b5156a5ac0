package factpod

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultRedirectURLTemplate is the redirect URL registered for each
	// site. The single %s verb is replaced with the site.
	DefaultRedirectURLTemplate = "https://%s/oauth/callback"

	// DefaultStateTTL is how long an issued authorization state stays valid
	DefaultStateTTL = 600 * time.Second

	// DefaultStateAttempts bounds the regenerate-on-conflict retry when
	// inserting a fresh authorization state
	DefaultStateAttempts = 3
)

// DefaultScopes is the fixed scope set requested from every pod provider.
func DefaultScopes() []string {
	return []string{"facts:read", "facts:make-irrelevant"}
}

// RateLimitConfig bounds dynamic client registrations per site.
type RateLimitConfig struct {
	// RegistrationsPerInterval is the sustained allowance (default 10)
	RegistrationsPerInterval int

	// Interval is the window for the sustained allowance (default 1 hour)
	Interval time.Duration

	// Burst is the short-term burst allowance (default 3)
	Burst int
}

// SecurityConfig holds audit and secret-at-rest settings.
type SecurityConfig struct {
	// AuditEnabled turns on structured audit events for enablement flows.
	// User identifiers in audit output are hashed, never raw.
	AuditEnabled bool

	// EncryptionPassphrase, when set, encrypts client secrets at rest.
	// Requires EncryptionSalt.
	EncryptionPassphrase string

	// EncryptionSalt must be a stable per-deployment value; changing it
	// makes previously stored secrets unreadable.
	EncryptionSalt string
}

// Config holds orchestration service configuration. The zero value is valid:
// Validate fills in all defaults.
type Config struct {
	// RedirectURLTemplate is the template for per-site redirect URLs,
	// containing exactly one %s verb for the site
	// (default "https://%s/oauth/callback")
	RedirectURLTemplate string

	// StateTTL is the lifetime of an issued authorization state
	// (default 600s). Whole seconds; sub-second precision is truncated
	// when persisted.
	StateTTL time.Duration

	// Scopes is the scope set requested from providers
	// (default "facts:read facts:make-irrelevant")
	Scopes []string

	// StateAttempts bounds the state-collision retry (default 3)
	StateAttempts int

	// Logger is the structured logger (default slog.Default())
	Logger *slog.Logger

	// RateLimit bounds registration calls per site
	RateLimit RateLimitConfig

	// Security holds audit and encryption settings
	Security SecurityConfig
}

// Validate checks the configuration and applies defaults in place.
func (c *Config) Validate() error {
	if c.RedirectURLTemplate == "" {
		c.RedirectURLTemplate = DefaultRedirectURLTemplate
	}
	if strings.Count(c.RedirectURLTemplate, "%s") != 1 {
		return fmt.Errorf("redirect URL template must contain exactly one %%s verb: %q", c.RedirectURLTemplate)
	}

	if c.StateTTL == 0 {
		c.StateTTL = DefaultStateTTL
	}
	if c.StateTTL < time.Second {
		return fmt.Errorf("state TTL must be at least one second, got %v", c.StateTTL)
	}

	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes()
	}

	if c.StateAttempts == 0 {
		c.StateAttempts = DefaultStateAttempts
	}
	if c.StateAttempts < 1 {
		return fmt.Errorf("state attempts must be positive, got %d", c.StateAttempts)
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.RateLimit.RegistrationsPerInterval == 0 {
		c.RateLimit.RegistrationsPerInterval = 10
	}
	if c.RateLimit.Interval == 0 {
		c.RateLimit.Interval = time.Hour
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 3
	}

	if c.Security.EncryptionPassphrase != "" && c.Security.EncryptionSalt == "" {
		return fmt.Errorf("encryption passphrase requires an encryption salt")
	}

	return nil
}
