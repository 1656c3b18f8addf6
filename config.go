package authfront

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable of the orchestrator. Configure once through
// [Builder.WithConfig] and treat as immutable afterwards.
type Config struct {
	Linking  LinkingConfig
	Callback CallbackConfig
	Routes   RouteConfig
	Flags    FlagConfig
	Seed     SeedConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
LINKING CONFIG
====================================
*/

// LinkingConfig tunes the identity-linking state machine.
type LinkingConfig struct {
	// AttemptTTL bounds how old a persisted LinkingAttempt may be before it
	// is treated as abandoned. Stale attempts are a correctness hazard, not
	// clutter: they are discarded, never resumed.
	AttemptTTL time.Duration
	// CodeDigits is the expected one-time code length.
	CodeDigits int
}

/*
====================================
CALLBACK CONFIG
====================================
*/

// CallbackConfig tunes the SSO callback processor.
type CallbackConfig struct {
	// SessionPollInterval is the wait between the bounded session
	// materialization checks after an implicit-flow hash callback.
	SessionPollInterval time.Duration
	// SessionPollRetries is the number of extra polls after the first check.
	SessionPollRetries int
	// ErrorRedirectDelay is the readability grace period before redirecting
	// to login after a terminal provider error. UX pacing, not a retry
	// mechanism.
	ErrorRedirectDelay time.Duration
}

/*
====================================
ROUTE CONFIG
====================================
*/

// RouteConfig names the redirect targets and classification anchors. Paths
// are consumed, not owned: the route table lives in the surrounding
// application.
type RouteConfig struct {
	Login          string
	Register       string
	ForgotPassword string
	PasswordReset  string
	MFAVerify      string
	AdminHome      string
	Unauthorized   string

	// AdminPrefix marks admin-protected routes; AdminRole is the role the
	// user's set must contain to pass them.
	AdminPrefix string
	AdminRole   string

	// PublicPrefixes lists path prefixes reachable with no session at all.
	PublicPrefixes []string
}

/*
====================================
FLAG CONFIG
====================================
*/

// FlagConfig tunes flag storage.
type FlagConfig struct {
	RedisPrefix string
	// TabTTL bounds ephemeral keys of abandoned tabs.
	TabTTL time.Duration
}

// SeedConfig is the environment-level override for the staging seed account.
// When enabled, the guard treats the seed email as admin-equivalent. This is
// deliberately configuration, not a code path inside the state machines.
type SeedConfig struct {
	Enabled bool
	Email   string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the atomic counter set.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Linking: LinkingConfig{
			AttemptTTL: 10 * time.Minute,
			CodeDigits: 6,
		},
		Callback: CallbackConfig{
			SessionPollInterval: 500 * time.Millisecond,
			SessionPollRetries:  1,
			ErrorRedirectDelay:  5 * time.Second,
		},
		Routes: RouteConfig{
			Login:          "/login",
			Register:       "/register",
			ForgotPassword: "/forgot-password",
			PasswordReset:  "/reset-password",
			MFAVerify:      "/mfa-verify",
			AdminHome:      "/admin",
			Unauthorized:   "/unauthorized",
			AdminPrefix:    "/admin",
			AdminRole:      "admin",
		},
		Flags: FlagConfig{
			RedisPrefix: "af",
			TabTTL:      12 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.PublicPrefixes = append([]string(nil), cfg.Routes.PublicPrefixes...)
	return out
}

// Validate rejects configurations that would make the state machines
// unsound.
func (c *Config) Validate() error {
	if c.Linking.AttemptTTL <= 0 {
		return errors.New("Linking AttemptTTL must be > 0")
	}
	if c.Linking.CodeDigits <= 0 {
		return errors.New("Linking CodeDigits must be > 0")
	}

	if c.Callback.SessionPollInterval <= 0 {
		return errors.New("Callback SessionPollInterval must be > 0")
	}
	if c.Callback.SessionPollRetries < 0 {
		return errors.New("Callback SessionPollRetries must be >= 0")
	}
	if c.Callback.ErrorRedirectDelay < 0 {
		return errors.New("Callback ErrorRedirectDelay must be >= 0")
	}

	for _, target := range []struct {
		name string
		path string
	}{
		{"Login", c.Routes.Login},
		{"PasswordReset", c.Routes.PasswordReset},
		{"MFAVerify", c.Routes.MFAVerify},
		{"AdminHome", c.Routes.AdminHome},
		{"Unauthorized", c.Routes.Unauthorized},
	} {
		if path := target.path; path == "" || !strings.HasPrefix(path, "/") {
			return errors.New("Routes " + target.name + " must be an absolute path")
		}
	}
	if c.Routes.AdminRole == "" {
		return errors.New("Routes AdminRole must be set")
	}

	if c.Flags.TabTTL < 0 {
		return errors.New("Flags TabTTL must be >= 0")
	}
	if c.Flags.TabTTL > 0 && c.Flags.TabTTL < c.Linking.AttemptTTL {
		return errors.New("Flags TabTTL must not undercut Linking AttemptTTL")
	}

	if c.Seed.Enabled && c.Seed.Email == "" {
		return errors.New("Seed Email required when Seed override is enabled")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
