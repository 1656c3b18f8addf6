package authfront

import (
	"context"
	"strings"
	"time"
)

// Session is the backend-issued credential bundle for the current tab.
// Exactly one Session is active per tab context; sign-out invalidates it
// wholesale. The Engine never persists a Session as a source of truth — it is
// always re-derivable from the backend.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the session's access credential is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// MfaMethod describes one enrolled multi-factor method.
type MfaMethod struct {
	ID       string
	Type     string // "totp" or "email"
	Verified bool
}

// UserRecord is the reconciled identity: the backend's bare identity merged
// with its profile row. Derived on demand, never stored authoritatively.
type UserRecord struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
	MFAMethods  []MfaMethod
}

// HasRole reports whether the record's role set contains role
// (case-insensitive).
func (u *UserRecord) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// MFAEnrolled reports whether the user has at least one verified MFA method.
func (u *UserRecord) MFAEnrolled() bool {
	if u == nil {
		return false
	}
	for _, m := range u.MFAMethods {
		if m.Verified {
			return true
		}
	}
	return false
}

// MfaStage enumerates the states of the MFA machine.
type MfaStage uint8

const (
	// MfaNotRequired means the session has no MFA obligation.
	MfaNotRequired MfaStage = iota
	// MfaRequiredUnverified means MFA is owed and not yet satisfied.
	MfaRequiredUnverified
	// MfaVerifying means a code has been submitted and awaits the backend.
	MfaVerifying
	// MfaVerified means the backend confirmed the challenge for this session.
	MfaVerified
)

// String implements fmt.Stringer for audit and test output.
func (s MfaStage) String() string {
	switch s {
	case MfaNotRequired:
		return "not_required"
	case MfaRequiredUnverified:
		return "required_unverified"
	case MfaVerifying:
		return "verifying"
	case MfaVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// parseMfaStage inverts String for stages restored from durable storage.
func parseMfaStage(v string) (MfaStage, bool) {
	switch v {
	case "not_required":
		return MfaNotRequired, true
	case "required_unverified":
		return MfaRequiredUnverified, true
	case "verifying":
		return MfaVerifying, true
	case "verified":
		return MfaVerified, true
	default:
		return MfaNotRequired, false
	}
}

// MfaState is the MFA machine's snapshot for the current session. Verified
// implies the stage passed through MfaRequiredUnverified earlier in the same
// session lineage.
type MfaState struct {
	Stage    MfaStage
	MethodID string
}

// Required reports whether an MFA obligation exists and is unsatisfied.
func (s MfaState) Required() bool {
	return s.Stage == MfaRequiredUnverified || s.Stage == MfaVerifying
}

// LinkStep enumerates the identity-linking machine's states.
type LinkStep uint8

const (
	// LinkInitial is the entry step: email and provider supplied.
	LinkInitial LinkStep = iota
	// LinkVerifyEmail awaits the out-of-band one-time code.
	LinkVerifyEmail
	// LinkStartOAuth awaits the user triggering the provider redirect.
	LinkStartOAuth
	// LinkComplete is terminal: the provider identity is attached.
	LinkComplete
	// LinkError is terminal pending retry or cancel.
	LinkError
)

// String implements fmt.Stringer.
func (s LinkStep) String() string {
	switch s {
	case LinkInitial:
		return "initial"
	case LinkVerifyEmail:
		return "verify_email"
	case LinkStartOAuth:
		return "start_oauth"
	case LinkComplete:
		return "complete"
	case LinkError:
		return "error"
	default:
		return "unknown"
	}
}

// LinkingAttempt is the persisted continuation of an in-progress linking
// flow. It survives the full-page redirect to the OAuth provider; the
// returning callback runs in a fresh page load with no other memory of the
// flow. An attempt older than the configured TTL is abandoned, never resumed.
type LinkingAttempt struct {
	ID        string
	Email     string
	Provider  string
	Step      LinkStep
	StartedAt time.Time
}

// Expired reports whether the attempt is past ttl and must be discarded.
func (a *LinkingAttempt) Expired(now time.Time, ttl time.Duration) bool {
	if a == nil {
		return true
	}
	return now.Sub(a.StartedAt) > ttl
}

// LinkAction is the server-side reconciliation outcome for a link-identity
// call.
type LinkAction string

const (
	// LinkActionCreated means a fresh provider identity row was attached.
	LinkActionCreated LinkAction = "created"
	// LinkActionAlreadyLinked means the identity was attached previously;
	// completing twice is a no-op.
	LinkActionAlreadyLinked LinkAction = "already_linked"
	// LinkActionInitiated means the backend started an extra verification
	// step and the flow must continue client-side.
	LinkActionInitiated LinkAction = "link_initiated"
	// LinkActionError means reconciliation failed.
	LinkActionError LinkAction = "error"
)

// LinkOutcome is returned by the backend's link-identity reconciliation
// function.
type LinkOutcome struct {
	Action  LinkAction
	Message string
}

// SignInResult is returned by password sign-in. When RequiresMFA is set the
// caller must route the user to the MFA verification screen before treating
// the session as usable.
type SignInResult struct {
	Session     *Session
	User        *UserRecord
	RequiresMFA bool
}

// Backend is the only gateway to the external authentication service. All
// calls are fallible and never retried silently by the Engine.
//
// CurrentSession returns (nil, nil) when no session exists; that is not an
// error.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error)
	SignOut(ctx context.Context) error

	SendOneTimeCode(ctx context.Context, email string) error
	VerifyOneTimeCode(ctx context.Context, email, code string) (*Session, error)

	AuthorizeURL(ctx context.Context, provider, state, redirectTo string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*Session, error)

	CurrentSession(ctx context.Context) (*Session, error)
	CurrentUser(ctx context.Context) (*UserRecord, error)

	UserExists(ctx context.Context, email string) (bool, error)

	EnrollMFA(ctx context.Context, mfaType string) (*MfaMethod, error)
	VerifyMFA(ctx context.Context, methodID, code string) error

	FetchProfile(ctx context.Context, userID string) (*UserRecord, error)
	UpsertProfile(ctx context.Context, record *UserRecord) error

	LinkIdentity(ctx context.Context, email, provider, attemptID string) (*LinkOutcome, error)
}
