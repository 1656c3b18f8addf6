package authfront

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acrelle/authfront/internal/otp"
)

// LinkingAttempt returns the live attempt for this tab, or nil when none
// exists. A stale record is discarded on the way out, never returned.
func (e *Engine) LinkingAttempt(ctx context.Context) (*LinkingAttempt, error) {
	if e == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}
	return e.loadFreshAttempt(ctx)
}

// StartLinking enters the identity-linking machine with {email, provider}.
//
// A fresh attempt already persisted in this tab is resumed as-is rather than
// restarted; an expired or errored one is overwritten. When no account
// exists for email the machine fails with ErrNoSuchAccount. When the caller
// already holds a live session for email, the email-verification step is
// skipped and the attempt starts at start_oauth.
func (e *Engine) StartLinking(ctx context.Context, email, provider string) (*LinkingAttempt, error) {
	if e == nil || e.backend == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}

	existing, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Step != LinkError {
		e.metricInc(MetricLinkResumed)
		e.emitAudit(ctx, auditEventLinkResumed, true, "", existing.Email, existing.Provider, nil, func() map[string]string {
			return map[string]string{"step": existing.Step.String()}
		})
		return existing, nil
	}

	exists, err := e.backend.UserExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if !exists {
		e.emitAudit(ctx, auditEventLinkFailure, false, "", email, provider, ErrNoSuchAccount, nil)
		return nil, fmt.Errorf("%w: %s", ErrNoSuchAccount, email)
	}

	attempt := &LinkingAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		Provider:  provider,
		StartedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	sessionEmail := ""
	if e.session != nil {
		sessionEmail = e.session.Email
	}
	e.mu.Unlock()

	if equalEmail(sessionEmail, email) {
		// Live session for this email: no re-verification needed.
		attempt.Step = LinkStartOAuth
	} else {
		if err := e.backend.SendOneTimeCode(ctx, email); err != nil {
			attempt.Step = LinkError
			if saveErr := e.attempts.Save(ctx, attempt); saveErr != nil {
				return nil, saveErr
			}
			e.metricInc(MetricLinkFailed)
			e.emitAudit(ctx, auditEventLinkFailure, false, "", email, provider, err, nil)
			return nil, err
		}
		attempt.Step = LinkVerifyEmail
	}

	if err := e.attempts.Save(ctx, attempt); err != nil {
		return nil, err
	}

	e.metricInc(MetricLinkStarted)
	e.emitAudit(ctx, auditEventLinkStarted, true, "", email, provider, nil, func() map[string]string {
		return map[string]string{"step": attempt.Step.String()}
	})
	return attempt, nil
}

// SubmitLinkingCode submits the one-time code for the verify_email step.
// Success, including the idempotent "already verified" case, advances the
// attempt to start_oauth. Failure leaves the attempt where it is and returns
// the backend's message verbatim; no retry counter is enforced here.
func (e *Engine) SubmitLinkingCode(ctx context.Context, code string) (*LinkingAttempt, error) {
	if e == nil || e.backend == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}

	attempt, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrNoLinkingAttempt
	}
	if attempt.Step != LinkVerifyEmail {
		return nil, fmt.Errorf("%w: at %s", ErrLinkingStep, attempt.Step)
	}

	if !otp.WellFormed(code, e.config.Linking.CodeDigits) {
		return nil, ErrInvalidOrExpiredCode
	}

	session, err := e.backend.VerifyOneTimeCode(ctx, attempt.Email, code)
	if err != nil {
		e.metricInc(MetricLinkCodeRejected)
		e.emitAudit(ctx, auditEventLinkFailure, false, "", attempt.Email, attempt.Provider, err, func() map[string]string {
			return map[string]string{"step": attempt.Step.String()}
		})
		return nil, err
	}

	// The code exchange may have minted a session for the attempt's email;
	// fold it in before moving on so the guard sees a consistent state.
	if session != nil {
		if err := e.applySignedIn(ctx, AuthEvent{Type: EventSignedIn, Session: session}); err != nil {
			return nil, err
		}
	}

	attempt.Step = LinkStartOAuth
	if err := e.attempts.Save(ctx, attempt); err != nil {
		return nil, err
	}

	e.metricInc(MetricLinkEmailVerified)
	e.emitAudit(ctx, auditEventLinkEmailVerified, true, "", attempt.Email, attempt.Provider, nil, nil)
	return attempt, nil
}

// BeginLinkingRedirect returns the provider authorization URL for the
// start_oauth step. The attempt record and the ssoAttempt marker are
// persisted before the URL is handed out: the redirect navigates away and
// the returning callback has no other memory of this flow.
func (e *Engine) BeginLinkingRedirect(ctx context.Context, redirectTo string) (string, error) {
	if e == nil || e.backend == nil || e.attempts == nil {
		return "", ErrEngineNotReady
	}

	attempt, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return "", err
	}
	if attempt == nil {
		return "", ErrNoLinkingAttempt
	}
	if attempt.Step != LinkStartOAuth {
		return "", fmt.Errorf("%w: at %s", ErrLinkingStep, attempt.Step)
	}

	if err := e.attempts.Save(ctx, attempt); err != nil {
		return "", err
	}
	if err := e.flags.Set(ctx, FlagSSOAttempt, attempt.ID, ScopeEphemeral); err != nil {
		return "", err
	}

	url, err := e.backend.AuthorizeURL(ctx, attempt.Provider, uuid.NewString(), redirectTo)
	if err != nil {
		e.emitAudit(ctx, auditEventLinkFailure, false, "", attempt.Email, attempt.Provider, err, nil)
		return "", err
	}

	e.emitAudit(ctx, auditEventLinkRedirect, true, "", attempt.Email, attempt.Provider, nil, nil)
	return url, nil
}

// CompleteLinking invokes the server-side reconciliation function and, on
// success, moves the attempt to its terminal step and clears the record.
// Completing an attempt that was already completed (duplicate notification
// delivery) is a no-op: exactly one provider identity stays attached and the
// attempt record is cleared exactly once.
func (e *Engine) CompleteLinking(ctx context.Context) (*LinkOutcome, error) {
	if e == nil || e.backend == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}

	attempt, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrNoLinkingAttempt
	}

	outcome, err := e.backend.LinkIdentity(ctx, attempt.Email, attempt.Provider, attempt.ID)
	if err != nil {
		attempt.Step = LinkError
		if saveErr := e.attempts.Save(ctx, attempt); saveErr != nil {
			return nil, saveErr
		}
		e.metricInc(MetricLinkFailed)
		e.emitAudit(ctx, auditEventLinkFailure, false, "", attempt.Email, attempt.Provider, err, nil)
		return nil, err
	}

	switch outcome.Action {
	case LinkActionCreated, LinkActionAlreadyLinked:
		if err := e.attempts.Clear(ctx); err != nil {
			return nil, err
		}
		if err := e.flags.Clear(ctx, FlagSSOAttempt, ScopeEphemeral); err != nil {
			return nil, err
		}
		e.metricInc(MetricLinkCompleted)
		e.emitAudit(ctx, auditEventLinkCompleted, true, "", attempt.Email, attempt.Provider, nil, func() map[string]string {
			return map[string]string{"action": string(outcome.Action)}
		})
		return outcome, nil
	case LinkActionInitiated:
		// Backend demands the extra verification step; rewind the attempt.
		attempt.Step = LinkVerifyEmail
		if err := e.attempts.Save(ctx, attempt); err != nil {
			return nil, err
		}
		return outcome, nil
	default:
		attempt.Step = LinkError
		if err := e.attempts.Save(ctx, attempt); err != nil {
			return nil, err
		}
		e.metricInc(MetricLinkFailed)
		e.emitAudit(ctx, auditEventLinkFailure, false, "", attempt.Email, attempt.Provider, ErrProviderConflict, func() map[string]string {
			return map[string]string{"message": outcome.Message}
		})
		return outcome, fmt.Errorf("%w: %s", ErrProviderConflict, outcome.Message)
	}
}

// CancelLinking exits the machine from any step, clearing every linking flag
// and the ssoAttempt marker.
func (e *Engine) CancelLinking(ctx context.Context) error {
	if e == nil || e.attempts == nil {
		return ErrEngineNotReady
	}
	if err := e.attempts.Clear(ctx); err != nil {
		return err
	}
	if err := e.flags.Clear(ctx, FlagSSOAttempt, ScopeEphemeral); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventLinkCancelled, true, "", "", "", nil, nil)
	return nil
}

// loadFreshAttempt loads the persisted attempt and silently discards it when
// past the TTL. Stale attempts are a correctness hazard and are never
// surfaced as a user error.
func (e *Engine) loadFreshAttempt(ctx context.Context) (*LinkingAttempt, error) {
	attempt, err := e.attempts.Load(ctx)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, nil
	}
	if attempt.Expired(time.Now(), e.config.Linking.AttemptTTL) {
		if err := e.attempts.Clear(ctx); err != nil {
			return nil, err
		}
		e.metricInc(MetricLinkExpired)
		e.emitAudit(ctx, auditEventLinkExpired, true, "", attempt.Email, attempt.Provider, ErrStaleLinkingAttempt, nil)
		return nil, nil
	}
	return attempt, nil
}

func equalEmail(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return normalizeEmail(a) == normalizeEmail(b)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
