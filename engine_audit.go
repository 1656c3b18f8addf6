package authfront

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInSuccess     = "signin_success"
	auditEventSignInFailure     = "signin_failure"
	auditEventSignOut           = "signout"
	auditEventMFARequired       = "mfa_required"
	auditEventMFASuccess        = "mfa_success"
	auditEventMFAFailure        = "mfa_failure"
	auditEventLinkStarted       = "link_started"
	auditEventLinkResumed       = "link_resumed"
	auditEventLinkEmailVerified = "link_email_verified"
	auditEventLinkRedirect      = "link_redirect"
	auditEventLinkCompleted     = "link_completed"
	auditEventLinkCancelled     = "link_cancelled"
	auditEventLinkFailure       = "link_failure"
	auditEventLinkExpired       = "link_expired"
	auditEventCallbackError     = "callback_error"
	auditEventCallbackMalformed = "callback_malformed"
	auditEventCallbackSession   = "callback_session"
	auditEventGuardForcedLogout = "guard_forced_logout"
	auditEventRecoveryCompleted = "recovery_completed"
	auditEventRecoveryExpired   = "recovery_expired"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrNoSuchAccount     AuditErrorCode = "no_such_account"
	auditErrInvalidCode       AuditErrorCode = "invalid_or_expired_code"
	auditErrProviderConflict  AuditErrorCode = "provider_conflict"
	auditErrSessionExchange   AuditErrorCode = "session_exchange_failed"
	auditErrBackend           AuditErrorCode = "backend_unavailable"
	auditErrMalformedCallback AuditErrorCode = "malformed_callback"
	auditErrStaleAttempt      AuditErrorCode = "stale_linking_attempt"
	auditErrMFANotRequired    AuditErrorCode = "mfa_not_required"
	auditErrNoSession         AuditErrorCode = "no_session"
	auditErrFlagBackend       AuditErrorCode = "flag_backend"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoSuchAccount):
		return auditErrNoSuchAccount
	case errors.Is(err, ErrInvalidOrExpiredCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrProviderConflict):
		return auditErrProviderConflict
	case errors.Is(err, ErrSessionExchangeFailed):
		return auditErrSessionExchange
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrBackend
	case errors.Is(err, ErrMalformedCallback):
		return auditErrMalformedCallback
	case errors.Is(err, ErrStaleLinkingAttempt):
		return auditErrStaleAttempt
	case errors.Is(err, ErrMFANotRequired):
		return auditErrMFANotRequired
	case errors.Is(err, ErrNoSession):
		return auditErrNoSession
	case errors.Is(err, ErrFlagBackend):
		return auditErrFlagBackend
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	provider string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Provider:  provider,
		TabID:     tabIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
