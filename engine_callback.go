package authfront

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/acrelle/authfront/internal/tokenclaims"
)

// CallbackOutcome classifies what the SSO callback processor decided.
type CallbackOutcome uint8

const (
	// CallbackSignedIn means a session was established and no MFA is owed.
	CallbackSignedIn CallbackOutcome = iota
	// CallbackMFAPending means a session was established and the user must
	// verify MFA before protected routes open.
	CallbackMFAPending
	// CallbackLinkingHandoff means the code exchange failed while a linking
	// attempt is pending; the linking machine resumes instead of failing.
	CallbackLinkingHandoff
	// CallbackFailed is terminal: the UI shows the message, then redirects
	// after the grace delay.
	CallbackFailed
)

// CallbackResult tells the UI what to do after processing a returned
// redirect. RedirectDelay is a readability grace period, not a retry
// mechanism.
type CallbackResult struct {
	Outcome       CallbackOutcome
	Session       *Session
	Attempt       *LinkingAttempt
	RedirectTo    string
	ReturnURL     string
	RedirectDelay time.Duration
	// Message carries the provider's or backend's text verbatim. Masking it
	// has previously hidden actionable detail.
	Message string
}

// ProcessCallback handles the full returned redirect URL: query parameters
// and hash fragment. Decision order: explicit error parameter, then
// implicit-flow hash credentials, then authorization code, else malformed.
// An error parameter wins even when a code is also present.
//
// The returned CallbackResult is always non-nil; the error is non-nil only
// for failure outcomes and wraps the taxonomy sentinel for errors.Is.
func (e *Engine) ProcessCallback(ctx context.Context, rawURL string) (*CallbackResult, error) {
	if e == nil || e.backend == nil || e.flags == nil {
		return nil, ErrEngineNotReady
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		e.metricInc(MetricCallbackMalformed)
		return e.failResult(""), fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	query := parsed.Query()
	fragment, fragErr := url.ParseQuery(parsed.Fragment)
	if fragErr != nil {
		fragment = url.Values{}
	}

	// Rule 1: an explicit provider error is terminal, regardless of any
	// code riding along in the same URL.
	if msg, found := callbackError(query, fragment); found {
		e.metricInc(MetricCallbackError)
		e.emitAudit(ctx, auditEventCallbackError, false, "", "", "", ErrSessionExchangeFailed, func() map[string]string {
			return map[string]string{"provider_message": msg}
		})
		return e.failResult(msg), nil
	}

	// Rule 2: implicit-flow hash credentials mean the backend already
	// minted a session; wait briefly for it to materialize.
	if token := fragment.Get("access_token"); token != "" {
		return e.processHashCallback(ctx, fragment)
	}

	// Rule 3: authorization code exchange.
	if code := query.Get("code"); code != "" {
		return e.processCodeCallback(ctx, code)
	}

	// Rule 4: nothing usable.
	e.metricInc(MetricCallbackMalformed)
	e.emitAudit(ctx, auditEventCallbackMalformed, false, "", "", "", ErrMalformedCallback, nil)
	return e.failResult(""), ErrMalformedCallback
}

func (e *Engine) processHashCallback(ctx context.Context, fragment url.Values) (*CallbackResult, error) {
	session, err := e.awaitSession(ctx)
	if err != nil {
		return e.failResult(""), err
	}
	if session == nil {
		// Fall back to the fragment credentials themselves: the backend
		// signed them, the poll just raced the tab.
		session = sessionFromFragment(fragment)
	}
	if session == nil {
		e.metricInc(MetricSessionPollTimeout)
		return e.failResult(""), fmt.Errorf("%w: session did not materialize", ErrSessionExchangeFailed)
	}
	return e.postLoginReconcile(ctx, session)
}

func (e *Engine) processCodeCallback(ctx context.Context, code string) (*CallbackResult, error) {
	session, err := e.backend.ExchangeCode(ctx, code)
	if err != nil {
		e.metricInc(MetricCodeExchangeFailure)

		// An exchange failure during linking is expected when the backend
		// requires the extra verification step; hand off instead of failing.
		attempt, loadErr := e.loadFreshAttempt(ctx)
		if loadErr == nil && attempt != nil {
			e.emitAudit(ctx, auditEventCallbackSession, false, "", attempt.Email, attempt.Provider, err, func() map[string]string {
				return map[string]string{"handoff": "linking"}
			})
			return &CallbackResult{
				Outcome: CallbackLinkingHandoff,
				Attempt: attempt,
			}, nil
		}

		e.emitAudit(ctx, auditEventCallbackSession, false, "", "", "", err, nil)
		return e.failResult(""), fmt.Errorf("%w: %v", ErrSessionExchangeFailed, err)
	}

	e.metricInc(MetricCodeExchangeSuccess)
	return e.postLoginReconcile(ctx, session)
}

// postLoginReconcile runs once a session exists: fold the sign-in through
// the reducer (profile fetch, minimal-profile creation, MFA reset), finish a
// matching linking attempt, and route the user onward. A fresh SSO session
// never starts verified — provider-level authentication does not substitute
// for this application's MFA policy.
func (e *Engine) postLoginReconcile(ctx context.Context, session *Session) (*CallbackResult, error) {
	if err := e.applySignedIn(ctx, AuthEvent{Type: EventSignedIn, Session: session}); err != nil {
		return e.failResult(""), err
	}
	if err := e.flags.Clear(ctx, FlagSSOAttempt, ScopeEphemeral); err != nil {
		return e.failResult(""), err
	}

	attempt, err := e.loadFreshAttempt(ctx)
	if err != nil {
		return e.failResult(""), err
	}
	if attempt != nil && equalEmail(attempt.Email, session.Email) {
		if _, err := e.CompleteLinking(ctx); err != nil {
			return e.failResult(""), err
		}
	}

	e.emitAudit(ctx, auditEventCallbackSession, true, session.UserID, session.Email, "", nil, nil)

	e.mu.Lock()
	mfaRequired := e.mfa.Required()
	e.mu.Unlock()

	returnURL := returnURLFromContext(ctx)
	if mfaRequired {
		// Hand control to the verification screen; the originally requested
		// path rides along unchanged.
		if err := e.RequestMFACode(ctx); err != nil && err != ErrMFANotRequired {
			return e.failResult(""), err
		}
		return &CallbackResult{
			Outcome:    CallbackMFAPending,
			Session:    session,
			RedirectTo: e.config.Routes.MFAVerify,
			ReturnURL:  returnURL,
		}, nil
	}

	return &CallbackResult{
		Outcome:    CallbackSignedIn,
		Session:    session,
		RedirectTo: returnURL,
	}, nil
}

// awaitSession polls the backend for the just-minted session: one immediate
// check plus the configured retries, each after SessionPollInterval. The
// whole wait is bounded; this is a race absorber, not a retry loop.
func (e *Engine) awaitSession(ctx context.Context) (*Session, error) {
	session, err := e.backend.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	for i := 0; i < e.config.Callback.SessionPollRetries; i++ {
		timer := time.NewTimer(e.config.Callback.SessionPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		session, err = e.backend.CurrentSession(ctx)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}
	return nil, nil
}

func (e *Engine) failResult(message string) *CallbackResult {
	return &CallbackResult{
		Outcome:       CallbackFailed,
		RedirectTo:    e.config.Routes.Login,
		RedirectDelay: e.config.Callback.ErrorRedirectDelay,
		Message:       message,
	}
}

func callbackError(query, fragment url.Values) (string, bool) {
	for _, values := range []url.Values{query, fragment} {
		if values.Get("error") == "" && values.Get("error_code") == "" {
			continue
		}
		if msg := values.Get("error_description"); msg != "" {
			return msg, true
		}
		if msg := values.Get("error"); msg != "" {
			return msg, true
		}
		return values.Get("error_code"), true
	}
	return "", false
}

// sessionFromFragment builds a provisional Session from implicit-flow hash
// parameters. The access token is backend-minted; its claims seed the
// subject and email until the next reconciliation.
func sessionFromFragment(fragment url.Values) *Session {
	token := fragment.Get("access_token")
	claims, err := tokenclaims.Parse(token)
	if err != nil {
		return nil
	}

	session := &Session{
		UserID:       claims.Subject,
		Email:        claims.Email,
		AccessToken:  token,
		RefreshToken: fragment.Get("refresh_token"),
		ExpiresAt:    claims.ExpiresAt,
	}
	if session.UserID == "" {
		return nil
	}
	return session
}
