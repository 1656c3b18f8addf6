package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/acrelle/authfront"
)

// Client is the HTTP implementation of [authfront.Backend]. It holds the
// current session for the tab context; exactly one session is active at a
// time and sign-out drops it wholesale.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	providers map[string]*Provider

	mu      sync.Mutex
	session *authfront.Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAPIKey attaches the project API key to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithProvider registers a direct-OIDC provider; AuthorizeURL for its name
// is built locally instead of through the hosted /authorize endpoint.
func WithProvider(p *Provider) Option {
	return func(c *Client) { c.providers[p.Name()] = p }
}

// NewClient returns a Client for the auth service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		providers: make(map[string]*Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Metadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Roles []string `json:"roles"`
	} `json:"app_metadata"`
	Factors []struct {
		ID         string `json:"id"`
		FactorType string `json:"factor_type"`
		Status     string `json:"status"`
	} `json:"factors"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	User         tokenUser `json:"user"`
}

func (r *tokenResponse) session() *authfront.Session {
	return &authfront.Session{
		UserID:       r.User.ID,
		Email:        r.User.Email,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(r.ExpiresIn) * time.Second).UTC(),
	}
}

func (u *tokenUser) record() *authfront.UserRecord {
	record := &authfront.UserRecord{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.Metadata.FullName,
		Roles:       append([]string(nil), u.AppMetadata.Roles...),
	}
	for _, f := range u.Factors {
		record.MFAMethods = append(record.MFAMethods, authfront.MfaMethod{
			ID:       f.ID,
			Type:     f.FactorType,
			Verified: f.Status == "verified",
		})
	}
	return record
}

// SignInWithPassword implements authfront.Backend.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authfront.SignInResult, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	session := resp.session()
	user := resp.User.record()
	c.setSession(session)

	return &authfront.SignInResult{
		Session:     session,
		User:        user,
		RequiresMFA: user.MFAEnrolled(),
	}, nil
}

// SignOut implements authfront.Backend. The local session holder is dropped
// even when the revocation call fails; the caller must not keep using a
// session it asked to end.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
	c.setSession(nil)
	if err != nil && !errors.Is(err, authfront.ErrBackendUnavailable) {
		// A 401 on logout means the session was already gone.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil
		}
	}
	return err
}

// SendOneTimeCode implements authfront.Backend.
func (c *Client) SendOneTimeCode(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/otp", map[string]any{
		"email":       email,
		"create_user": false,
	}, nil)
}

// VerifyOneTimeCode implements authfront.Backend. The idempotent "already
// verified" rejection is reported as success with the currently held
// session.
func (c *Client) VerifyOneTimeCode(ctx context.Context, email, code string) (*authfront.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/verify", map[string]string{
		"type":  "email",
		"email": email,
		"token": code,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "already_verified" {
			return c.heldSession(), nil
		}
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", authfront.ErrInvalidOrExpiredCode, apiErr.Message)
		}
		return nil, err
	}

	session := resp.session()
	c.setSession(session)
	return session, nil
}

// AuthorizeURL implements authfront.Backend. A registered direct provider
// builds its own authorization URL; otherwise the hosted /authorize
// endpoint drives the redirect.
func (c *Client) AuthorizeURL(ctx context.Context, provider, state, redirectTo string) (string, error) {
	if p, ok := c.providers[provider]; ok {
		return p.AuthCodeURL(state), nil
	}

	params := url.Values{}
	params.Set("provider", provider)
	if state != "" {
		params.Set("state", state)
	}
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + params.Encode(), nil
}

// ExchangeCode implements authfront.Backend.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*authfront.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=authorization_code", map[string]string{
		"auth_code": code,
	}, &resp)
	if err != nil {
		if errors.Is(err, authfront.ErrBackendUnavailable) || errors.Is(err, authfront.ErrProviderConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", authfront.ErrSessionExchangeFailed, err)
	}

	session := resp.session()
	c.setSession(session)
	return session, nil
}

// ExchangeProviderCode runs the direct-OIDC variant: the registered
// provider exchanges the code and verifies the id_token locally, then the
// token is traded to the backend for a first-party session.
func (c *Client) ExchangeProviderCode(ctx context.Context, provider, code string) (*authfront.Session, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", authfront.ErrSessionExchangeFailed, provider)
	}

	rawIDToken, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	err = c.do(ctx, http.MethodPost, "/token?grant_type=id_token", map[string]string{
		"provider": provider,
		"id_token": rawIDToken,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authfront.ErrSessionExchangeFailed, err)
	}

	session := resp.session()
	c.setSession(session)
	return session, nil
}

// CurrentSession implements authfront.Backend. (nil, nil) means signed out.
func (c *Client) CurrentSession(ctx context.Context) (*authfront.Session, error) {
	return c.heldSession(), nil
}

// CurrentUser implements authfront.Backend.
func (c *Client) CurrentUser(ctx context.Context) (*authfront.UserRecord, error) {
	var user tokenUser
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return user.record(), nil
}

// UserExists implements authfront.Backend.
func (c *Client) UserExists(ctx context.Context, email string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := "/accounts/exists?email=" + url.QueryEscape(email)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return resp.Exists, nil
}

// EnrollMFA implements authfront.Backend.
func (c *Client) EnrollMFA(ctx context.Context, mfaType string) (*authfront.MfaMethod, error) {
	var resp struct {
		ID         string `json:"id"`
		FactorType string `json:"factor_type"`
	}
	err := c.do(ctx, http.MethodPost, "/factors", map[string]string{
		"factor_type": mfaType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &authfront.MfaMethod{ID: resp.ID, Type: resp.FactorType}, nil
}

// VerifyMFA implements authfront.Backend. Rejections wrap
// ErrInvalidOrExpiredCode with the backend's message intact.
func (c *Client) VerifyMFA(ctx context.Context, methodID, code string) error {
	err := c.do(ctx, http.MethodPost, "/factors/"+url.PathEscape(methodID)+"/verify", map[string]string{
		"code": code,
	}, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %s", authfront.ErrInvalidOrExpiredCode, apiErr.Message)
		}
		return err
	}
	return nil
}

// FetchProfile implements authfront.Backend. A missing profile is
// (nil, nil), not an error; the orchestrator creates a minimal one.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*authfront.UserRecord, error) {
	var resp struct {
		UserID      string   `json:"user_id"`
		Email       string   `json:"email"`
		DisplayName string   `json:"display_name"`
		Roles       []string `json:"roles"`
	}
	err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(userID), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &authfront.UserRecord{
		ID:          resp.UserID,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		Roles:       resp.Roles,
	}, nil
}

// UpsertProfile implements authfront.Backend.
func (c *Client) UpsertProfile(ctx context.Context, record *authfront.UserRecord) error {
	return c.do(ctx, http.MethodPut, "/profiles/"+url.PathEscape(record.ID), map[string]any{
		"user_id":      record.ID,
		"email":        record.Email,
		"display_name": record.DisplayName,
		"roles":        record.Roles,
	}, nil)
}

// LinkIdentity implements authfront.Backend, invoking the server-side
// reconciliation function.
func (c *Client) LinkIdentity(ctx context.Context, email, provider, attemptID string) (*authfront.LinkOutcome, error) {
	var resp struct {
		Action  string `json:"action"`
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/functions/link-identity", map[string]string{
		"email":      email,
		"provider":   provider,
		"attempt_id": attemptID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &authfront.LinkOutcome{
		Action:  authfront.LinkAction(resp.Action),
		Message: resp.Message,
	}, nil
}

// SetSession seeds the session holder, e.g. from a persisted refresh token
// at startup.
func (c *Client) SetSession(session *authfront.Session) {
	c.setSession(session)
}

func (c *Client) setSession(session *authfront.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Client) heldSession() *authfront.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if session := c.heldSession(); session != nil {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
