package authfront

import "context"

type tabIDContextKey struct{}
type clientIPContextKey struct{}
type returnURLContextKey struct{}

// WithTabID attaches the browser tab identifier to ctx. Ephemeral flag
// storage is namespaced per tab, so two tabs never observe each other's
// linking attempts or SSO markers. When absent, the default tab "0" is used.
func WithTabID(ctx context.Context, tabID string) context.Context {
	return context.WithValue(ctx, tabIDContextKey{}, tabID)
}

// WithClientIP attaches the caller's IP address to ctx for audit enrichment.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithReturnURL attaches the originally requested path so post-login and
// post-MFA redirects can carry it through unchanged.
func WithReturnURL(ctx context.Context, returnURL string) context.Context {
	return context.WithValue(ctx, returnURLContextKey{}, returnURL)
}

func tabIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return "0"
	}
	if id, _ := ctx.Value(tabIDContextKey{}).(string); id != "" {
		return id
	}
	return "0"
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func returnURLFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	u, _ := ctx.Value(returnURLContextKey{}).(string)
	return u
}
