package middleware

import (
	"net"
	"net/http"
	"net/url"

	"github.com/acrelle/authfront"
)

// TabIDHeader names the request header carrying the browser tab
// identifier. Requests without it share the engine's default tab scope.
const TabIDHeader = "X-Tab-Id"

// Guard wraps a handler with navigation enforcement. Every request is
// classified and decided by the engine; redirects and forced sign-outs
// are executed here, allowed requests pass through with the tab-scoped
// context attached.
func Guard(engine *authfront.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := r.Context()
			if tab := r.Header.Get(TabIDHeader); tab != "" {
				ctx = authfront.WithTabID(ctx, tab)
			}
			if ip := clientAddr(r); ip != "" {
				ctx = authfront.WithClientIP(ctx, ip)
			}
			ctx = authfront.WithReturnURL(ctx, r.URL.RequestURI())

			decision, err := engine.DecideRoute(ctx, r.URL.Path, r.URL.RawQuery)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			switch decision.Action {
			case authfront.DecisionAllow:
				next.ServeHTTP(w, r.WithContext(ctx))
			case authfront.DecisionRedirect, authfront.DecisionSignOutAndRedirect:
				http.Redirect(w, r, redirectTarget(decision), http.StatusSeeOther)
			default:
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

func redirectTarget(d authfront.Decision) string {
	params := url.Values{}
	if d.ReturnURL != "" {
		params.Set("returnUrl", d.ReturnURL)
	}
	if d.Marker != "" {
		params.Set("reason", d.Marker)
	}
	if len(params) == 0 {
		return d.Target
	}
	return d.Target + "?" + params.Encode()
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
