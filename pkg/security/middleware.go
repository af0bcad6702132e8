package security

import (
	"context"
	"net"
	"net/http"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/utils"
)

type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
)

// SecConfig configures the request authentication middleware.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	FrontendKeys   map[string]struct{}
	BackendKeys    map[string]struct{}
}

type ctxOwnerKey struct{}

// exempt paths skip API-key auth entirely: probes cannot send keys, and
// the identity webhook authenticates via its own signature scheme.
func exempt(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/v1/webhooks/")
}

// AuthenticateRequestMiddleware handles CORS, rate limiting and API-key
// authentication, and resolves the caller's owner id into the request
// context for owner-scoped handlers.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utils.GenRequestID()
			}
			w.Header().Set("X-Request-ID", reqID)
			logger.LogRequest(r, reqID)

			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			role, key := authenticate(r, cfg)
			if role == RoleUnauth {
				logger.Warn("request_unauthenticated", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"missing or invalid api key"}`, http.StatusUnauthorized)
				return
			}

			limKey := key
			if limKey == "" {
				limKey = clientIP(r)
			}
			if !limiters.Allow(limKey) {
				logger.Warn("request_rate_limited", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			if owner := strings.TrimSpace(r.Header.Get("X-User-ID")); owner != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxOwnerKey{}, owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerFromContext returns the resolved caller identity or empty string.
func OwnerFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxOwnerKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithOwner injects an owner id; used by tests.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxOwnerKey{}, owner)
}

func authenticate(r *http.Request, cfg SecConfig) (Role, string) {
	key := ""
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		key = auth[7:]
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		return RoleUnauth, ""
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, ""
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
