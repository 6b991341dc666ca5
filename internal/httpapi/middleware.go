package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/internal/ratelimit"
)

// chain assembles the middleware stack in the order the spec names it
// (§4.9): trusted-host allow-list → CORS → telemetry → auth → rate-limit →
// cache-control, with mux innermost.
func chain(mux http.Handler, deps Deps, logger *slog.Logger) http.Handler {
	h := mux
	h = cacheControl(h)
	h = rateLimitMW(deps, logger)(h)
	h = authMW(deps)(h)
	h = telemetry(deps)(h)
	h = cors(deps.Config.Server.CORSOrigins)(h)
	h = trustedHost(deps.Config.Server.AllowedHosts)(h)
	return h
}

// trustedHost rejects requests whose Host header isn't on the allow-list.
// An empty list means every host is trusted (local/dev default).
func trustedHost(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		set[strings.ToLower(h)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		if len(set) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := strings.ToLower(r.Host)
			if i := strings.IndexByte(host, ':'); i >= 0 {
				host = host[:i]
			}
			if _, ok := set[host]; !ok {
				renderError(w, r, apierr.New("INVALID_HOST", http.StatusBadRequest, "request host is not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cors mirrors a credentialed, origin-list CORS policy.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, wildcard := allowed["*"]
				if _, ok := allowed[origin]; ok || wildcard {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status code written so telemetry can label it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// telemetry populates the HTTPRequestDuration/HTTPRequestCounter collectors.
func telemetry(deps Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start).Seconds()
			status := strconv.Itoa(rec.status)
			deps.Metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed)
			deps.Metrics.HTTPRequestCounter.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		})
	}
}

// unauthenticatedPaths are reachable without a bearer token.
var unauthenticatedPaths = map[string]struct{}{
	"/healthz":                  {},
	"/metrics":                  {},
	"/api/auth/register":        {},
	"/api/auth/login":           {},
	"/api/auth/refresh":         {},
	"/api/auth/forgot-password": {},
	"/api/auth/reset-password":  {},
}

// authMW attaches the caller from a bearer token, or from the "token" query
// string for SSE endpoints that can't set a header (§4.9).
func authMW(deps Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := unauthenticatedPaths[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
				return
			}

			user, err := deps.Auth.Authenticate(r.Context(), token)
			if err != nil {
				renderError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if strings.HasPrefix(r.URL.Path, "/api/stream") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// rateLimitMW enforces an hourly budget (1000/h, or
// cfg.Server.RateLimitPerHr when set) per authenticated user, or per remote
// address when unauthenticated. The budget is counted with the ratelimit
// package's sliding window, not a fixed window.
func rateLimitMW(deps Deps, logger *slog.Logger) func(http.Handler) http.Handler {
	cfg := ratelimit.Config{CallsPerMinute: 1 << 30, CallsPerHour: 1000}
	if deps.Config != nil && deps.Config.Server.RateLimitPerHr > 0 {
		cfg.CallsPerHour = deps.Config.Server.RateLimitPerHr
	}
	return func(next http.Handler) http.Handler {
		if deps.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, kind := rateLimitKey(r)
			result, err := deps.Limiter.Check(r.Context(), key, cfg)
			if err != nil {
				logger.Warn("rate limiter check failed, admitting request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !result.Allowed {
				if deps.Metrics != nil {
					deps.Metrics.RateLimitRejections.WithLabelValues("http", kind).Inc()
				}
				renderError(w, r, apierr.RateLimit(result.RetryAfterMs))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) (key, kind string) {
	if user, ok := userFromContext(r.Context()); ok {
		return "user:" + user.ID, "user"
	}
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		addr = addr[:i]
	}
	return "ip:" + addr, "ip"
}

// cacheControl stamps every API response no-store, matching the Response
// Builder's own headers (§4.6) for routes that bypass the builder.
func cacheControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range noStoreHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}
