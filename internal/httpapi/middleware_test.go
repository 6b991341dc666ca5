package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

func TestBearerTokenReadsAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(r); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
}

func TestBearerTokenFallsBackToQueryStringOnStreamEndpoint(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/stream/chat-1?token=xyz", nil)
	if got := bearerToken(r); got != "xyz" {
		t.Fatalf("expected xyz from the query string, got %q", got)
	}
}

func TestBearerTokenEmptyWhenAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	if got := bearerToken(r); got != "" {
		t.Fatalf("expected an empty token, got %q", got)
	}
}

func TestBearerTokenIgnoresNonBearerScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := bearerToken(r); got != "" {
		t.Fatalf("expected a Basic auth header to be ignored, got %q", got)
	}
}

func TestRateLimitKeyPrefersAuthenticatedUser(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.RemoteAddr = "203.0.113.5:54321"
	ctx := withUser(r.Context(), &models.User{ID: "user-9"})
	r = r.WithContext(ctx)

	key, kind := rateLimitKey(r)
	if kind != "user" || key != "user:user-9" {
		t.Fatalf("expected user:user-9, got %s/%s", key, kind)
	}
}

func TestRateLimitKeyFallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	r.RemoteAddr = "203.0.113.5:54321"

	key, kind := rateLimitKey(r)
	if kind != "ip" || key != "ip:203.0.113.5" {
		t.Fatalf("expected ip:203.0.113.5, got %s/%s", key, kind)
	}
}

func TestTrustedHostAllowsEveryHostWhenListEmpty(t *testing.T) {
	handler := trustedHost(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "anything.example.com"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected an empty allow-list to trust every host, got %d", w.Code)
	}
}

func TestTrustedHostRejectsUnlistedHost(t *testing.T) {
	handler := trustedHost([]string{"api.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "evil.example.com"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected an unlisted host to be rejected with 400, got %d", w.Code)
	}
}

func TestTrustedHostAllowsListedHostIgnoringPort(t *testing.T) {
	handler := trustedHost([]string{"api.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "api.example.com:8443"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected the allow-listed host to pass regardless of port, got %d", w.Code)
	}
}

func TestCorsSetsHeadersForAllowedOrigin(t *testing.T) {
	handler := cors([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected the allowed origin to be echoed back")
	}
}

func TestCorsOmitsHeadersForDisallowedOrigin(t *testing.T) {
	handler := cors([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no CORS header for a disallowed origin")
	}
}

func TestCorsRespondsNoContentToPreflight(t *testing.T) {
	handler := cors([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight requests must not reach the wrapped handler")
	}))
	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for an OPTIONS preflight, got %d", w.Code)
	}
}

func TestCacheControlStampsNoStoreHeaders(t *testing.T) {
	handler := cacheControl(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected Cache-Control to be stamped on every response")
	}
}

func TestWithUserRoundTripsThroughContext(t *testing.T) {
	user := &models.User{ID: "user-1"}
	ctx := withUser(context.Background(), user)
	got, ok := userFromContext(ctx)
	if !ok || got.ID != "user-1" {
		t.Fatalf("expected to retrieve the attached user, got %+v, %v", got, ok)
	}
}
