package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/chungtau/txn-webhook/internal/logging"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.GET("/protected", Auth(testSecret, ReadScope), func(c *gin.Context) {
		c.String(http.StatusOK, GetSubject(c))
	})
	return r
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	valid, _, err := IssueToken(testSecret, "ops", ReadScope, time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	expired, _, _ := IssueToken(testSecret, "ops", ReadScope, -time.Minute)
	wrongSecret, _, _ := IssueToken("other-secret", "ops", ReadScope, time.Minute)
	noScope, _, _ := IssueToken(testSecret, "ops", "accounts:read", time.Minute)
	noSubject, _, _ := IssueToken(testSecret, "", ReadScope, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ops", "scope": ReadScope}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"lower-case scheme", "bearer " + valid, http.StatusOK},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"unsigned token", "Bearer " + none, http.StatusUnauthorized},
		{"missing subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"missing scope", "Bearer " + noScope, http.StatusForbidden},
	}

	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.header)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != "ops" {
				t.Errorf("expected subject in context, got %q", w.Body.String())
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	c := &Claims{Scope: "accounts:read transactions:read"}
	if !c.HasScope(ReadScope) {
		t.Error("expected scope to be found among several")
	}
	if c.HasScope("transactions") {
		t.Error("expected no prefix match")
	}
}

func newLimitedRouter(t *testing.T, client *redis.Client, rps, burst int) *gin.Engine {
	t.Helper()
	r := gin.New()
	limiter := NewRateLimiter(client, "test", rps, burst, logging.Discard())
	r.GET("/protected", limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := newLimitedRouter(t, client, 2, 3)

	for i := 0; i < 3; i++ {
		w := serve(r, "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("expected advertised limit 2, got %q", got)
		}
	}

	w := serve(r, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", w.Header().Get("Retry-After"))
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := newLimitedRouter(t, client, 1, 1)
	mr.SetError("connection refused")

	for i := 0; i < 3; i++ {
		if w := serve(r, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected fail open, got %d", i+1, w.Code)
		}
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Logging(logging.Discard()), Recovery(logging.Discard()))
	r.GET("/protected", func(c *gin.Context) {
		panic(errors.New("boom"))
	})

	w := serve(r, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}
