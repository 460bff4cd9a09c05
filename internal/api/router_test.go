package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/config"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:   "test-secret",
		CORSOrigins: []string{"*"},
	}
	r, err := NewRouter(cfg, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

// Routing-level check that the documented methods reach their handlers. An
// unauthenticated request that matches a route gets 401 from the auth
// middleware; a method chi does not know for the path gets 405 instead.
func TestVoteRouteUsesPatch(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/community/some-idea/vote", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("PATCH vote: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/community/some-idea/vote", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST vote: got %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router := testRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/chat/00000000-0000-0000-0000-000000000001"},
		{http.MethodGet, "/api/v1/user/progress"},
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodPost, "/api/v1/community"},
	}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d, want %d", p.method, p.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestLivenessIsPublic(t *testing.T) {
	router := testRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health/live: got %d, want %d", rec.Code, http.StatusOK)
	}
}
