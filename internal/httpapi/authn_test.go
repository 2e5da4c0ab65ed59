package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
	"medcore.org/internal/store/memory"
)

func newBareAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("MEDCORE_AUTH_SECRET", "authn-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := memory.New()
	return New(ReadyProbe{}, "test", clinic.NewScheduler(store, nil), auth.NewVerifier(store))
}

func TestWithAuthPassThrough(t *testing.T) {
	api := newBareAPI(t)

	var sawPrincipal bool
	var principal auth.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, sawPrincipal = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := api.withAuth(inner)

	// No header: request continues anonymously.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous request blocked: %d", rec.Code)
	}
	if sawPrincipal {
		t.Fatal("no principal expected without a token")
	}

	// Garbage token: the filter never rejects, it just stays anonymous.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalid token must pass through: %d", rec.Code)
	}
	if sawPrincipal {
		t.Fatal("no principal expected for an invalid token")
	}

	// Valid token: principal attached.
	token, err := auth.GenerateToken("kim@clinic.test", auth.RoleDoctor, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !sawPrincipal {
		t.Fatal("expected principal for a valid token")
	}
	if principal.Subject != "kim@clinic.test" || principal.Role != auth.RoleDoctor {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestRequireRole(t *testing.T) {
	api := newBareAPI(t)

	handler := api.requireRole(auth.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Anonymous gets the 401 challenge.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}

	// Wrong role gets 403.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(),
		auth.Principal{Subject: "kim@clinic.test", Role: auth.RoleDoctor}))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("doctor against admin gate: %d", rec.Code)
	}

	// Matching role passes.
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(),
		auth.Principal{Subject: "root@clinic.test", Role: auth.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin against admin gate: %d", rec.Code)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	mk := func(header string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	if _, ok := bearerToken(mk("")); ok {
		t.Fatal("empty header must not parse")
	}
	if _, ok := bearerToken(mk("Basic dXNlcjpwYXNz")); ok {
		t.Fatal("basic auth must not parse")
	}
	if _, ok := bearerToken(mk("Bearer ")); ok {
		t.Fatal("empty bearer must not parse")
	}
	if tok, ok := bearerToken(mk("bearer abc.def.ghi")); !ok || tok != "abc.def.ghi" {
		t.Fatalf("case-insensitive scheme: %q %v", tok, ok)
	}
}
