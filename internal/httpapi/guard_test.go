package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestStructurallyValid(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"aaa.bbb.ccc", true},
		{"eyJ.eyK.sig", true},
		{"", false},
		{"aaa.bbb", false},
		{"aaa.bbb.ccc.ddd", false},
		{".bbb.ccc", false},
		{"aaa..ccc", false},
		{"aaa.bbb.", false},
		{"no-dots-at-all", false},
	}
	for _, tc := range cases {
		if got := StructurallyValid(tc.value); got != tc.want {
			t.Errorf("StructurallyValid(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestGuardRejectsMalformedCookieOnRefresh(t *testing.T) {
	var reached bool
	guard := NewGuard()
	h := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "only.two"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if reached {
		t.Fatal("malformed cookie must never reach the rotation handler")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	assertCookiePurged(t, rec)
}

func TestGuardAllowsWellFormedCookieOnRefresh(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "aaa.bbb.ccc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardRedirectsProtectedWithoutCookie(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/portal/incidents", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("location = %q, want /login", loc)
	}
}

func TestGuardRedirectsProtectedWithMalformedCookie(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/portal", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	assertCookiePurged(t, rec)
}

func TestGuardPassesProtectedWithWellFormedCookie(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/portal/incidents", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "aaa.bbb.ccc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardRedirectsAuthOnlyPageWhenCookiePresent(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "aaa.bbb.ccc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/portal" {
		t.Fatalf("location = %q, want /portal", loc)
	}
}

func TestGuardLeavesPublicPathsAlone(t *testing.T) {
	guard := NewGuard()
	h := guard.Middleware(okHandler())

	for _, path := range []string{"/login", "/signup", "/healthz", "/auth/login"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("path %s: status = %d, want 200", path, rec.Code)
		}
	}
}

func assertCookiePurged(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName && c.MaxAge < 0 && c.Value == "" {
			return
		}
	}
	t.Fatal("expected the refresh cookie to be purged")
}
