package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSCredentialsOnlyForListedOrigins(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	cases := []struct {
		name        string
		origins     []string
		origin      string
		allowOrigin string
		credentials string
	}{
		{"any origin", nil, "https://evil.example", "https://evil.example", ""},
		{"wildcard", []string{"*"}, "https://evil.example", "https://evil.example", ""},
		{"listed", []string{"https://app.example/"}, "https://app.example", "https://app.example", "true"},
		{"not listed", []string{"https://app.example"}, "https://evil.example", "", ""},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", c.origin)
		rec := httptest.NewRecorder()
		cors(c.origins)(ok).ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != c.allowOrigin {
			t.Errorf("%s: allow-origin = %q, want %q", c.name, got, c.allowOrigin)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != c.credentials {
			t.Errorf("%s: allow-credentials = %q, want %q", c.name, got, c.credentials)
		}
	}
}

func TestRequireBearerAllowsSessions(t *testing.T) {
	a := newTestAPI(t)
	h := bearer(a.signup("gus@example.com"))
	if res := a.do("POST", "/api/v1/auth/2fa/setup", h, nil); res.status != http.StatusOK {
		t.Fatalf("2fa setup with bearer = %d %s", res.status, res.body)
	}
}
