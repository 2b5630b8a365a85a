package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/dnsgate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSReflectsOrigin(t *testing.T) {
	h := CORS(dnsgate.DefaultConfig().CORS)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("preflight origin: got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Fatal("preflight must list allowed headers")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://other.example.com" {
		t.Fatalf("actual request origin: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("no origin must mean no header, got %q", got)
	}
}

func TestCSRFRequiresJSON(t *testing.T) {
	h := CSRF([]string{"/dns_records/import"})(okHandler())

	cases := []struct {
		name        string
		method      string
		path        string
		contentType string
		want        int
	}{
		{"get passes", http.MethodGet, "/api/zones", "", http.StatusOK},
		{"json post", http.MethodPost, "/api/login", "application/json; charset=utf-8", http.StatusOK},
		{"form post", http.MethodPost, "/api/login", "application/x-www-form-urlencoded", http.StatusBadRequest},
		{"missing type", http.MethodDelete, "/api/account/tokens/0", "", http.StatusBadRequest},
		{"upload exempt", http.MethodPost, "/api/zones/z1/dns_records/import", "multipart/form-data; boundary=x", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestClientIPPrecedence(t *testing.T) {
	var got string
	h := ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = dnsgate.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "192.0.2.1" {
		t.Fatalf("remote addr: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.5" {
		t.Fatalf("forwarded-for: got %q", got)
	}

	req.Header.Set("CF-Connecting-IP", "198.51.100.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "198.51.100.9" {
		t.Fatalf("edge header: got %q", got)
	}
}

func TestRouteTableLongestMatch(t *testing.T) {
	table := NewRouteTable(DefaultRoutes)

	cases := map[string]Access{
		"/api/login":                 AccessPublic,
		"/api/passkey/login-options": AccessPublic,
		"/api/passkey/credentials":   AccessIdentity,
		"/api/admin/settings":        AccessIdentity,
		"/api/admin/users/bob":       AccessAdmin,
		"/api/account/tokens/3":      AccessIdentity,
		"/api/zones/abc/dns_records": AccessProxied,
		"/api/logout":                AccessIdentity,
	}
	for path, want := range cases {
		if got := table.Lookup(path); got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}
