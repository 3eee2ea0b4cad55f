package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderProvider(t *testing.T) {
	tests := []struct {
		name   string
		header string
		set    map[string]string
		wantID string
		wantOK bool
	}{
		{"default header", "", map[string]string{"X-User-ID": "u1"}, "u1", true},
		{"custom header", "X-Forwarded-User", map[string]string{"X-Forwarded-User": "alice"}, "alice", true},
		{"custom header ignores default", "X-Forwarded-User", map[string]string{"X-User-ID": "u1"}, "", false},
		{"missing", "", nil, "", false},
		{"blank", "", map[string]string{"X-User-ID": "   "}, "", false},
		{"trimmed", "", map[string]string{"X-User-ID": " u2 "}, "u2", true},
		{"inner space rejected", "", map[string]string{"X-User-ID": "u 1"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			for k, v := range tt.set {
				r.Header.Set(k, v)
			}
			id, ok := NewHeaderProvider(tt.header).CurrentUserID(r)
			if id != tt.wantID || ok != tt.wantOK {
				t.Fatalf("CurrentUserID = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestZeroHeaderProviderUsesDefault(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(DefaultHeader, "u1")
	if id, ok := (HeaderProvider{}).CurrentUserID(r); !ok || id != "u1" {
		t.Fatalf("got (%q, %v)", id, ok)
	}
}

func TestStatic(t *testing.T) {
	if id, ok := Static("u1").CurrentUserID(nil); !ok || id != "u1" {
		t.Fatalf("got (%q, %v)", id, ok)
	}
	if _, ok := Static("").CurrentUserID(nil); ok {
		t.Fatal("empty Static should be signed out")
	}
}
