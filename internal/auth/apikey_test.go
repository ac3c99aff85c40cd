package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(g *APIKeys, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_OpenWhenNoKeysConfigured(t *testing.T) {
	g := NewAPIKeys(nil)
	if g.Enabled() {
		t.Error("Enabled() = true with no keys")
	}

	rec := serve(g, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when guard disabled", rec.Code)
	}
}

func TestMiddleware_BearerKeyAccepted(t *testing.T) {
	g := NewAPIKeys([]string{"secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if rec := serve(g, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_HeaderKeyAccepted(t *testing.T) {
	g := NewAPIKeys([]string{"secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
	req.Header.Set("X-API-Key", "secret-key")
	if rec := serve(g, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_MissingKeyRejected(t *testing.T) {
	g := NewAPIKeys([]string{"secret-key"})

	rec := serve(g, httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_WrongKeyRejected(t *testing.T) {
	g := NewAPIKeys([]string{"secret-key"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	if rec := serve(g, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeys_Rotation(t *testing.T) {
	g := NewAPIKeys([]string{"old"})
	g.Add("new")
	g.Remove("old")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "old")
	if rec := serve(g, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("removed key accepted, status = %d", rec.Code)
	}

	req.Header.Set("X-API-Key", "new")
	if rec := serve(g, req); rec.Code != http.StatusOK {
		t.Errorf("added key rejected, status = %d", rec.Code)
	}

	g.Remove("new")
	if g.Enabled() {
		t.Error("Enabled() = true after removing all keys")
	}
}

func TestNewAPIKeys_DropsBlankEntries(t *testing.T) {
	g := NewAPIKeys([]string{"", "  ", "real"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "real")
	if rec := serve(g, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	empty.Header.Set("X-API-Key", "")
	if rec := serve(g, empty); rec.Code != http.StatusUnauthorized {
		t.Errorf("blank key accepted, status = %d", rec.Code)
	}
}
