package admin

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRouter_HealthSmokeTest(t *testing.T) {
	router := NewRouter(newTestDeps(t, ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireJSON_RejectsNonJSONContentType(t *testing.T) {
	router := NewRouter(newTestDeps(t, ""))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/gateway-once", bytes.NewReader([]byte(`source_id=kexp`)))
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestRequireJSON_AllowsEmptyBody(t *testing.T) {
	router := NewRouter(newTestDeps(t, ""))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/gateway-once", nil)

	router.ServeHTTP(rec, req)

	if rec.Code == http.StatusUnsupportedMediaType {
		t.Fatalf("expected empty body to skip the content-type gate, got 415")
	}
}

func TestRecoverer_ConvertsPanicToInternalError(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	recoverer(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
