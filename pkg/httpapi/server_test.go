package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecore/internal/supervisor"
)

func TestHealthReflectsSupervisorState(t *testing.T) {
	sup := supervisor.New()
	srv := New(sup, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while Init, got %d", w.Code)
	}

	sup.MarkReady()
	w = httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 while Ready, got %d", w.Code)
	}
	if body := w.Body.String(); body == "" {
		t.Fatal("expected non-empty health body")
	}
}
