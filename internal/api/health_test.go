package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{"healthy", nil, http.StatusOK, "healthy", "ok"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded", "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakePinger{err: tt.pingErr}, "pg")
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d", tt.wantCode, w.Code)
			}
			var got struct {
				Status string            `json:"status"`
				Driver string            `json:"driver"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got.Status != tt.wantStatus || got.Checks["database"] != tt.wantDB || got.Driver != "pg" {
				t.Errorf("Unexpected body %+v", got)
			}
		})
	}
}
