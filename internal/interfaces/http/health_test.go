package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		expectedStatus int
	}{
		{"No Checks", nil, http.StatusOK},
		{"Healthy", map[string]HealthCheck{"postgres": func(ctx context.Context) error { return nil }}, http.StatusOK},
		{"Degraded", map[string]HealthCheck{"postgres": func(ctx context.Context) error { return errors.New("refused") }}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tt.checks).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}
