package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		deps       []Dependency
		wantCode   int
		wantStatus string
	}{
		{
			name: "all up",
			deps: []Dependency{
				{Name: "postgres", Check: PingFunc(up), Critical: true},
				{Name: "redis", Check: PingFunc(up)},
				{Name: "rabbitmq", Check: PingFunc(up)},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "identity down degrades",
			deps: []Dependency{
				{Name: "postgres", Check: PingFunc(up), Critical: true},
				{Name: "identity", Check: PingFunc(down)},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name: "lock store down fails",
			deps: []Dependency{
				{Name: "postgres", Check: PingFunc(up), Critical: true},
				{Name: "redis", Check: PingFunc(down), Critical: true},
				{Name: "identity", Check: PingFunc(up)},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "error",
		},
		{
			name: "store down fails",
			deps: []Dependency{
				{Name: "postgres", Check: PingFunc(down), Critical: true},
				{Name: "redis", Check: PingFunc(up)},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("test", "1.0.0", tt.deps...)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Dependencies) != len(tt.deps) {
				t.Errorf("dependencies = %v", resp.Dependencies)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler("prod", "2.1.0").Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	var resp LivenessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "ok" || resp.Version != "2.1.0" {
		t.Errorf("liveness = %d %+v", rec.Code, resp)
	}
}
