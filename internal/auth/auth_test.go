package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const token = "0123456789abcdef"

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"enabled with token", Config{Enabled: true, Token: token}, false},
		{"enabled without token", Config{Enabled: true}, true},
		{"short token", Config{Enabled: true, Token: "short"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		cfg    Config
		method string
		path   string
		header string
		want   int
	}{
		{"disabled", Config{}, http.MethodPost, "/api/v1/tracking/start", "", http.StatusNoContent},
		{"missing token", Config{Enabled: true, Token: token}, http.MethodPost, "/api/v1/tracking/start", "", http.StatusUnauthorized},
		{"wrong token", Config{Enabled: true, Token: token}, http.MethodPost, "/api/v1/tracking/start", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", Config{Enabled: true, Token: token}, http.MethodPost, "/api/v1/tracking/start", "Basic " + token, http.StatusUnauthorized},
		{"valid token", Config{Enabled: true, Token: token}, http.MethodPost, "/api/v1/tracking/start", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", Config{Enabled: true, Token: token}, http.MethodPost, "/api/v1/tracking/stop", "bearer " + token, http.StatusNoContent},
		{"exempt path", Config{Enabled: true, Token: token}, http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"read guarded by default", Config{Enabled: true, Token: token}, http.MethodGet, "/api/v1/tracking/frame", "", http.StatusUnauthorized},
		{"public reads", Config{Enabled: true, Token: token, PublicReads: true}, http.MethodGet, "/api/v1/tracking/frame", "", http.StatusNoContent},
		{"public reads still guards writes", Config{Enabled: true, Token: token, PublicReads: true}, http.MethodPost, "/api/v1/tracking/stop", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
