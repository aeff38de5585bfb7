package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	enabled := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)
	disabled := Middleware(Config{})(ok)
	reads := Middleware(Config{Enabled: true, Token: "s3cret", PublicReads: true})(ok)

	tests := []struct {
		name    string
		handler http.Handler
		method  string
		path    string
		header  string
		want    int
	}{
		{"disabled passes everything", disabled, "POST", "/api/v1/catalogs/comets/refresh", "", http.StatusOK},
		{"missing header", enabled, "GET", "/api/v1/events", "", http.StatusUnauthorized},
		{"wrong token", enabled, "GET", "/api/v1/events", "Bearer nope", http.StatusUnauthorized},
		{"no scheme", enabled, "GET", "/api/v1/events", "s3cret", http.StatusUnauthorized},
		{"empty bearer", enabled, "GET", "/api/v1/events", "Bearer ", http.StatusUnauthorized},
		{"valid token", enabled, "GET", "/api/v1/events", "Bearer s3cret", http.StatusOK},
		{"scheme case-insensitive", enabled, "GET", "/api/v1/events", "bearer s3cret", http.StatusOK},
		{"catalog list needs token", enabled, "GET", "/api/v1/catalogs", "", http.StatusUnauthorized},
		{"healthz public", enabled, "GET", "/healthz", "", http.StatusOK},
		{"readyz public", enabled, "GET", "/readyz", "", http.StatusOK},
		{"metrics public", enabled, "GET", "/metrics", "", http.StatusOK},
		{"stream public", enabled, "GET", "/api/v1/stream/events", "", http.StatusOK},
		{"public reads: get", reads, "GET", "/api/v1/sky", "", http.StatusOK},
		{"public reads: head", reads, "HEAD", "/api/v1/bodies", "", http.StatusOK},
		{"public reads: refresh still guarded", reads, "POST", "/api/v1/catalogs/comets/refresh", "", http.StatusUnauthorized},
		{"public reads: refresh with token", reads, "POST", "/api/v1/catalogs/comets/refresh", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
