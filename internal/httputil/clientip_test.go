package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote v4", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote v6", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "remote v4-mapped", remoteAddr: "[::ffff:10.0.0.7]:80", want: "10.0.0.7"},
		{name: "remote without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{
			name:       "proxy headers ignored when untrusted",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"},
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded wins",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers: map[string]string{
				"Forwarded":       `for=198.51.100.17;proto=https, for=10.0.0.2`,
				"X-Forwarded-For": "1.2.3.4",
			},
			want: "198.51.100.17",
		},
		{
			name:       "forwarded quoted v6 with port",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"Forwarded": `For="[2001:db8:cafe::17]:4711"`},
			want:       "2001:db8:cafe::17",
		},
		{
			name:       "obfuscated forwarded falls through",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"Forwarded": "for=_hidden", "X-Forwarded-For": "1.2.3.4"},
			want:       "1.2.3.4",
		},
		{
			name:       "xff leftmost",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8"},
			want:       "1.2.3.4",
		},
		{
			name:       "garbage xff uses x-real-ip",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "9.8.7.6"},
			want:       "9.8.7.6",
		},
		{
			name:       "no usable header",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "unknown"},
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/stream/events", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusTeapot, "no")

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := rec.Body.String(); body != "{\"error\":\"no\"}\n" {
		t.Errorf("body = %q", body)
	}
}
