package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSOriginHandling(t *testing.T) {
	cases := map[string]struct {
		allowed   []string
		origin    string
		wantEcho  string
		wantCalls int
	}{
		"listed origin is echoed": {
			allowed:   []string{"https://app.fieldline.example"},
			origin:    "https://app.fieldline.example",
			wantEcho:  "https://app.fieldline.example",
			wantCalls: 1,
		},
		"unknown origin gets no headers": {
			allowed:   []string{"https://app.fieldline.example"},
			origin:    "https://evil.example",
			wantEcho:  "",
			wantCalls: 1,
		},
		"wildcard echoes any origin": {
			allowed:   []string{"*"},
			origin:    "https://random.example",
			wantEcho:  "https://random.example",
			wantCalls: 1,
		},
		"same-origin request passes untouched": {
			allowed:   []string{"https://app.fieldline.example"},
			origin:    "",
			wantEcho:  "",
			wantCalls: 1,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()

			CORS(tc.allowed)(handler).ServeHTTP(rec, req)

			if calls != tc.wantCalls {
				t.Fatalf("handler calls = %d, want %d", calls, tc.wantCalls)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantEcho {
				t.Fatalf("allow-origin = %q, want %q", got, tc.wantEcho)
			}
			if tc.wantEcho != "" {
				if rec.Header().Get("Access-Control-Allow-Methods") == "" ||
					rec.Header().Get("Access-Control-Allow-Headers") == "" {
					t.Fatalf("expected method/header allowances alongside origin echo")
				}
			}
		})
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	})
	req := httptest.NewRequest(http.MethodOptions, "/webhooks/telnyx/messages", nil)
	req.Header.Set("Origin", "https://app.fieldline.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	CORS([]string{"https://app.fieldline.example"})(handler).ServeHTTP(rec, req)

	if called {
		t.Fatalf("preflight must not reach the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.fieldline.example" {
		t.Fatalf("expected origin echoed on preflight")
	}
}
