package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValidator struct {
	tokens map[string]string
}

func (v *testValidator) ValidateToken(token string) (Principal, error) {
	sub, ok := v.tokens[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return testClaims(sub), nil
}

type testClaims string

func (c testClaims) Principal() string { return string(c) }

func newAuthHandler(t *testing.T, seen *string) http.Handler {
	t.Helper()
	validator := &testValidator{tokens: map[string]string{"good-token": "ops-bot"}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r)
		if err == nil {
			*seen = p
		}
		w.WriteHeader(http.StatusOK)
	})
	return AuthMiddleware(validator, "/health")(next)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantSeen   string
	}{
		{name: "valid token", method: http.MethodGet, path: "/projects", header: "Bearer good-token", wantStatus: http.StatusOK, wantSeen: "ops-bot"},
		{name: "lowercase scheme", method: http.MethodGet, path: "/projects", header: "bearer good-token", wantStatus: http.StatusOK, wantSeen: "ops-bot"},
		{name: "missing header", method: http.MethodGet, path: "/projects", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", method: http.MethodGet, path: "/projects", header: "Basic good-token", wantStatus: http.StatusUnauthorized},
		{name: "no token", method: http.MethodGet, path: "/projects", header: "Bearer", wantStatus: http.StatusUnauthorized},
		{name: "extra parts", method: http.MethodGet, path: "/projects", header: "Bearer good-token extra", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", method: http.MethodGet, path: "/projects", header: "Bearer bad-token", wantStatus: http.StatusUnauthorized},
		{name: "public path", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, path: "/projects", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := newAuthHandler(t, &seen)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSeen, seen)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestGetPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetPrincipal(req)
	assert.ErrorIs(t, err, ErrNoPrincipal)

	req = req.WithContext(WithPrincipal(req.Context(), "cli"))
	p, err := GetPrincipal(req)
	require.NoError(t, err)
	assert.Equal(t, "cli", p)
}
