package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRejectsMissingBearer(t *testing.T) {
	v := &JWTValidator{}
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	cases := []string{"", "Basic abc123", "Bearer "}
	for _, header := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/a2a", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		v.Middleware(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header=%q", header)
	}
	assert.False(t, called, "next handler must not run without a valid bearer token")
}
