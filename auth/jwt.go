// Package auth is bearer-token authentication for the A2A server surface:
// validates an incoming request's JWT against a JWKS endpoint before the
// request reaches the Agent Loop. Authentication/authorization for the
// core loop itself is out of spec.md's scope; this exists only to guard
// the optional a2aserver HTTP surface cmd/loom exposes.
//
// Grounded on the teacher's pkg/auth/jwt.go almost verbatim: same
// auto-refreshing JWKS cache, same issuer/audience validation, same
// standard-claims extraction.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims carries the subset of a validated token's claims this runtime
// cares about: who the caller is, for stamping onto an A2A message's
// metadata.
type Claims struct {
	Subject string
	Email   string
}

// JWTValidator validates bearer tokens against a JWKS endpoint, refetching
// and caching keys on a fixed interval to tolerate key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// NewJWTValidator registers jwksURL with an auto-refreshing cache and
// performs one eager fetch so misconfiguration fails at startup rather
// than on the first request.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("auth: register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("auth: fetch jwks from %s: %w", jwksURL, err)
	}

	return &JWTValidator{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

// Validate parses and verifies tokenString, returning its claims.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: get jwks: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims := Claims{Subject: token.Subject()}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	return claims, nil
}

// Middleware returns an http.Handler wrapper that requires a valid
// "Authorization: Bearer <token>" header, rejecting with 401 otherwise.
func (v *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tok == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := v.Validate(r.Context(), tok); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
