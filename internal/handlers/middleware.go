package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ecopoints/internal/security"
)

type contextKey string

const callerContextKey = contextKey("caller")

// Middleware bundles the cross-cutting request checks: bearer-token auth
// and per-IP rate limiting.
type Middleware struct {
	secret  []byte
	limiter *security.RateLimiter
}

// NewMiddleware creates the middleware. An empty secret disables auth
// entirely (development mode); the caller is expected to log that loudly.
func NewMiddleware(secret string, limiter *security.RateLimiter) *Middleware {
	return &Middleware{secret: []byte(secret), limiter: limiter}
}

// RequireAuth validates the Authorization bearer token (HS256) and injects
// the token subject into the request context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			next(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			respondError(w, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		subject, err := m.validateToken(raw)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), callerContextKey, subject)
		next(w, r.WithContext(ctx))
	}
}

func (m *Middleware) validateToken(raw string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	claims := &jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	return claims.Subject, nil
}

// CallerID returns the authenticated subject from the request context, if any.
func CallerID(r *http.Request) string {
	if v, ok := r.Context().Value(callerContextKey).(string); ok {
		return v
	}
	return ""
}

// RateLimit rejects requests from IPs that exceed the configured budget.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			respondError(w, http.StatusTooManyRequests, "too many requests, slow down", nil)
			return
		}
		next(w, r)
	}
}
