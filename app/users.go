// Package app provides user persistence helpers for authenticated requests.
package app

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jaleski01/DESVICIAR-VERCEL/auth"
)

// EnsureAccountFromClaims creates the caller's account if it does not already exist.
func (s *Server) EnsureAccountFromClaims(c *gin.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	email := claims.Email
	if email == "" {
		email = readStringClaim(claims.Raw, "email")
	}
	return s.store.EnsureAccount(c.Request.Context(), claims.Subject, email)
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
