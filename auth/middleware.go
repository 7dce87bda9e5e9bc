// Package auth provides Gin middleware for enforcing Firebase ID token auth.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	PublicPaths  map[string]bool
	DisableAuth  bool
	RequireEmail bool
	Logger       *logger.Logger
	// OnAuthenticated runs after claims are attached. An error aborts with 500.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
}

// LocalDevSubject is the uid injected when auth is disabled.
const LocalDevSubject = "local-dev"

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		if cfg.DisableAuth || AuthDisabled() {
			claims := &Claims{
				Subject: LocalDevSubject,
				Issuer:  "local",
				Email:   "local-dev@desviciar.local",
				Raw:     map[string]any{"sub": LocalDevSubject},
			}
			authenticated(c, cfg, log, claims)
			return
		}

		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("auth failure: missing Authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			log.Warn("auth failure: malformed Authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Warn("auth failure: token invalid", "path", c.Request.URL.Path, "error", err)
			respondUnauthorized(c, "invalid token")
			return
		}

		if cfg.RequireEmail && claims.Email == "" {
			log.Warn("auth failure: token without email", "path", c.Request.URL.Path, "uid", claims.Subject)
			respondUnauthorized(c, "email required")
			return
		}

		authenticated(c, cfg, log, claims)
	}
}

func authenticated(c *gin.Context, cfg MiddlewareConfig, log *logger.Logger, claims *Claims) {
	ctx := WithClaims(c.Request.Context(), claims)
	c.Request = c.Request.WithContext(ctx)
	if cfg.OnAuthenticated != nil {
		if err := cfg.OnAuthenticated(c, claims); err != nil {
			log.Error("auth hook failed", "path", c.Request.URL.Path, "uid", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
	}
	c.Next()
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
