// Package app provides public health and authenticated identity endpoints.
package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/auth"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the subscription summary for the authenticated user.
func (s *Server) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	acct, err := s.store.GetAccount(c.Request.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		acct = &models.UserAccount{UID: claims.Subject, Email: claims.Email}
	} else if err != nil {
		s.log.Error("me lookup failed", "uid", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uid":                claims.Subject,
		"email":              acct.Email,
		"subscriptionStatus": acct.SubscriptionStatus,
		"premium":            acct.SubscriptionStatus.Premium(),
		"streakStartAt":      acct.StreakStartAt,
	})
}

// NotifyInactive runs one inactivity sweep. It is meant for a scheduler.
func (s *Server) NotifyInactive(c *gin.Context) {
	res, err := s.notifier.Run(c.Request.Context())
	if err != nil {
		s.log.Error("inactivity sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notify failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}
