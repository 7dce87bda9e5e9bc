// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jaleski01/DESVICIAR-VERCEL/auth"
)

// Router builds the HTTP router with a Firebase verifier configured from the
// environment.
func (s *Server) Router() (*gin.Engine, error) {
	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}
	return NewRouter(s, verifier, auth.MiddlewareConfig{Logger: s.log}), nil
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server, verifier *auth.Verifier, authCfg auth.MiddlewareConfig) *gin.Engine {
	if authCfg.Logger == nil {
		authCfg.Logger = s.log
	}
	if authCfg.OnAuthenticated == nil {
		authCfg.OnAuthenticated = s.EnsureAccountFromClaims
	}

	origins := s.cfg.HTTP.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.log))
	router.Use(s.metrics.Instrument())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.POST("/api/stripe/webhook", s.StripeWebhook)
	router.POST("/webhook", s.StripeWebhook)

	internal := router.Group("/internal")
	internal.Use(InternalKey(s.cfg.HTTP.InternalAPIKey))
	internal.POST("/notify-inactive", s.NotifyInactive)

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, authCfg))
	protected.GET("/me", s.Me)
	protected.GET("/api/progress", s.GetProgress)
	protected.PUT("/api/daily/:date", s.PutDailyRecord)
	protected.POST("/api/triggers", s.LogTrigger)
	protected.PUT("/api/push-token", s.SetPushToken)
	protected.PUT("/api/streak", s.SetStreakStart)
	protected.POST("/api/billing/create-checkout-session", s.CreateCheckoutSession)
	protected.POST("/api/billing/portal-session", s.CreatePortalSession)

	return router
}
