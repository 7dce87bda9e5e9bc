package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/auth"
)

const maxWebhookBodyBytes = int64(65536)

// StripeWebhook verifies a Stripe delivery and reconciles the subscription it
// describes. Failures after verification answer 500 so Stripe redelivers.
func (s *Server) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.log.Warn("stripe webhook read failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		s.log.Error("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		s.log.Warn("stripe webhook signature failed", "error", err)
		s.metrics.WebhookEvent("", "invalid_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	eventType := string(event.Type)
	ctx := c.Request.Context()
	log := s.log.With("event_id", event.ID, "event_type", eventType)

	if seen, err := s.ledger.Seen(ctx, event.ID); err != nil {
		log.Warn("event ledger lookup failed", "error", err)
	} else if seen {
		log.Info("stripe event already processed")
		s.metrics.WebhookEvent(eventType, "duplicate")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	update, handled, err := subscriptionUpdateFromEvent(ctx, event, s.billing)
	if !handled {
		log.Info("ignoring stripe event")
		s.metrics.WebhookEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	uid, err := s.reconcile(ctx, update, err)
	if err != nil {
		if errors.Is(err, ErrMissingEmail) {
			// Redelivery carries the same payload, so acknowledge and drop.
			log.Error("stripe event dropped: no account to reconcile", "customer_id", update.CustomerID, "error", err)
			s.metrics.WebhookEvent(eventType, "dropped")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		log.Error("stripe event reconcile failed", "error", err)
		s.metrics.WebhookEvent(eventType, "failed")
		c.JSON(http.StatusInternalServerError, gin.H{"received": false, "error": "failed to process event"})
		return
	}

	if err := s.ledger.Mark(ctx, event.ID); err != nil {
		log.Warn("event ledger mark failed", "error", err)
	}
	log.Debug("stripe event handled", "uid", uid)
	s.metrics.WebhookEvent(eventType, "handled")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// reconcile applies a mapped event. When the email could not be recovered from
// Stripe, the account already linked to the customer id is updated instead.
// Outcomes that no redelivery can change are reported as ErrMissingEmail.
func (s *Server) reconcile(ctx context.Context, update models.SubscriptionUpdate, mapErr error) (string, error) {
	if mapErr == nil {
		return s.reconciler.Apply(ctx, update)
	}
	if update.CustomerID == "" {
		return "", mapErr
	}
	uid, err := s.reconciler.ApplyToCustomer(ctx, update)
	if !errors.Is(err, store.ErrNotFound) {
		return uid, err
	}
	if errors.Is(mapErr, ErrCustomerGone) {
		return "", fmt.Errorf("%w: %w", ErrMissingEmail, mapErr)
	}
	return "", mapErr
}

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	acct, ok := s.callerAccount(c)
	if !ok {
		return
	}

	customerID, err := ensureStripeCustomer(c.Request.Context(), s.billing, s.store, acct)
	if err != nil {
		s.log.Error("ensureStripeCustomer failed", "uid", acct.UID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	url, err := s.billing.CheckoutURL(c.Request.Context(), customerID)
	if errors.Is(err, errBillingNotConfigured) {
		s.log.Error("missing Stripe config for checkout")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	if err != nil {
		s.log.Error("stripe checkout session failed", "uid", acct.UID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func (s *Server) CreatePortalSession(c *gin.Context) {
	acct, ok := s.callerAccount(c)
	if !ok {
		return
	}
	if acct.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	url, err := s.billing.PortalURL(c.Request.Context(), acct.StripeCustomerID)
	if errors.Is(err, errBillingNotConfigured) {
		s.log.Error("missing Stripe config for portal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	if err != nil {
		s.log.Error("stripe portal session failed", "uid", acct.UID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// callerAccount loads the account of the authenticated caller. A caller
// without a stored account gets a blank one built from the token claims.
func (s *Server) callerAccount(c *gin.Context) (*models.UserAccount, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return nil, false
	}

	acct, err := s.store.GetAccount(c.Request.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return &models.UserAccount{UID: claims.Subject, Email: claims.Email}, true
	}
	if err != nil {
		s.log.Error("account lookup failed", "uid", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return nil, false
	}
	if acct.Email == "" {
		acct.Email = claims.Email
	}
	return acct, true
}
