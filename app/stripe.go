package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
)

// CustomerLookup recovers the email of a billing customer. Subscription events
// only carry the customer id.
type CustomerLookup interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Billing is the subset of the Stripe API the handlers use.
type Billing interface {
	CustomerLookup
	CreateCustomer(ctx context.Context, uid, email string) (string, error)
	CheckoutURL(ctx context.Context, customerID string) (string, error)
	PortalURL(ctx context.Context, customerID string) (string, error)
}

var errBillingNotConfigured = errors.New("billing not configured")

// ErrCustomerGone means Stripe no longer has the customer. Retrying the lookup
// cannot succeed.
var ErrCustomerGone = errors.New("stripe customer gone")

// StripeBilling talks to Stripe with a per-instance client instead of the
// package-level stripe.Key.
type StripeBilling struct {
	api *client.API
	cfg config.StripeConfig
}

func NewStripeBilling(cfg config.StripeConfig) *StripeBilling {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeBilling{api: api, cfg: cfg}
}

func (b *StripeBilling) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", errors.New("missing stripe customer id")
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := b.api.Customers.Get(customerID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return "", fmt.Errorf("stripe customer %s: %w", customerID, ErrCustomerGone)
		}
		return "", fmt.Errorf("stripe customer lookup %s: %w", customerID, err)
	}
	if cust.Deleted {
		return "", fmt.Errorf("stripe customer %s: %w", customerID, ErrCustomerGone)
	}
	return cust.Email, nil
}

func (b *StripeBilling) CreateCustomer(ctx context.Context, uid, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"firebase_uid": uid,
		},
	}
	params.Context = ctx
	cust, err := b.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (b *StripeBilling) CheckoutURL(ctx context.Context, customerID string) (string, error) {
	frontendURL := strings.TrimRight(b.cfg.FrontendURL, "/")
	if b.cfg.PriceID == "" || frontendURL == "" {
		return "", errBillingNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(b.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/premium/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(frontendURL + "/premium"),
	}
	params.Context = ctx
	sess, err := b.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (b *StripeBilling) PortalURL(ctx context.Context, customerID string) (string, error) {
	frontendURL := strings.TrimRight(b.cfg.FrontendURL, "/")
	if frontendURL == "" {
		return "", errBillingNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(frontendURL + "/settings"),
	}
	params.Context = ctx
	sess, err := b.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ensureStripeCustomer returns the account's Stripe customer, creating one and
// storing its id on the account when missing.
func ensureStripeCustomer(ctx context.Context, billing Billing, accounts store.AccountStore, acct *models.UserAccount) (string, error) {
	if acct.StripeCustomerID != "" {
		return acct.StripeCustomerID, nil
	}
	if acct.Email == "" {
		return "", ErrMissingEmail
	}
	customerID, err := billing.CreateCustomer(ctx, acct.UID, acct.Email)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := accounts.SetStripeCustomer(ctx, acct.UID, customerID); err != nil {
		return "", fmt.Errorf("store stripe customer: %w", err)
	}
	acct.StripeCustomerID = customerID
	return customerID, nil
}

// subscriptionUpdateFromEvent maps a verified Stripe event to the account
// change it implies. handled is false for event types we do not act on.
func subscriptionUpdateFromEvent(ctx context.Context, event stripe.Event, customers CustomerLookup) (update models.SubscriptionUpdate, handled bool, err error) {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return update, true, fmt.Errorf("invalid session payload: %w", err)
		}
		email := sess.CustomerEmail
		if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
			email = sess.CustomerDetails.Email
		}
		update = models.SubscriptionUpdate{Email: email, Status: models.StatusActive, CustomerID: customerID(sess.Customer)}

	case "invoice.paid", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return update, true, fmt.Errorf("invalid invoice payload: %w", err)
		}
		status := models.StatusActive
		if event.Type == "invoice.payment_failed" {
			status = models.StatusPastDue
		}
		update = models.SubscriptionUpdate{Email: inv.CustomerEmail, Status: status, CustomerID: customerID(inv.Customer)}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return update, true, fmt.Errorf("invalid subscription payload: %w", err)
		}
		status := models.SubscriptionStatus(sub.Status)
		if event.Type == "customer.subscription.deleted" {
			status = models.StatusCanceled
		}
		update = models.SubscriptionUpdate{Status: status, CustomerID: customerID(sub.Customer)}

	default:
		return update, false, nil
	}

	if update.Email == "" {
		if update.CustomerID == "" {
			return update, true, ErrMissingEmail
		}
		email, err := customers.CustomerEmail(ctx, update.CustomerID)
		if err != nil {
			return update, true, err
		}
		update.Email = email
	}
	if update.Email == "" {
		return update, true, ErrMissingEmail
	}
	return update, true, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
