package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

var ErrMissingEmail = errors.New("billing event carries no email")

// Reconciler keeps exactly one account per billing email in sync with the
// subscription status reported by the billing provider.
//
// Apply is safe to repeat: the account write is a merge of the same fields and
// an identity that already exists is reused rather than created again.
type Reconciler struct {
	identities store.IdentityStore
	accounts   store.AccountStore
	log        *logger.Logger
}

func NewReconciler(identities store.IdentityStore, accounts store.AccountStore, log *logger.Logger) *Reconciler {
	return &Reconciler{
		identities: identities,
		accounts:   accounts,
		log:        log.With("service", "Reconciler"),
	}
}

// Apply resolves (or provisions) the identity for u.Email and merges the new
// status into its account. It returns the uid that was updated.
func (r *Reconciler) Apply(ctx context.Context, u models.SubscriptionUpdate) (string, error) {
	email := store.NormalizeEmail(u.Email)
	if email == "" {
		return "", ErrMissingEmail
	}
	u.Email = email

	uid, err := r.resolveIdentity(ctx, email)
	if err != nil {
		return "", err
	}

	if err := r.accounts.MergeSubscription(ctx, uid, u); err != nil {
		return "", fmt.Errorf("merge subscription for %s: %w", uid, err)
	}

	r.log.Info("subscription reconciled",
		"uid", uid,
		"status", string(u.Status),
		"has_customer_id", u.CustomerID != "",
	)
	return uid, nil
}

// ApplyToCustomer merges u into the account already linked to u.CustomerID,
// keeping that account's email. It returns store.ErrNotFound when no account
// carries the customer id.
func (r *Reconciler) ApplyToCustomer(ctx context.Context, u models.SubscriptionUpdate) (string, error) {
	acct, err := r.accounts.AccountByCustomerID(ctx, u.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("resolve account by customer: %w", err)
	}
	u.Email = acct.Email

	if err := r.accounts.MergeSubscription(ctx, acct.UID, u); err != nil {
		return "", fmt.Errorf("merge subscription for %s: %w", acct.UID, err)
	}

	r.log.Info("subscription reconciled by customer id",
		"uid", acct.UID,
		"status", string(u.Status),
	)
	return acct.UID, nil
}

func (r *Reconciler) resolveIdentity(ctx context.Context, email string) (string, error) {
	uid, err := r.identities.UserIDByEmail(ctx, email)
	if err == nil {
		return uid, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("resolve identity: %w", err)
	}

	uid, err = r.identities.CreateIdentity(ctx, email)
	if err == nil {
		return uid, nil
	}
	if !errors.Is(err, store.ErrIdentityExists) {
		return "", fmt.Errorf("provision identity: %w", err)
	}

	// Lost a race with a concurrent delivery of the same event.
	uid, err = r.identities.UserIDByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("resolve identity after conflict: %w", err)
	}
	return uid, nil
}
