// Package store persists identities, accounts and progress records.
//
// Three backends implement Store: Firebase (Auth + Firestore), Postgres and an
// in-memory store used for local development and tests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrIdentityExists = errors.New("identity already exists")
)

// IdentityStore resolves and provisions login identities keyed by email.
type IdentityStore interface {
	// UserIDByEmail returns ErrNotFound when no identity owns the address.
	UserIDByEmail(ctx context.Context, email string) (string, error)
	// CreateIdentity provisions a pre-verified identity. It returns
	// ErrIdentityExists when the email is already taken.
	CreateIdentity(ctx context.Context, email string) (string, error)
}

type AccountStore interface {
	GetAccount(ctx context.Context, uid string) (*models.UserAccount, error)
	// AccountByCustomerID returns ErrNotFound when no account is linked to the
	// Stripe customer.
	AccountByCustomerID(ctx context.Context, customerID string) (*models.UserAccount, error)
	// EnsureAccount creates an empty account for uid when none exists. An
	// existing account is left untouched.
	EnsureAccount(ctx context.Context, uid, email string) error
	// MergeSubscription writes email and customer id (each when set), status and
	// the update time, leaving every other account field untouched.
	MergeSubscription(ctx context.Context, uid string, u models.SubscriptionUpdate) error
	SetStripeCustomer(ctx context.Context, uid, customerID string) error
	SetStreakStart(ctx context.Context, uid string, at time.Time) error
	TouchActivity(ctx context.Context, uid string, at time.Time) error
}

type ProgressStore interface {
	// DailyRecordsSince returns records with Date >= since (YYYY-MM-DD).
	DailyRecordsSince(ctx context.Context, uid, since string) ([]models.DailyRecord, error)
	// TriggerLogsSince returns logs at or after since, oldest first.
	TriggerLogsSince(ctx context.Context, uid string, since time.Time) ([]models.TriggerLog, error)
	PutDailyRecord(ctx context.Context, uid string, rec models.DailyRecord) error
	AppendTriggerLog(ctx context.Context, uid string, log models.TriggerLog) (models.TriggerLog, error)
}

type NotificationStore interface {
	// InactiveAccounts lists accounts that NeedsInactivityNudge for the cutoff.
	InactiveAccounts(ctx context.Context, before time.Time) ([]models.UserAccount, error)
	SetPushToken(ctx context.Context, uid, token string) error
	ClearPushToken(ctx context.Context, uid string) error
	MarkNotified(ctx context.Context, uid string, at time.Time) error
}

type Store interface {
	IdentityStore
	AccountStore
	ProgressStore
	NotificationStore
	Close() error
}

// NeedsInactivityNudge reports whether acct went quiet before the cutoff, can
// receive a push and has not been nudged since it last showed activity.
func NeedsInactivityNudge(acct models.UserAccount, before time.Time) bool {
	if acct.LastActiveAt == nil || !acct.LastActiveAt.Before(before) {
		return false
	}
	if acct.PushToken == "" {
		return false
	}
	return acct.LastNotifiedAt == nil || acct.LastNotifiedAt.Before(*acct.LastActiveAt)
}

// NormalizeEmail is the join key between billing and identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
