// Package models defines account, subscription and progress records.
package models

import "time"

type SubscriptionStatus string

// Values mirror Stripe's subscription statuses. The empty status is a freshly
// provisioned account that has not been through a billing event yet.
const (
	StatusUndefined         SubscriptionStatus = ""
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusPaused            SubscriptionStatus = "paused"
)

// Premium reports whether the status grants access to paid features.
func (s SubscriptionStatus) Premium() bool {
	return s == StatusActive || s == StatusTrialing
}

type UserAccount struct {
	UID                string             `json:"uid" firestore:"-" db:"uid"`
	Email              string             `json:"email" firestore:"email" db:"email"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" firestore:"subscriptionStatus" db:"subscription_status"`
	StripeCustomerID   string             `json:"stripeCustomerId,omitempty" firestore:"stripeCustomerId,omitempty" db:"stripe_customer_id"`
	StreakStartAt      *time.Time         `json:"streakStartAt,omitempty" firestore:"streakStartAt,omitempty" db:"streak_start_at"`
	LastActiveAt       *time.Time         `json:"lastActiveAt,omitempty" firestore:"lastActiveAt,omitempty" db:"last_active_at"`
	LastNotifiedAt     *time.Time         `json:"lastNotifiedAt,omitempty" firestore:"lastNotifiedAt,omitempty" db:"last_notified_at"`
	PushToken          string             `json:"-" firestore:"fcmToken,omitempty" db:"push_token"`
	UpdatedAt          time.Time          `json:"updatedAt" firestore:"updatedAt,omitempty" db:"updated_at"`
}

// SubscriptionUpdate is the only change the billing reconciler makes to an account.
type SubscriptionUpdate struct {
	Email      string
	Status     SubscriptionStatus
	CustomerID string // optional
}
