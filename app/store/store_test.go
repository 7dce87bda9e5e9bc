package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
)

func TestNeedsInactivityNudge(t *testing.T) {
	cutoff := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	stale := cutoff.Add(-time.Hour)
	fresh := cutoff.Add(time.Hour)
	before := stale.Add(-time.Hour)
	after := stale.Add(time.Minute)

	cases := []struct {
		name string
		acct models.UserAccount
		want bool
	}{
		{"never active", models.UserAccount{PushToken: "tok"}, false},
		{"active recently", models.UserAccount{PushToken: "tok", LastActiveAt: &fresh}, false},
		{"no token", models.UserAccount{LastActiveAt: &stale}, false},
		{"never notified", models.UserAccount{PushToken: "tok", LastActiveAt: &stale}, true},
		{"notified before going quiet", models.UserAccount{PushToken: "tok", LastActiveAt: &stale, LastNotifiedAt: &before}, true},
		{"already notified", models.UserAccount{PushToken: "tok", LastActiveAt: &stale, LastNotifiedAt: &after}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NeedsInactivityNudge(tc.acct, cutoff))
		})
	}
}

func TestMemoryIdentityIsUniquePerEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	uid, err := m.CreateIdentity(ctx, "Ana@Example.com ")
	require.NoError(t, err)

	_, err = m.CreateIdentity(ctx, "ana@example.com")
	require.ErrorIs(t, err, ErrIdentityExists)

	got, err := m.UserIDByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	_, err = m.UserIDByEmail(ctx, "other@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	identity, docs := m.Writes()
	assert.Equal(t, 1, identity)
	assert.Equal(t, 0, docs)
}

func TestMemoryMergeSubscriptionPreservesOtherFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	streak := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.PutAccount(models.UserAccount{
		UID:              "u1",
		Email:            "ana@example.com",
		StripeCustomerID: "cus_1",
		StreakStartAt:    &streak,
		PushToken:        "tok",
	})

	require.NoError(t, m.MergeSubscription(ctx, "u1", models.SubscriptionUpdate{
		Email:  "ana@example.com",
		Status: models.StatusPastDue,
	}))

	acct, err := m.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPastDue, acct.SubscriptionStatus)
	assert.Equal(t, "cus_1", acct.StripeCustomerID)
	assert.Equal(t, "tok", acct.PushToken)
	require.NotNil(t, acct.StreakStartAt)
	assert.True(t, acct.StreakStartAt.Equal(streak))
}

func TestMemoryWindowQueries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, rec := range []models.DailyRecord{
		{Date: "2024-03-01", CompletedCount: 1, TotalHabits: 6},
		{Date: "2024-03-05", CompletedCount: 6, TotalHabits: 6},
		{Date: "2024-03-03", CompletedCount: 3, TotalHabits: 6},
	} {
		require.NoError(t, m.PutDailyRecord(ctx, "u1", rec))
	}
	recs, err := m.DailyRecordsSince(ctx, "u1", "2024-03-03")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-03-03", recs[0].Date)
	assert.Equal(t, "2024-03-05", recs[1].Date)

	base := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	_, err = m.AppendTriggerLog(ctx, "u1", models.TriggerLog{Emotion: "anxiety", Timestamp: base.Add(-time.Hour)})
	require.NoError(t, err)
	logged, err := m.AppendTriggerLog(ctx, "u1", models.TriggerLog{Emotion: "boredom", Timestamp: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, logged.ID)

	logs, err := m.TriggerLogsSince(ctx, "u1", base)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "boredom", logs[0].Emotion)
}

func TestMemoryEnsureAccountKeepsExisting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutAccount(models.UserAccount{UID: "u-1", Email: "ana@example.com", SubscriptionStatus: models.StatusActive, PushToken: "tok"})

	require.NoError(t, m.EnsureAccount(ctx, "u-1", "other@example.com"))
	acct, err := m.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acct.Email)
	assert.Equal(t, models.StatusActive, acct.SubscriptionStatus)
	assert.Equal(t, "tok", acct.PushToken)

	require.NoError(t, m.EnsureAccount(ctx, "u-2", " Beto@Example.com "))
	acct, err = m.GetAccount(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "beto@example.com", acct.Email)
	uid, err := m.UserIDByEmail(ctx, "beto@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-2", uid)

	_, docs := m.Writes()
	assert.Equal(t, 1, docs)
}

func TestMemoryEnsureAccountAdoptsBillingAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	provisioned, err := m.CreateIdentity(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NoError(t, m.MergeSubscription(ctx, provisioned, models.SubscriptionUpdate{
		Email:      "ana@example.com",
		Status:     models.StatusActive,
		CustomerID: "cus_1",
	}))

	require.NoError(t, m.EnsureAccount(ctx, "fb-uid", "Ana@Example.com"))

	acct, err := m.GetAccount(ctx, "fb-uid")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, acct.SubscriptionStatus)
	assert.Equal(t, "cus_1", acct.StripeCustomerID)
	uid, err := m.UserIDByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fb-uid", uid)
	_, err = m.GetAccount(ctx, provisioned)
	assert.ErrorIs(t, err, ErrNotFound)

	byCustomer, err := m.AccountByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "fb-uid", byCustomer.UID)
}

func TestMemoryEnsureAccountDoesNotTakeSignedInAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.EnsureAccount(ctx, "fb-1", "ana@example.com"))
	require.NoError(t, m.EnsureAccount(ctx, "fb-2", "ana@example.com"))

	uid, err := m.UserIDByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "fb-1", uid)
	_, err = m.GetAccount(ctx, "fb-2")
	require.NoError(t, err, "the second uid still gets an account of its own")
}

func TestMemoryAccountByCustomerID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutAccount(models.UserAccount{UID: "u-1", Email: "ana@example.com", StripeCustomerID: "cus_1"})

	acct, err := m.AccountByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", acct.UID)

	_, err = m.AccountByCustomerID(ctx, "cus_2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.AccountByCustomerID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryMergeSubscriptionKeepsEmailWhenBlank(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutAccount(models.UserAccount{UID: "u-1", Email: "ana@example.com", SubscriptionStatus: models.StatusActive})

	require.NoError(t, m.MergeSubscription(ctx, "u-1", models.SubscriptionUpdate{Status: models.StatusCanceled}))
	acct, err := m.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acct.Email)
	assert.Equal(t, models.StatusCanceled, acct.SubscriptionStatus)
}

func TestMemorySetStreakStart(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, m.SetStreakStart(ctx, "u-1", start))
	acct, err := m.GetAccount(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, acct.StreakStartAt)
	assert.True(t, acct.StreakStartAt.Equal(start))
}
