package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
)

var _ Store = (*Memory)(nil)

// Memory is a process-local Store. Identity and document writes are counted so
// callers can assert on side effects.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	uidByKey map[string]string
	accounts map[string]*models.UserAccount
	daily    map[string]map[string]models.DailyRecord
	triggers map[string][]models.TriggerLog
	// provisioned holds uids created by CreateIdentity that no sign-in has
	// claimed yet.
	provisioned map[string]bool

	identityWrites int
	docWrites      int
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		uidByKey: map[string]string{},
		accounts: map[string]*models.UserAccount{},
		daily:    map[string]map[string]models.DailyRecord{},
		triggers: map[string][]models.TriggerLog{},

		provisioned: map[string]bool{},
	}
}

// SetClock overrides the time source used for UpdatedAt stamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Writes returns the number of identity creations and document writes so far.
func (m *Memory) Writes() (identity, docs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identityWrites, m.docWrites
}

// PutAccount seeds or replaces an account as-is.
func (m *Memory) PutAccount(acct models.UserAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := acct
	m.accounts[acct.UID] = &cp
	if acct.Email != "" {
		m.uidByKey[NormalizeEmail(acct.Email)] = acct.UID
	}
}

func (m *Memory) UserIDByEmail(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.uidByKey[NormalizeEmail(email)]
	if !ok {
		return "", ErrNotFound
	}
	return uid, nil
}

func (m *Memory) CreateIdentity(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := NormalizeEmail(email)
	if _, ok := m.uidByKey[key]; ok {
		return "", ErrIdentityExists
	}
	uid := uuid.NewString()
	m.uidByKey[key] = uid
	m.provisioned[uid] = true
	m.identityWrites++
	return uid, nil
}

func (m *Memory) GetAccount(_ context.Context, uid string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *Memory) AccountByCustomerID(_ context.Context, customerID string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if customerID == "" {
		return nil, ErrNotFound
	}
	var found *models.UserAccount
	for _, acct := range m.accounts {
		if acct.StripeCustomerID != customerID {
			continue
		}
		if found == nil || acct.UpdatedAt.After(found.UpdatedAt) {
			found = acct
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// EnsureAccount creates the signed-in uid's account. When billing provisioned
// the email under another uid first, that account moves to uid.
func (m *Memory) EnsureAccount(_ context.Context, uid, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[uid]; ok {
		return nil
	}
	key := NormalizeEmail(email)
	owner, taken := m.uidByKey[key]
	if key != "" && taken && m.provisioned[owner] {
		m.adopt(owner, uid, key)
		return nil
	}
	m.accounts[uid] = &models.UserAccount{UID: uid, Email: key, UpdatedAt: m.now()}
	if key != "" && !taken {
		m.uidByKey[key] = uid
	}
	m.docWrites++
	return nil
}

func (m *Memory) adopt(from, to, key string) {
	acct := m.account(from)
	delete(m.accounts, from)
	acct.UID = to
	acct.UpdatedAt = m.now()
	m.accounts[to] = acct
	m.uidByKey[key] = to
	if daily, ok := m.daily[from]; ok {
		m.daily[to] = daily
		delete(m.daily, from)
	}
	if logs, ok := m.triggers[from]; ok {
		m.triggers[to] = logs
		delete(m.triggers, from)
	}
	delete(m.provisioned, from)
	m.docWrites++
}

func (m *Memory) account(uid string) *models.UserAccount {
	acct, ok := m.accounts[uid]
	if !ok {
		acct = &models.UserAccount{UID: uid}
		m.accounts[uid] = acct
	}
	return acct
}

func (m *Memory) MergeSubscription(_ context.Context, uid string, u models.SubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := m.account(uid)
	if u.Email != "" {
		acct.Email = u.Email
	}
	acct.SubscriptionStatus = u.Status
	if u.CustomerID != "" {
		acct.StripeCustomerID = u.CustomerID
	}
	acct.UpdatedAt = m.now()
	m.docWrites++
	return nil
}

func (m *Memory) SetStripeCustomer(_ context.Context, uid, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(uid).StripeCustomerID = customerID
	m.docWrites++
	return nil
}

func (m *Memory) SetStreakStart(_ context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := m.account(uid)
	acct.StreakStartAt = &at
	acct.UpdatedAt = m.now()
	m.docWrites++
	return nil
}

func (m *Memory) TouchActivity(_ context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(uid).LastActiveAt = &at
	m.docWrites++
	return nil
}

func (m *Memory) DailyRecordsSince(_ context.Context, uid, since string) ([]models.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyRecord
	for date, rec := range m.daily[uid] {
		if date >= since {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *Memory) TriggerLogsSince(_ context.Context, uid string, since time.Time) ([]models.TriggerLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TriggerLog
	for _, l := range m.triggers[uid] {
		if !l.Timestamp.Before(since) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) PutDailyRecord(_ context.Context, uid string, rec models.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daily[uid] == nil {
		m.daily[uid] = map[string]models.DailyRecord{}
	}
	m.daily[uid][rec.Date] = rec
	m.docWrites++
	return nil
}

func (m *Memory) AppendTriggerLog(_ context.Context, uid string, log models.TriggerLog) (models.TriggerLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = ksuid.New().String()
	m.triggers[uid] = append(m.triggers[uid], log)
	m.docWrites++
	return log, nil
}

func (m *Memory) InactiveAccounts(_ context.Context, before time.Time) ([]models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserAccount
	for _, acct := range m.accounts {
		if NeedsInactivityNudge(*acct, before) {
			out = append(out, *acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (m *Memory) SetPushToken(_ context.Context, uid, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(uid).PushToken = token
	m.docWrites++
	return nil
}

func (m *Memory) ClearPushToken(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[uid]; ok {
		acct.PushToken = ""
		m.docWrites++
	}
	return nil
}

func (m *Memory) MarkNotified(_ context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(uid).LastNotifiedAt = &at
	m.docWrites++
	return nil
}

func (m *Memory) Close() error { return nil }
