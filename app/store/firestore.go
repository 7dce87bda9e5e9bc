package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

const (
	usersCollection    = "users"
	dailyCollection    = "dailyProgress"
	triggersCollection = "triggers"
)

var _ Store = (*Firebase)(nil)

// NewFirebaseApp initializes the Admin SDK app once for the process. Credentials
// come from the configured file or Application Default Credentials.
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// Firebase stores identities in Firebase Auth and documents in Firestore.
type Firebase struct {
	auth *auth.Client
	fs   *firestore.Client
	log  *logger.Logger
}

func NewFirebase(ctx context.Context, app *firebase.App, log *logger.Logger) (*Firebase, error) {
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}
	return &Firebase{auth: authClient, fs: fs, log: log.With("service", "FirebaseStore")}, nil
}

func (s *Firebase) user(uid string) *firestore.DocumentRef {
	return s.fs.Collection(usersCollection).Doc(uid)
}

func (s *Firebase) UserIDByEmail(ctx context.Context, email string) (string, error) {
	u, err := s.auth.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get user by email: %w", err)
	}
	return u.UID, nil
}

func (s *Firebase) CreateIdentity(ctx context.Context, email string) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(NormalizeEmail(email)).
		EmailVerified(true)
	u, err := s.auth.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", ErrIdentityExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	s.log.Info("provisioned identity from billing", "uid", u.UID)
	return u.UID, nil
}

func (s *Firebase) GetAccount(ctx context.Context, uid string) (*models.UserAccount, error) {
	snap, err := s.user(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account %s: %w", uid, err)
	}
	var acct models.UserAccount
	if err := snap.DataTo(&acct); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", uid, err)
	}
	acct.UID = uid
	return &acct, nil
}

func (s *Firebase) AccountByCustomerID(ctx context.Context, customerID string) (*models.UserAccount, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	iter := s.fs.Collection(usersCollection).
		Where("stripeCustomerId", "==", customerID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account by customer %s: %w", customerID, err)
	}
	var acct models.UserAccount
	if err := snap.DataTo(&acct); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", snap.Ref.ID, err)
	}
	acct.UID = snap.Ref.ID
	return &acct, nil
}

// EnsureAccount needs no adoption step: billing provisions the Firebase Auth
// user itself, so a later sign-in with that email carries the same uid.
func (s *Firebase) EnsureAccount(ctx context.Context, uid, email string) error {
	_, err := s.user(uid).Create(ctx, map[string]interface{}{
		"email":              NormalizeEmail(email),
		"subscriptionStatus": string(models.StatusUndefined),
		"updatedAt":          firestore.ServerTimestamp,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create account %s: %w", uid, err)
	}
	return nil
}

func (s *Firebase) merge(ctx context.Context, uid string, data map[string]interface{}) error {
	if _, err := s.user(uid).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("merge account %s: %w", uid, err)
	}
	return nil
}

func (s *Firebase) MergeSubscription(ctx context.Context, uid string, u models.SubscriptionUpdate) error {
	data := map[string]interface{}{
		"subscriptionStatus": string(u.Status),
		"updatedAt":          firestore.ServerTimestamp,
	}
	if u.Email != "" {
		data["email"] = u.Email
	}
	if u.CustomerID != "" {
		data["stripeCustomerId"] = u.CustomerID
	}
	return s.merge(ctx, uid, data)
}

func (s *Firebase) SetStripeCustomer(ctx context.Context, uid, customerID string) error {
	return s.merge(ctx, uid, map[string]interface{}{"stripeCustomerId": customerID})
}

func (s *Firebase) SetStreakStart(ctx context.Context, uid string, at time.Time) error {
	return s.merge(ctx, uid, map[string]interface{}{
		"streakStartAt": at,
		"updatedAt":     firestore.ServerTimestamp,
	})
}

func (s *Firebase) TouchActivity(ctx context.Context, uid string, at time.Time) error {
	return s.merge(ctx, uid, map[string]interface{}{"lastActiveAt": at})
}

func (s *Firebase) DailyRecordsSince(ctx context.Context, uid, since string) ([]models.DailyRecord, error) {
	iter := s.user(uid).Collection(dailyCollection).
		Where("date", ">=", since).
		Documents(ctx)
	defer iter.Stop()

	var out []models.DailyRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list daily records %s: %w", uid, err)
		}
		var rec models.DailyRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode daily record %s/%s: %w", uid, snap.Ref.ID, err)
		}
		if rec.Date == "" {
			rec.Date = snap.Ref.ID
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Firebase) TriggerLogsSince(ctx context.Context, uid string, since time.Time) ([]models.TriggerLog, error) {
	iter := s.user(uid).Collection(triggersCollection).
		Where("timestamp", ">=", since).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []models.TriggerLog
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list trigger logs %s: %w", uid, err)
		}
		var l models.TriggerLog
		if err := snap.DataTo(&l); err != nil {
			return nil, fmt.Errorf("decode trigger log %s/%s: %w", uid, snap.Ref.ID, err)
		}
		l.ID = snap.Ref.ID
		out = append(out, l)
	}
	return out, nil
}

func (s *Firebase) PutDailyRecord(ctx context.Context, uid string, rec models.DailyRecord) error {
	if _, err := s.user(uid).Collection(dailyCollection).Doc(rec.Date).Set(ctx, rec); err != nil {
		return fmt.Errorf("put daily record %s/%s: %w", uid, rec.Date, err)
	}
	return nil
}

func (s *Firebase) AppendTriggerLog(ctx context.Context, uid string, log models.TriggerLog) (models.TriggerLog, error) {
	ref, _, err := s.user(uid).Collection(triggersCollection).Add(ctx, log)
	if err != nil {
		return models.TriggerLog{}, fmt.Errorf("append trigger log %s: %w", uid, err)
	}
	log.ID = ref.ID
	return log, nil
}

func (s *Firebase) InactiveAccounts(ctx context.Context, before time.Time) ([]models.UserAccount, error) {
	iter := s.fs.Collection(usersCollection).
		Where("lastActiveAt", "<", before).
		Documents(ctx)
	defer iter.Stop()

	var out []models.UserAccount
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list inactive accounts: %w", err)
		}
		var acct models.UserAccount
		if err := snap.DataTo(&acct); err != nil {
			s.log.Warn("skipping undecodable account", "uid", snap.Ref.ID, "error", err)
			continue
		}
		acct.UID = snap.Ref.ID
		if NeedsInactivityNudge(acct, before) {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (s *Firebase) SetPushToken(ctx context.Context, uid, token string) error {
	return s.merge(ctx, uid, map[string]interface{}{"fcmToken": token})
}

func (s *Firebase) ClearPushToken(ctx context.Context, uid string) error {
	_, err := s.user(uid).Update(ctx, []firestore.Update{
		{Path: "fcmToken", Value: firestore.Delete},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("clear push token %s: %w", uid, err)
	}
	return nil
}

func (s *Firebase) MarkNotified(ctx context.Context, uid string, at time.Time) error {
	return s.merge(ctx, uid, map[string]interface{}{"lastNotifiedAt": at})
}

func (s *Firebase) Close() error {
	return s.fs.Close()
}
