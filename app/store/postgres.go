package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/segmentio/ksuid"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

var _ Store = (*Postgres)(nil)

// Postgres keeps identities and documents in a single database. The users row
// doubles as the identity record.
type Postgres struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewPostgres(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL must be set for the postgres store")
	}
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	log.Info("Connected to Postgres")
	return &Postgres{db: db, log: log.With("service", "PostgresStore")}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  uid TEXT PRIMARY KEY,
  email TEXT UNIQUE,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  billing_provisioned BOOLEAN NOT NULL DEFAULT false,
  subscription_status TEXT NOT NULL DEFAULT '',
  stripe_customer_id TEXT,
  streak_start_at TIMESTAMPTZ,
  last_active_at TIMESTAMPTZ,
  last_notified_at TIMESTAMPTZ,
  push_token TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE users ADD COLUMN IF NOT EXISTS billing_provisioned BOOLEAN NOT NULL DEFAULT false;
CREATE INDEX IF NOT EXISTS idx_users_last_active_at ON users(last_active_at);
CREATE INDEX IF NOT EXISTS idx_users_stripe_customer_id ON users(stripe_customer_id);
CREATE TABLE IF NOT EXISTS daily_records (
  uid TEXT NOT NULL REFERENCES users(uid) ON DELETE CASCADE ON UPDATE CASCADE,
  day DATE NOT NULL,
  completed_count INT NOT NULL DEFAULT 0,
  total_habits INT NOT NULL DEFAULT 6,
  PRIMARY KEY (uid, day)
);
CREATE TABLE IF NOT EXISTS trigger_logs (
  id TEXT PRIMARY KEY,
  uid TEXT NOT NULL REFERENCES users(uid) ON DELETE CASCADE ON UPDATE CASCADE,
  emotion TEXT NOT NULL DEFAULT '',
  context TEXT NOT NULL DEFAULT '',
  logged_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trigger_logs_uid_logged_at ON trigger_logs(uid, logged_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

const accountColumns = `
	uid,
	COALESCE(email, '') AS email,
	subscription_status,
	COALESCE(stripe_customer_id, '') AS stripe_customer_id,
	streak_start_at,
	last_active_at,
	last_notified_at,
	COALESCE(push_token, '') AS push_token,
	updated_at`

func (s *Postgres) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var uid string
	err := s.db.GetContext(ctx, &uid, `SELECT uid FROM users WHERE email = $1;`, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return uid, nil
}

func (s *Postgres) CreateIdentity(ctx context.Context, email string) (string, error) {
	uid := uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, email_verified, billing_provisioned)
		VALUES ($1, $2, true, true)
		ON CONFLICT (email) DO NOTHING;
	`, uid, NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrIdentityExists
	}
	return uid, nil
}

func (s *Postgres) GetAccount(ctx context.Context, uid string) (*models.UserAccount, error) {
	var acct models.UserAccount
	err := s.db.GetContext(ctx, &acct, `SELECT `+accountColumns+` FROM users WHERE uid = $1;`, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (s *Postgres) AccountByCustomerID(ctx context.Context, customerID string) (*models.UserAccount, error) {
	var acct models.UserAccount
	err := s.db.GetContext(ctx, &acct, `
		SELECT `+accountColumns+`
		FROM users
		WHERE stripe_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1;
	`, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// EnsureAccount gives a signed-in uid its row. A row that billing provisioned
// for the same email is re-keyed to uid, carrying its subscription with it. An
// email held by another signed-in uid is left there and uid gets a row without
// one.
func (s *Postgres) EnsureAccount(ctx context.Context, uid, email string) error {
	email = NormalizeEmail(email)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ensure account: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (uid, email, email_verified)
		VALUES ($1, NULLIF($2, ''), true)
		ON CONFLICT DO NOTHING;
	`, uid, email)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", uid, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 1 {
		return tx.Commit()
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE uid = $1);`, uid); err != nil {
		return fmt.Errorf("check account %s: %w", uid, err)
	}
	if exists {
		return tx.Commit()
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE users
		SET uid = $1, billing_provisioned = false, updated_at = now()
		WHERE email = $2 AND billing_provisioned;
	`, uid, email)
	if err != nil {
		return fmt.Errorf("adopt account %s: %w", uid, err)
	}
	adopted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if adopted == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (uid, email_verified)
			VALUES ($1, true)
			ON CONFLICT DO NOTHING;
		`, uid); err != nil {
			return fmt.Errorf("insert account %s without email: %w", uid, err)
		}
	} else {
		s.log.Info("signed-in user adopted billing account", "uid", uid)
	}
	return tx.Commit()
}

func (s *Postgres) MergeSubscription(ctx context.Context, uid string, u models.SubscriptionUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, subscription_status, stripe_customer_id, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), now())
		ON CONFLICT (uid) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			subscription_status = EXCLUDED.subscription_status,
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, users.stripe_customer_id),
			updated_at = now();
	`, uid, NormalizeEmail(u.Email), string(u.Status), u.CustomerID)
	return err
}

func (s *Postgres) SetStripeCustomer(ctx context.Context, uid, customerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1, updated_at = now()
		WHERE uid = $2;
	`, customerID, uid)
	return err
}

func (s *Postgres) SetStreakStart(ctx context.Context, uid string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET streak_start_at = $1, updated_at = now()
		WHERE uid = $2;
	`, at, uid)
	return err
}

func (s *Postgres) TouchActivity(ctx context.Context, uid string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET last_active_at = $1
		WHERE uid = $2;
	`, at, uid)
	return err
}

func (s *Postgres) DailyRecordsSince(ctx context.Context, uid, since string) ([]models.DailyRecord, error) {
	var out []models.DailyRecord
	err := s.db.SelectContext(ctx, &out, `
		SELECT to_char(day, 'YYYY-MM-DD') AS day, completed_count, total_habits
		FROM daily_records
		WHERE uid = $1 AND day >= $2::date
		ORDER BY day;
	`, uid, since)
	return out, err
}

func (s *Postgres) TriggerLogsSince(ctx context.Context, uid string, since time.Time) ([]models.TriggerLog, error) {
	var out []models.TriggerLog
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, emotion, context, logged_at
		FROM trigger_logs
		WHERE uid = $1 AND logged_at >= $2
		ORDER BY logged_at, id;
	`, uid, since)
	return out, err
}

func (s *Postgres) PutDailyRecord(ctx context.Context, uid string, rec models.DailyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_records (uid, day, completed_count, total_habits)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (uid, day) DO UPDATE SET
			completed_count = EXCLUDED.completed_count,
			total_habits = EXCLUDED.total_habits;
	`, uid, rec.Date, rec.CompletedCount, rec.TotalHabits)
	return err
}

func (s *Postgres) AppendTriggerLog(ctx context.Context, uid string, log models.TriggerLog) (models.TriggerLog, error) {
	log.ID = ksuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trigger_logs (id, uid, emotion, context, logged_at)
		VALUES ($1, $2, $3, $4, $5);
	`, log.ID, uid, log.Emotion, log.Context, log.Timestamp)
	if err != nil {
		return models.TriggerLog{}, err
	}
	return log, nil
}

func (s *Postgres) InactiveAccounts(ctx context.Context, before time.Time) ([]models.UserAccount, error) {
	var out []models.UserAccount
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+accountColumns+`
		FROM users
		WHERE last_active_at < $1
		  AND COALESCE(push_token, '') <> ''
		  AND (last_notified_at IS NULL OR last_notified_at < last_active_at)
		ORDER BY uid;
	`, before)
	return out, err
}

func (s *Postgres) SetPushToken(ctx context.Context, uid, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET push_token = $1 WHERE uid = $2;`, token, uid)
	return err
}

func (s *Postgres) ClearPushToken(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET push_token = NULL WHERE uid = $1;`, uid)
	return err
}

func (s *Postgres) MarkNotified(ctx context.Context, uid string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_notified_at = $1 WHERE uid = $2;`, at, uid)
	return err
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
