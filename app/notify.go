package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

type NotifyResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Dropped    int `json:"droppedTokens"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Notifier nudges users that stopped logging progress.
type Notifier struct {
	accounts store.NotificationStore
	pusher   Pusher
	cfg      config.NotifyConfig
	metrics  *Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewNotifier(accounts store.NotificationStore, pusher Pusher, cfg config.NotifyConfig, metrics *Metrics, log *logger.Logger) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = GetWorkerCount()
	}
	return &Notifier{
		accounts: accounts,
		pusher:   pusher,
		cfg:      cfg,
		metrics:  metrics,
		log:      log.With("service", "Notifier"),
		now:      time.Now,
	}
}

// Run sends one push to every account that went inactive before now minus
// InactiveAfter. A failed send is counted and logged; it does not stop the run.
func (n *Notifier) Run(ctx context.Context) (NotifyResult, error) {
	start := n.now()
	cutoff := start.Add(-n.cfg.InactiveAfter)

	candidates, err := n.accounts.InactiveAccounts(ctx, cutoff)
	if err != nil {
		return NotifyResult{}, fmt.Errorf("list inactive accounts: %w", err)
	}
	n.log.Info("inactivity sweep started", "candidates", len(candidates), "cutoff", cutoff, "workers", n.cfg.Workers)

	var sent, dropped, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.cfg.Workers)
	for _, acct := range candidates {
		acct := acct
		g.Go(func() error {
			switch err := n.notify(gctx, acct); {
			case err == nil:
				sent.Add(1)
				n.metrics.NotifyOutcome("sent")
			case errors.Is(err, ErrTokenUnregistered):
				dropped.Add(1)
				n.metrics.NotifyOutcome("token_dropped")
			case errors.Is(err, ErrPushSkipped):
				skipped.Add(1)
				n.metrics.NotifyOutcome("skipped")
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				n.metrics.NotifyOutcome("failed")
				n.log.Warn("inactivity push failed", "uid", acct.UID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NotifyResult{}, err
	}

	res := NotifyResult{
		Candidates: len(candidates),
		Sent:       int(sent.Load()),
		Dropped:    int(dropped.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
	}
	n.log.Info("inactivity sweep finished",
		"candidates", res.Candidates,
		"sent", res.Sent,
		"dropped", res.Dropped,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"took", time.Since(start).String(),
	)
	return res, nil
}

func (n *Notifier) notify(ctx context.Context, acct models.UserAccount) error {
	err := n.pusher.Push(ctx, PushMessage{
		Token: acct.PushToken,
		Title: n.cfg.Title,
		Body:  n.cfg.Body,
		Data:  map[string]string{"kind": "inactivity"},
	})
	if errors.Is(err, ErrTokenUnregistered) {
		if clearErr := n.accounts.ClearPushToken(ctx, acct.UID); clearErr != nil {
			return fmt.Errorf("clear push token: %w", clearErr)
		}
		return err
	}
	if err != nil {
		return err
	}
	return n.accounts.MarkNotified(ctx, acct.UID, n.now())
}
