package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

// Deps are the collaborators of a Server. Nil Ledger, Pusher and Metrics get
// process-local defaults.
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Billing Billing
	Ledger  EventLedger
	Pusher  Pusher
	Metrics *Metrics
	Log     *logger.Logger
	Now     func() time.Time
}

// Server holds everything the HTTP handlers need. Handlers are methods so
// nothing is kept in package globals.
type Server struct {
	cfg        *config.Config
	store      store.Store
	billing    Billing
	reconciler *Reconciler
	ledger     EventLedger
	notifier   *Notifier
	metrics    *Metrics
	log        *logger.Logger
	now        func() time.Time
	closers    []func() error
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics()
	}
	if d.Ledger == nil {
		d.Ledger = NewMemoryLedger()
	}
	if d.Pusher == nil {
		d.Pusher = LogPusher{Log: d.Log}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		cfg:        d.Config,
		store:      d.Store,
		billing:    d.Billing,
		reconciler: NewReconciler(d.Store, d.Store, d.Log),
		ledger:     d.Ledger,
		metrics:    d.Metrics,
		log:        d.Log,
		now:        d.Now,
	}
	s.notifier = NewNotifier(d.Store, d.Pusher, d.Config.Notify, d.Metrics, d.Log)
	s.notifier.now = d.Now
	return s
}

// Build opens the configured store, ledger and push client and returns a
// ready Server. Close releases them.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	var (
		closers []func() error
		st      store.Store
		fbApp   *firebase.App
		err     error
	)
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	if cfg.Store.Backend != config.BackendMemory && cfg.Firebase.ProjectID != "" {
		fbApp, err = store.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
	}

	switch cfg.Store.Backend {
	case config.BackendFirestore:
		if fbApp == nil {
			return nil, errors.New("FIREBASE_PROJECT_ID must be set for the firestore store")
		}
		fs, err := store.NewFirebase(ctx, fbApp, log)
		if err != nil {
			return nil, err
		}
		st = fs
	case config.BackendPostgres:
		pg, err := store.NewPostgres(ctx, cfg.DB, log)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		st = pg
	default:
		log.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	}
	closers = append(closers, st.Close)

	var ledger EventLedger
	if cfg.Redis.Addr != "" {
		rl, err := NewRedisLedger(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rl.Close)
		ledger = rl
	} else {
		log.Info("REDIS_ADDR not set; webhook event ledger is process-local")
		ledger = NewMemoryLedger()
	}

	var pusher Pusher = LogPusher{Log: log}
	if fbApp != nil {
		mc, err := fbApp.Messaging(ctx)
		if err != nil {
			return fail(fmt.Errorf("init firebase messaging: %w", err))
		}
		pusher = NewFCMPusher(mc)
	}

	s := NewServer(Deps{
		Config:  cfg,
		Store:   st,
		Billing: NewStripeBilling(cfg.Stripe),
		Ledger:  ledger,
		Pusher:  pusher,
		Log:     log,
	})
	s.closers = closers
	return s, nil
}

// Notifier exposes the inactivity notifier for one-shot runs.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
