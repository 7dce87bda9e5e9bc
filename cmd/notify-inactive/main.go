package main

import (
	"context"
	"os"
	"time"

	"github.com/jaleski01/DESVICIAR-VERCEL/app"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/config"
	"github.com/jaleski01/DESVICIAR-VERCEL/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Logs.Style, cfg.Logs.Level)
	if err != nil {
		panic(err)
	}

	code := 0
	if err := run(cfg, log); err != nil {
		log.Error("inactivity sweep failed", "error", err)
		code = 1
	}
	log.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, log *logger.Logger) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	srv, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	res, err := srv.Notifier().Run(ctx)
	if err != nil {
		return err
	}
	log.Info("done", "candidates", res.Candidates, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped, "took", time.Since(start).String())
	return nil
}
