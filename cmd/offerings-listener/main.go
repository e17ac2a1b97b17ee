package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/listener"
	"github.com/malgorzata-bondini/offerings-app/internal/logging"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	profile, err := config.LoadProfile(cfg.ProfilePath)
	must(err)
	profile.ApplyEnv(cfg)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc := listener.NewService(db, cfg, profile)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
