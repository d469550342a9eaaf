package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"nobconsult/internal/config"
	"nobconsult/internal/database"
	"nobconsult/internal/pkg/logger"
	"nobconsult/internal/reconcile"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

// reconcile runs one pass of the orphan-blob sweep and history check, for
// cron hosts that prefer an external scheduler over the in-process one.
func main() {
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	blobs := storage.NewLocalStore(storage.NewRepository(db), cfg.UploadsDir, storage.StaticURLBase)
	job := reconcile.NewJob(blobs, repository.NewApplicationRepository(db), reconcile.Config{
		Grace:  cfg.ReconcileGrace,
		DryRun: *dryRun,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	rep, err := job.RunOnce(ctx)
	if err != nil {
		log.Fatal("reconcile failed", zap.Error(err))
	}
	if len(rep.Mismatches) > 0 {
		log.Fatal("history disagrees with stored status", zap.Int("applications", len(rep.Mismatches)))
	}
}
