package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nobconsult/internal/config"
	"nobconsult/internal/database"
	"nobconsult/internal/pkg/logger"
	"nobconsult/internal/reconcile"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, append(repository.Models(), storage.Models()...)...); err != nil {
		return err
	}

	s := newServer(cfg, db, log)
	defer s.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(sigCtx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.relay != nil {
		g.Go(func() error {
			return s.relay.Run(ctx, s.hub)
		})
	}

	if s.job != nil {
		c, err := reconcile.Schedule(s.job, cfg.ReconcileSchedule, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
