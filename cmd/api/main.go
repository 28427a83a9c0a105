package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/fafwork/backend/configs"
	"github.com/fafwork/backend/internal/auth"
	"github.com/fafwork/backend/internal/checkpoints"
	"github.com/fafwork/backend/internal/contracts"
	"github.com/fafwork/backend/internal/db"
	"github.com/fafwork/backend/internal/disputes"
	"github.com/fafwork/backend/internal/jobs"
	"github.com/fafwork/backend/internal/notifications"
	"github.com/fafwork/backend/internal/proposals"
	"github.com/fafwork/backend/internal/repository"
	"github.com/fafwork/backend/internal/router"
	"github.com/fafwork/backend/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := configs.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DB.DSN)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := db.RunMigrations(ctx, pool, os.Getenv("MIGRATIONS_DIR")); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	walletRepo := repository.NewWalletRepo(pool)
	txnRepo := repository.NewTransactionRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	contractRepo := repository.NewContractRepo(pool)
	checkpointRepo := repository.NewCheckpointRepo(pool)
	disputeRepo := repository.NewDisputeRepo(pool)
	proposalRepo := repository.NewProposalRepo(pool)
	notificationRepo := repository.NewNotificationRepo(pool)

	// Notification delivery through River
	workers := river.NewWorkers()
	river.AddWorker(workers, notifications.NewDeliverWorker(notificationRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	notifier := notifications.NewService(riverClient, logger)

	// Services
	walletSvc := wallet.NewService(pool, walletRepo, txnRepo)
	contractSvc := contracts.NewService(pool, contractRepo, checkpointRepo, jobRepo, proposalRepo, walletSvc, notifier, logger)
	checkpointSvc := checkpoints.NewService(pool, checkpointRepo, contractRepo, jobRepo, walletSvc, notifier, logger)
	disputeSvc := disputes.NewService(pool, disputeRepo, contractRepo, checkpointRepo, jobRepo, walletSvc, notifier, logger)
	proposalSvc := proposals.NewService(pool, proposalRepo, jobRepo, contractRepo, contractSvc, notifier, logger)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWT.Secret)

	// Handlers
	h := router.Handlers{
		Auth:          auth.NewHandler(authSvc, logger),
		Wallet:        wallet.NewHandler(walletSvc, logger),
		Jobs:          jobs.NewHandler(jobRepo, logger),
		Contracts:     contracts.NewHandler(contractSvc, contractRepo, checkpointRepo, logger),
		Checkpoints:   checkpoints.NewHandler(checkpointSvc, logger),
		Disputes:      disputes.NewHandler(disputeSvc, disputeRepo, logger),
		Proposals:     proposals.NewHandler(proposalSvc, logger),
		Notifications: notifications.NewHandler(notificationRepo, logger),
	}
	apiRouter := router.New(h, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.HTTP.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
