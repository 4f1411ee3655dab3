package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/buildledger/buildledger/internal/app"
	"github.com/buildledger/buildledger/internal/bills"
	"github.com/buildledger/buildledger/internal/identity"
	"github.com/buildledger/buildledger/internal/ledger"
	"github.com/buildledger/buildledger/internal/observability"
	"github.com/buildledger/buildledger/internal/platform/cache"
	"github.com/buildledger/buildledger/internal/platform/db"
	"github.com/buildledger/buildledger/internal/requests"
	"github.com/buildledger/buildledger/internal/shared"
	"github.com/buildledger/buildledger/internal/sites"
	"github.com/buildledger/buildledger/internal/supervisors"
	"github.com/buildledger/buildledger/internal/vendors"
	"github.com/buildledger/buildledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "buildledger-api")

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("apply schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cache.Options{DB: cfg.RedisDB, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerCache := ledger.NewCache(redisClient, cfg.LedgerCacheTTL)
	ledgerService := ledger.NewService(logger, ledgerRepo, ledgerCache)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(logger, identityRepo, auditLogger)
	identityHandler := identity.NewHandler(logger, identityService)

	supervisorsRepo := supervisors.NewRepository(pool)
	supervisorsService := supervisors.NewService(supervisorsRepo)
	supervisorsHandler := supervisors.NewHandler(logger, supervisorsService)

	sitesRepo := sites.NewRepository(pool)
	sitesService := sites.NewService(logger, sitesRepo, supervisorsService, auditLogger, ledgerService)
	sitesHandler := sites.NewHandler(logger, sitesService)

	vendorsRepo := vendors.NewRepository(pool)
	vendorsService := vendors.NewService(vendorsRepo)
	vendorsHandler := vendors.NewHandler(logger, vendorsService)

	requestsRepo := requests.NewRepository(pool)
	requestsService := requests.NewService(logger, requestsRepo, approvalRecorder, auditLogger, ledgerService)
	requestsHandler := requests.NewHandler(logger, requestsService)

	billsRepo := bills.NewRepository(pool)
	billsService := bills.NewService(logger, billsRepo, approvalRecorder, auditLogger, ledgerService, bills.Config{
		BlockOverBudget: cfg.BlockOverBudget,
	})
	billsHandler := bills.NewHandler(logger, billsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		UserLoader:         identityRepo,
		IdentityHandler:    identityHandler,
		SitesHandler:       sitesHandler,
		SupervisorsHandler: supervisorsHandler,
		VendorsHandler:     vendorsHandler,
		RequestsHandler:    requestsHandler,
		BillsHandler:       billsHandler,
		LedgerHandler:      ledgerHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
