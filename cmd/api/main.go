package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-loans-backend/api"
	"github.com/angelmondragon/library-loans-backend/api/routes"
	"github.com/angelmondragon/library-loans-backend/internal/books"
	"github.com/angelmondragon/library-loans-backend/internal/borrowers"
	"github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/pkg/clock"
	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/env"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/migrate"
	"github.com/angelmondragon/library-loans-backend/pkg/outbox"
	"github.com/angelmondragon/library-loans-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured, idempotency replay and rate limiting disabled")
	}

	bookService, err := books.NewService(books.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create book service", err)
		os.Exit(1)
	}

	borrowerService, err := borrowers.NewService(borrowers.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create borrower service", err)
		os.Exit(1)
	}

	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	location, err := cfg.Lending.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid lending time zone", err)
		os.Exit(1)
	}
	loanService, err := loans.NewService(loans.ServiceParams{
		Store:           loans.NewRepository(dbClient.DB(), events),
		Clock:           clock.System(),
		Logger:          logg,
		Metrics:         metrics.NewLoanMetrics(prometheus.DefaultRegisterer),
		MaxLoanDuration: cfg.Lending.MaxLoanDuration(),
		Location:        location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create loan service", err)
		os.Exit(1)
	}

	// Cloud Run style platforms inject PORT; it wins over LIBRARY_APP_PORT.
	addr := ":" + env.FirstOf(cfg.App.Port, "PORT")
	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		bookService,
		borrowerService,
		loanService,
		metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		promhttp.Handler(),
	)
	server := api.NewServer(cfg, addr, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
