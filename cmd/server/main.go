package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/litenhq/liten-server/internal/config"
	"github.com/litenhq/liten-server/internal/events"
	"github.com/litenhq/liten-server/internal/handlers"
	"github.com/litenhq/liten-server/internal/httpserver"
	"github.com/litenhq/liten-server/internal/ledger"
	"github.com/litenhq/liten-server/internal/logging"
	"github.com/litenhq/liten-server/internal/service"
	"github.com/litenhq/liten-server/internal/token"
	"github.com/litenhq/liten-server/internal/users"
)

const purgeInterval = time.Hour

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		logging.New("info").Error("config error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		logger.Error("database init error", "error", err)
		os.Exit(1)
	}

	producer := events.NewProducer([]string{configuration.KAFKA_ADDRESS}, "user_events")

	issuer := &token.Issuer{
		AccessSecret:  []byte(configuration.JWT_SECRET),
		RefreshSecret: []byte(configuration.REFRESH_SECRET),
	}
	tokenLedger := &ledger.Ledger{DB: db}

	authService := &service.AuthService{
		Users:    &users.Directory{DB: db},
		Ledger:   tokenLedger,
		Tokens:   issuer,
		Producer: producer,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(httpserver.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{Svc: authService},
		Tokens:      issuer,
	})

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(logging.IntoContext(context.Background(), logger))
	go purgeExpiredTokens(sweepCtx, tokenLedger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	} else {
		logger.Error("db handle error", "error", err)
	}

	if err := producer.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// purgeExpiredTokens sweeps the ledger on a fixed interval, independent of
// request traffic.
func purgeExpiredTokens(ctx context.Context, l *ledger.Ledger) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := l.PurgeExpiredBefore(ctx, time.Now())
			if err != nil {
				logger.Error("refresh token purge failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Info("purged expired refresh tokens", "count", count)
			}
		}
	}
}
