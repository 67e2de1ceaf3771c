// Package main запускает HTTP-сервер леджера накопительных целей.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/goalsaver/internal/config"
	"github.com/mmeshcher/goalsaver/internal/handler"
	"github.com/mmeshcher/goalsaver/internal/middleware"
	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/penalty"
	"github.com/mmeshcher/goalsaver/internal/rateoracle"
	"github.com/mmeshcher/goalsaver/internal/repository"
	"github.com/mmeshcher/goalsaver/internal/rewards"
	"github.com/mmeshcher/goalsaver/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	calc, err := penalty.NewCalculator(penalty.Curve(cfg.PenaltyCurve), cfg.PenaltyMaxBps)
	if err != nil {
		sugar.Fatalw("penalty configuration error", "error", err.Error())
	}

	catalog, err := rewards.Load(cfg.RewardsConfig)
	if err != nil {
		sugar.Fatalw("rewards catalog error", "error", err.Error(), "path", cfg.RewardsConfig)
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var oracle *rateoracle.Client
	if cfg.RateOracleAddress != "" {
		oracle = rateoracle.NewClient(cfg.RateOracleAddress)
	}

	svc := service.NewService(repo, service.Options{
		Penalty:        calc,
		Catalog:        catalog,
		PayoutPolicy:   model.PayoutPolicy(cfg.PodPayoutPolicy),
		DefaultRateBps: cfg.InterestRateBps,
		OracleInterval: cfg.RateOracleInterval,
	}, oracle, logger)
	defer svc.Close()

	if cfg.AdminToken == "" {
		sugar.Warn("ADMIN_TOKEN is not set, admin routes are disabled")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AdminToken)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновый опрос оракула ставки
	g.Go(func() error {
		svc.StartRateUpdates(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting goalsaver server",
			"addr", cfg.RunAddress,
			"penaltyCurve", cfg.PenaltyCurve,
			"payoutPolicy", cfg.PodPayoutPolicy,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
