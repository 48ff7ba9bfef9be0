package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/pullover/internal/config"
	"github.com/kursadbilgin/pullover/internal/domain"
	"github.com/kursadbilgin/pullover/internal/handler"
	infraredis "github.com/kursadbilgin/pullover/internal/infra/redis"
	"github.com/kursadbilgin/pullover/internal/observability"
	"github.com/kursadbilgin/pullover/internal/provider"
	"github.com/kursadbilgin/pullover/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	pushover, err := provider.NewPushoverProvider(cfg.Endpoint)
	if err != nil {
		logger.Fatal("pushover provider initialization failed", zap.Error(err))
	}
	defer pushover.Close()
	pushover.SetLogger(logger)
	pushover.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "pullover-relay",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, readiness(cfg), metrics)

	if strings.TrimSpace(cfg.AppToken) != "" {
		messages, err := handler.NewMessageHandler(
			pushover,
			domain.NewApplication(cfg.AppToken),
			domain.NewUser(cfg.UserKey),
			provider.SendOptions{
				Timeout:       cfg.RequestTimeout,
				RetryInterval: cfg.RetryInterval,
				MaxTries:      cfg.MaxTries,
			},
		)
		if err != nil {
			logger.Fatal("message handler initialization failed", zap.Error(err))
		}

		if cfg.RelayRedisURL != "" {
			rdb, err := infraredis.NewRedis(cfg.RelayRedisURL)
			if err != nil {
				logger.Fatal("redis initialization failed", zap.Error(err))
			}
			defer rdb.Close()

			quota, err := infraredis.NewRecipientQuota(rdb, cfg.RelayQuotaLimit, cfg.RelayQuotaWindow)
			if err != nil {
				logger.Fatal("recipient quota initialization failed", zap.Error(err))
			}
			messages.SetLimiter(quota)
			logger.Info("recipient quota enabled",
				zap.Int("limit", cfg.RelayQuotaLimit),
				zap.Duration("window", cfg.RelayQuotaWindow),
			)
		}
		if err := handler.RegisterMessageRoutes(app, messages); err != nil {
			logger.Fatal("message routes registration failed", zap.Error(err))
		}
	} else {
		logger.Warn("PUSHOVER_APP_TOKEN is not set, message routes disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("pullover relay started",
			zap.Int("port", cfg.APIPort),
			zap.String("endpoint", pushover.Endpoint()),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("pullover relay shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pullover relay stopped with error", zap.Error(err))
		return
	}
	logger.Info("pullover relay stopped")
}

func readiness(cfg *config.Config) handler.ReadinessCheck {
	return func() error {
		if strings.TrimSpace(cfg.AppToken) == "" {
			return errors.New("application token is not configured")
		}
		return nil
	}
}
