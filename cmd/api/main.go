package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/escalation-engine/internal/app"
	"github.com/kursadbilgin/escalation-engine/internal/config"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"github.com/kursadbilgin/escalation-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 10 * time.Second
	memorySweepEvery   = time.Minute
	webhookBodyLimitMB = 4
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("container initialization failed", zap.Error(err))
	}
	defer container.Close() //nolint:errcheck

	server := fiber.New(fiber.Config{
		AppName:      "escalation-engine",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    webhookBodyLimitMB * 1024 * 1024,
	})
	server.Use(recover.New())
	server.Use(observability.CorrelationMiddleware())
	server.Use(container.Metrics.HTTPMiddleware())
	server.Get("/metrics", adaptor.HTTPHandler(container.Metrics.Handler()))

	if err := container.RegisterRoutes(server); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("escalation-engine api started", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})

	if interval := cfg.DeadlineScanInterval(); interval > 0 {
		scheduler, err := service.NewScheduler(container.Escalation, interval, logger)
		if err != nil {
			logger.Fatal("scheduler initialization failed", zap.Error(err))
		}
		g.Go(func() error { return scheduler.Start(gctx) })
	} else {
		logger.Info("in-process deadline scanner disabled, relying on cron trigger")
	}

	if container.MemoryStore != nil {
		g.Go(func() error {
			container.MemoryStore.Run(gctx, memorySweepEvery)
			return nil
		})
	}

	if container.Relay != nil {
		g.Go(func() error { return container.Relay.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("escalation-engine stopped with error", zap.Error(err))
		return
	}
	logger.Info("escalation-engine stopped")
}
