// Package app wires configuration, infrastructure and services into one
// container shared by the API server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/config"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/events"
	"github.com/kursadbilgin/escalation-engine/internal/gate"
	"github.com/kursadbilgin/escalation-engine/internal/handler"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
	"github.com/kursadbilgin/escalation-engine/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/escalation-engine/internal/infra/redis"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/queue"
	"github.com/kursadbilgin/escalation-engine/internal/ratelimit"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	DB    *gorm.DB
	SQLDB *sql.DB
	// Redis is nil when REDIS_URL is not set.
	Redis *redis.Client
	Bus   *events.Bus

	// MemoryStore is set when rate limits are kept in process and needs sweeping.
	MemoryStore *ratelimit.MemoryStore
	// Broker and Relay are nil when RABBITMQ_URL is not set.
	Broker *queue.RabbitMQ
	Relay  *queue.Relay

	CronLogs     *repository.GormCronLogRepo
	Jobs         *service.JobLogger
	Ingestion    *service.IngestionService
	Escalation   *service.EscalationService
	Confirmation *service.ConfirmationService

	rateLimitStore ratelimit.Store
	closers        []func() error
}

// New connects to every configured backing service and builds the services.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err = c.openStores(ctx); err != nil {
		return nil, err
	}
	if err = c.openMessaging(ctx); err != nil {
		return nil, err
	}
	if err = c.buildServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) openStores(ctx context.Context) error {
	db, err := postgresql.NewPostgres(ctx, c.Config.DatabaseDSN, postgresql.PoolOptions{})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	c.DB = db
	c.SQLDB = sqlDB
	c.closers = append(c.closers, sqlDB.Close)

	if strings.TrimSpace(c.Config.RedisURL) != "" {
		rdb, err := infraredis.NewRedis(ctx, c.Config.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		c.Redis = rdb
		c.closers = append(c.closers, rdb.Close)
	}

	if strings.EqualFold(strings.TrimSpace(c.Config.RateLimitBackend), "redis") {
		store, err := infraredis.NewRateLimitStore(c.Redis)
		if err != nil {
			return fmt.Errorf("redis rate limit store init failed: %w", err)
		}
		c.rateLimitStore = store
	} else {
		c.MemoryStore = ratelimit.NewMemoryStore()
		c.rateLimitStore = c.MemoryStore
	}
	return nil
}

func (c *Container) openMessaging(ctx context.Context) error {
	c.Bus = events.NewBus(c.Metrics)

	if strings.TrimSpace(c.Config.RabbitMQURL) == "" {
		c.Logger.Info("rabbitmq not configured, message events stay in process")
		return nil
	}

	mq, err := queue.NewRabbitMQ(ctx, c.Config.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	c.closers = append(c.closers, mq.Close)

	c.Broker = mq

	relay, err := queue.NewRelay(c.Bus, queue.NewRabbitMQPublisher(mq), c.Logger)
	if err != nil {
		return err
	}
	c.Relay = relay
	return nil
}

func (c *Container) buildServices() error {
	cfg := c.Config
	phones := identity.NewPhoneNormalizer(cfg.DefaultCountryCode)

	contacts := repository.NewGormContactRepo(c.DB)
	messages := repository.NewGormMessageRepo(c.DB)
	transfers := repository.NewGormTransferRepo(c.DB)
	notifications := repository.NewGormTransferNotificationRepo(c.DB)
	webhooks := repository.NewGormWebhookLogRepo(c.DB)
	c.CronLogs = repository.NewGormCronLogRepo(c.DB)

	resolver, err := identity.NewResolver(contacts, phones, domain.Placement{
		StageID:    cfg.DefaultStageID,
		PipelineID: cfg.DefaultPipelineID,
	}, c.Logger, c.Metrics)
	if err != nil {
		return err
	}

	writer, err := service.NewMessageWriter(messages, resolver, c.Bus, cfg.PersistenceTimeout(), c.Logger)
	if err != nil {
		return err
	}
	writer.SetMetrics(c.Metrics)

	c.Ingestion, err = service.NewIngestionService(writer, webhooks, c.Logger)
	if err != nil {
		return err
	}
	c.Ingestion.SetMetrics(c.Metrics)

	dispatcher, err := service.NewDispatcher(transfers, notifications, c.voiceFlow(), service.DispatcherOptions{
		PublicBaseURL:      cfg.PublicBaseURL,
		Location:           cfg.DeadlineLocation(),
		CallTimeout:        cfg.DispatchTimeout(),
		PersistenceTimeout: cfg.PersistenceTimeout(),
		Phones:             phones,
	}, c.Logger)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(c.Metrics)

	c.Jobs, err = service.NewJobLogger(c.CronLogs, c.Logger)
	if err != nil {
		return err
	}

	c.Escalation, err = service.NewEscalationService(transfers, dispatcher, c.Jobs, cfg.DispatchConcurrency, c.Logger)
	if err != nil {
		return err
	}
	c.Escalation.SetMetrics(c.Metrics)

	c.Confirmation, err = service.NewConfirmationService(transfers, notifications, c.Logger)
	return err
}

func (c *Container) voiceFlow() provider.VoiceFlow {
	flow, err := provider.NewStudioFlowClient(provider.StudioConfig{
		AccountSID: c.Config.TwilioAccountSID,
		AuthToken:  c.Config.TwilioAuthToken,
		FlowSID:    c.Config.TwilioDeadlineFlowSID,
		From:       c.Config.TwilioFromNumber,
	})
	if err != nil {
		c.Logger.Warn("voice flow not configured, escalation calls will fail", zap.Error(err))
		return provider.UnconfiguredFlow{}
	}
	return flow
}

// RegisterRoutes mounts every HTTP endpoint on app.
func (c *Container) RegisterRoutes(app *fiber.App) error {
	cfg := c.Config
	twilioContent := gate.SignedContent(cfg.TwilioSignatureScheme)

	twilioGate, err := c.newGate("twilio", gate.TwilioSignature(cfg.TwilioAuthToken, twilioContent), fiber.StatusUnauthorized)
	if err != nil {
		return err
	}
	whatsappGate, err := c.newGate("whatsapp", gate.WhatsAppSignature(cfg.WhatsAppAppSecret), fiber.StatusForbidden)
	if err != nil {
		return err
	}
	confirmationGate, err := c.newGate("confirmation", gate.TwilioSignature(cfg.TwilioAuthToken, twilioContent), fiber.StatusUnauthorized)
	if err != nil {
		return err
	}

	webhookHandler, err := handler.NewWebhookHandler(c.Ingestion, cfg.WhatsAppVerifyToken, c.Logger)
	if err != nil {
		return err
	}
	cronHandler, err := handler.NewCronHandler(c.Escalation, c.Jobs, cfg.CronAPIToken, c.Logger)
	if err != nil {
		return err
	}
	confirmationHandler, err := handler.NewConfirmationHandler(c.Confirmation, c.Logger)
	if err != nil {
		return err
	}

	handler.RegisterHealthRoutes(app, c.readinessChecks()...)
	handler.RegisterWebhookRoutes(app, webhookHandler, twilioGate.Handler(), whatsappGate.Handler())
	handler.RegisterConfirmationRoutes(app, confirmationHandler, confirmationGate.Handler())
	handler.RegisterCronRoutes(app, cronHandler)
	return nil
}

func (c *Container) readinessChecks() []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{handler.PostgresCheck(c.SQLDB)}
	if c.Redis != nil {
		checks = append(checks, handler.RedisCheck(c.Redis))
	}
	if c.Broker != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "rabbitmq", Optional: true, Check: func(context.Context) error {
			if !c.Broker.Healthy() {
				return errors.New("publishing channel closed")
			}
			return nil
		}})
	}
	return checks
}

func (c *Container) newGate(name string, signature gate.SignatureConfig, authStatus int) (*gate.Gate, error) {
	verifier, err := gate.NewVerifier(signature)
	if err != nil {
		return nil, fmt.Errorf("%s signature verifier: %w", name, err)
	}

	limiter, err := ratelimit.NewLimiter(c.rateLimitStore, ratelimit.Policy{
		Name:          name,
		MaxRequests:   c.Config.WebhookRateLimitMax,
		Window:        c.Config.WebhookRateWindow(),
		BlockDuration: c.Config.WebhookRateBlock(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s rate limiter: %w", name, err)
	}

	return gate.New(gate.Options{
		Verifier:          verifier,
		Limiter:           limiter,
		PublicBaseURL:     c.Config.PublicBaseURL,
		AuthFailureStatus: authStatus,
		Logger:            c.Logger,
		Metrics:           c.Metrics,
	})
}

// Close releases connections in reverse order of opening.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
