package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	RateLimitBackend     string `env:"RATE_LIMIT_BACKEND,default=memory"`
	WebhookRateLimitMax  int    `env:"WEBHOOK_RATE_LIMIT_MAX,default=100"`
	WebhookRateWindowSec int    `env:"WEBHOOK_RATE_LIMIT_WINDOW_SEC,default=60"`
	WebhookRateBlockSec  int    `env:"WEBHOOK_RATE_LIMIT_BLOCK_SEC,default=60"`

	TwilioAccountSID      string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken       string `env:"TWILIO_AUTH_TOKEN"`
	TwilioSignatureScheme string `env:"TWILIO_SIGNATURE_SCHEME,default=raw_body"`
	TwilioDeadlineFlowSID string `env:"TWILIO_DEADLINE_FLOW_SID"`
	TwilioFromNumber      string `env:"TWILIO_FROM_NUMBER"`
	WhatsAppAppSecret     string `env:"WHATSAPP_APP_SECRET"`
	WhatsAppVerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"`
	CronAPIToken          string `env:"CRON_API_TOKEN"`
	PublicBaseURL         string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`

	DefaultStageID     string `env:"DEFAULT_STAGE_ID"`
	DefaultPipelineID  string `env:"DEFAULT_PIPELINE_ID"`
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE,default=90"`
	DeadlineTimezone   string `env:"DEADLINE_TIMEZONE,default=Europe/Istanbul"`

	DeadlineScanIntervalSec int `env:"DEADLINE_SCAN_INTERVAL_SEC,default=0"`
	DispatchTimeoutSec      int `env:"DISPATCH_TIMEOUT_SEC,default=15"`
	DispatchConcurrency     int `env:"DISPATCH_CONCURRENCY,default=4"`
	PersistenceTimeoutSec   int `env:"PERSISTENCE_TIMEOUT_SEC,default=5"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimitBackend)) {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}

	switch c.TwilioSignatureScheme {
	case "raw_body", "url_params":
	default:
		return fmt.Errorf("invalid TWILIO_SIGNATURE_SCHEME %q", c.TwilioSignatureScheme)
	}

	if _, err := time.LoadLocation(c.DeadlineTimezone); err != nil {
		return fmt.Errorf("invalid DEADLINE_TIMEZONE %q: %w", c.DeadlineTimezone, err)
	}
	return nil
}

func (c *Config) WebhookRateWindow() time.Duration {
	return time.Duration(c.WebhookRateWindowSec) * time.Second
}

func (c *Config) WebhookRateBlock() time.Duration {
	return time.Duration(c.WebhookRateBlockSec) * time.Second
}

func (c *Config) DeadlineScanInterval() time.Duration {
	return time.Duration(c.DeadlineScanIntervalSec) * time.Second
}

func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSec) * time.Second
}

func (c *Config) PersistenceTimeout() time.Duration {
	return time.Duration(c.PersistenceTimeoutSec) * time.Second
}

// DeadlineLocation is the zone deadlines are rendered in for voice prompts.
func (c *Config) DeadlineLocation() *time.Location {
	loc, err := time.LoadLocation(c.DeadlineTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
