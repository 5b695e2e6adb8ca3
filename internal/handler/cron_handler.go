package handler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/service"
	"go.uber.org/zap"
)

const (
	headerGitHubRunID  = "X-GitHub-Run-Id"
	headerExternalCron = "X-External-Cron"
	headerCronServer   = "X-Cron-Server"

	bearerPrefix = "Bearer "
)

type DeadlineScanner interface {
	RunDeadlineScan(ctx context.Context, source domain.TriggerSource) (service.ScanSummary, error)
}

// TriggerAuditor records rejected trigger attempts.
type TriggerAuditor interface {
	Unauthorized(ctx context.Context, jobName, jobType string, source domain.TriggerSource) error
}

type CronHandler struct {
	scanner DeadlineScanner
	auditor TriggerAuditor
	token   string
	logger  *zap.Logger
}

func NewCronHandler(scanner DeadlineScanner, auditor TriggerAuditor, token string, logger *zap.Logger) (*CronHandler, error) {
	if scanner == nil {
		return nil, fmt.Errorf("deadline scanner is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("trigger auditor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronHandler{scanner: scanner, auditor: auditor, token: token, logger: logger}, nil
}

func RegisterCronRoutes(router fiber.Router, h *CronHandler) {
	cron := router.Group("/v1/cron")
	cron.Get("/deadline-check", h.DeadlineCheck)
	cron.Post("/deadline-check", h.DeadlineCheck)
}

func (h *CronHandler) DeadlineCheck(c *fiber.Ctx) error {
	ctx := c.UserContext()
	logger := observability.WithContextLogger(h.logger, ctx)
	source := triggerSource(c)

	if !h.authorized(c) {
		if err := h.auditor.Unauthorized(ctx, domain.DeadlineJobName, domain.DeadlineJobType, source); err != nil {
			logger.Error("failed to record unauthorized trigger", zap.Error(err))
		}
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	summary, err := h.scanner.RunDeadlineScan(ctx, source)
	body := fiber.Map{
		"success":      err == nil,
		"processed":    summary.Counts.Processed,
		"successful":   summary.Counts.Succeeded,
		"failed":       summary.Counts.Failed,
		"skipped":      summary.Counts.Skipped,
		"cron_log_id":  summary.CronLogID,
		"triggered_by": summary.TriggeredBy,
		"duration_ms":  summary.Duration.Milliseconds(),
	}
	if err != nil {
		logger.Error("deadline check failed", zap.String("triggeredBy", source.Name), zap.Error(err))
		body["error"] = err.Error()
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}

	return c.Status(fiber.StatusOK).JSON(body)
}

// authorized fails closed when no token is configured.
func (h *CronHandler) authorized(c *fiber.Ctx) bool {
	if h.token == "" {
		return false
	}

	presented := c.Query("token")
	if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, bearerPrefix) {
		presented = strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.token)) == 1
}

func triggerSource(c *fiber.Ctx) domain.TriggerSource {
	metadata := map[string]any{}
	if ip := c.IP(); ip != "" {
		metadata["ip"] = ip
	}
	if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
		metadata["user_agent"] = ua
	}

	runID := c.Get(headerGitHubRunID, c.Query("github_run_id"))
	if runID != "" {
		metadata["github_run_id"] = runID
		return domain.TriggerSource{Name: "github_actions", Metadata: metadata}
	}

	if external := strings.TrimSpace(c.Get(headerExternalCron)); external != "" {
		if server := c.Get(headerCronServer); server != "" {
			metadata["cron_server"] = server
		}
		return domain.TriggerSource{Name: "external_" + external, Metadata: metadata}
	}

	return domain.TriggerSource{Name: "manual", Metadata: metadata}
}
