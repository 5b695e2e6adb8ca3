package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultStudioBaseURL = "https://studio.twilio.com"
	defaultStudioTimeout = 10 * time.Second
)

// StudioConfig holds Twilio credentials and the flow that places the call.
type StudioConfig struct {
	AccountSID string
	AuthToken  string
	FlowSID    string
	From       string
	// BaseURL overrides the Studio API host, mainly for tests.
	BaseURL string
}

func (c StudioConfig) validate() error {
	switch {
	case strings.TrimSpace(c.AccountSID) == "":
		return fmt.Errorf("twilio account sid is required")
	case strings.TrimSpace(c.AuthToken) == "":
		return fmt.Errorf("twilio auth token is required")
	case strings.TrimSpace(c.FlowSID) == "":
		return fmt.Errorf("studio flow sid is required")
	case strings.TrimSpace(c.From) == "":
		return fmt.Errorf("studio from number is required")
	}
	return nil
}

type studioExecutionResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type studioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// StudioFlowClient starts Twilio Studio flow executions.
type StudioFlowClient struct {
	client   *resty.Client
	endpoint string
	from     string
}

func NewStudioFlowClient(cfg StudioConfig) (*StudioFlowClient, error) {
	client := resty.New()
	client.SetTimeout(defaultStudioTimeout)
	client.SetRetryCount(0)

	return NewStudioFlowClientWithClient(cfg, client)
}

func NewStudioFlowClientWithClient(cfg StudioConfig, client *resty.Client) (*StudioFlowClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultStudioBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid studio base url: %w", err)
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultStudioTimeout)
	}
	client.SetRetryCount(0)
	client.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	return &StudioFlowClient{
		client:   client,
		endpoint: fmt.Sprintf("%s/v2/Flows/%s/Executions", baseURL, url.PathEscape(cfg.FlowSID)),
		from:     cfg.From,
	}, nil
}

func (c *StudioFlowClient) StartExecution(ctx context.Context, req FlowRequest) (*FlowExecution, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("studio client is not initialized")
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, &ProviderError{Message: "destination number is required"}
	}

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow parameters: %w", err)
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":         req.To,
			"From":       c.from,
			"Parameters": string(params),
		}).
		Post(c.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "studio request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{Message: "studio returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		var body studioExecutionResponse
		if err := json.Unmarshal(response.Body(), &body); err != nil {
			return nil, &ProviderError{StatusCode: statusCode, Message: "invalid studio response", Cause: err}
		}
		if body.SID == "" {
			return nil, &ProviderError{StatusCode: statusCode, Message: "studio response without execution sid"}
		}
		return &FlowExecution{SID: body.SID, Status: body.Status, StatusCode: statusCode}, nil
	}

	providerErr := &ProviderError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("studio returned status %d", statusCode),
		Transient:  isTransientHTTPStatus(statusCode),
	}
	var body studioErrorResponse
	if err := json.Unmarshal(response.Body(), &body); err == nil && body.Message != "" {
		providerErr.Code = body.Code
		providerErr.Message = body.Message
	}
	return nil, providerErr
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
