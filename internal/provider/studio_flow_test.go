package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func testStudioConfig(baseURL string) StudioConfig {
	return StudioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		FlowSID:    "FW456",
		From:       "+14155550100",
		BaseURL:    baseURL,
	}
}

func TestStudioFlowClientStartExecutionSuccess(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotUser   string
		gotPass   string
		gotTo     string
		gotFrom   string
		gotParams FlowParameters
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()

		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotFrom = r.PostForm.Get("From")
		if err := json.Unmarshal([]byte(r.PostForm.Get("Parameters")), &gotParams); err != nil {
			t.Errorf("Parameters is not json: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"FN789","status":"active"}`))
	}))
	defer server.Close()

	c, err := NewStudioFlowClient(testStudioConfig(server.URL))
	if err != nil {
		t.Fatalf("NewStudioFlowClient() error = %v", err)
	}

	exec, err := c.StartExecution(context.Background(), FlowRequest{
		To: "+905321234567",
		Parameters: FlowParameters{
			TransferID:   "t-1",
			PatientName:  "Patient",
			AgencyName:   "Fast Ambulance",
			DeadlineTime: "01.03.2026 13:00",
			WebhookURL:   "https://crm.example.com/v1/webhooks/deadline-confirmation",
		},
	})
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}

	if exec.SID != "FN789" {
		t.Fatalf("SID = %q, want FN789", exec.SID)
	}
	if gotPath != "/v2/Flows/FW456/Executions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Fatalf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotTo != "+905321234567" || gotFrom != "+14155550100" {
		t.Fatalf("To/From = %q/%q", gotTo, gotFrom)
	}
	if gotParams.TransferID != "t-1" || gotParams.AgencyName != "Fast Ambulance" {
		t.Fatalf("parameters = %+v", gotParams)
	}
}

func TestStudioFlowClientStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		body          string
		wantTransient bool
		wantCode      int
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "server error is transient", statusCode: http.StatusBadGateway, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, body: `{"code":21211,"message":"Invalid 'To' Phone Number"}`, wantCode: 21211},
		{name: "not found is permanent", statusCode: http.StatusNotFound, body: `{"code":20404,"message":"Flow not found"}`, wantCode: 20404},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c, err := NewStudioFlowClient(testStudioConfig(server.URL))
			if err != nil {
				t.Fatalf("NewStudioFlowClient() error = %v", err)
			}

			_, err = c.StartExecution(context.Background(), FlowRequest{To: "+905321234567"})
			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("error = %v, want *ProviderError", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
			if providerErr.Transient != tc.wantTransient {
				t.Fatalf("Transient = %v, want %v", providerErr.Transient, tc.wantTransient)
			}
			if providerErr.Code != tc.wantCode {
				t.Fatalf("Code = %d, want %d", providerErr.Code, tc.wantCode)
			}
		})
	}
}

func TestStudioFlowClientTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c, err := NewStudioFlowClientWithClient(testStudioConfig(server.URL), resty.New())
	if err != nil {
		t.Fatalf("NewStudioFlowClientWithClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.StartExecution(ctx, FlowRequest{To: "+905321234567"})
	if err == nil {
		t.Fatal("StartExecution() error = nil, want timeout")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient(%v) = false, want true", err)
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false, want true", err)
	}
}

func TestStudioFlowClientRejectsMissingSID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"active"}`))
	}))
	defer server.Close()

	c, err := NewStudioFlowClient(testStudioConfig(server.URL))
	if err != nil {
		t.Fatalf("NewStudioFlowClient() error = %v", err)
	}
	if _, err := c.StartExecution(context.Background(), FlowRequest{To: "+905321234567"}); err == nil {
		t.Fatal("StartExecution() error = nil, want missing sid error")
	}
}

func TestNewStudioFlowClientValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*StudioConfig)
	}{
		{name: "missing account", mutate: func(c *StudioConfig) { c.AccountSID = "" }},
		{name: "missing token", mutate: func(c *StudioConfig) { c.AuthToken = " " }},
		{name: "missing flow", mutate: func(c *StudioConfig) { c.FlowSID = "" }},
		{name: "missing from", mutate: func(c *StudioConfig) { c.From = "" }},
		{name: "bad base url", mutate: func(c *StudioConfig) { c.BaseURL = "::not a url" }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testStudioConfig("")
			tc.mutate(&cfg)
			if _, err := NewStudioFlowClient(cfg); err == nil {
				t.Fatal("NewStudioFlowClient() error = nil, want error")
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ProviderError{StatusCode: 400, Code: 21211, Message: "Invalid 'To' Phone Number"}
	want := "provider error: status=400: code=21211: Invalid 'To' Phone Number"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestUnconfiguredFlowRejects(t *testing.T) {
	t.Parallel()

	_, err := UnconfiguredFlow{}.StartExecution(context.Background(), FlowRequest{To: "+905321234567"})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if IsTransient(err) {
		t.Fatal("unconfigured flow error should be permanent")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{name: "nil", err: nil, want: FailureNone},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: FailureTimeout},
		{name: "canceled", err: context.Canceled, want: FailureCanceled},
		{name: "transient provider", err: &ProviderError{StatusCode: 503, Transient: true}, want: FailureTransient},
		{name: "permanent provider", err: &ProviderError{StatusCode: 400}, want: FailurePermanent},
		{name: "plain error", err: errors.New("boom"), want: FailurePermanent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
