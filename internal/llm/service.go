package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"llm-chat-proxy/internal/metrics"
	"llm-chat-proxy/pkg/utils"
)

const (
	// statusResponseReceivedBelow separates "the upstream answered, possibly
	// rejecting the request" (below) from "the upstream failed" (at or above).
	// Both sides still count as a received response, never a transport failure.
	statusResponseReceivedBelow = http.StatusInternalServerError

	// statusErrorFrom is the first status converted into an UpstreamError.
	statusErrorFrom = http.StatusBadRequest

	// maxResponseBody bounds how much of an upstream body is read.
	maxResponseBody = 4 << 20
)

const (
	// TestPrompt is sent by TestConnection.
	TestPrompt = "Hello, this is a connection test."

	testMaxTokens     = 10
	testPreviewLength = 100
)

// ConfigSource provides the current LLM configuration.
type ConfigSource interface {
	Config() LLMConfig
}

// CompletionRequest is a single prompt to complete. Zero or nil fields fall
// back to the configured defaults.
type CompletionRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// CompletionResult is the normalised upstream response.
type CompletionResult struct {
	ID          string `json:"id"`
	Model       string `json:"model"`
	Text        string `json:"text"`
	TotalTokens *int   `json:"totalTokens,omitempty"`
	// RequestID is the X-Request-ID sent upstream.
	RequestID string   `json:"requestId"`
	Choices   []Choice `json:"-"`
}

// ValidationResult lists every rule a CompletionRequest violates.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ConnectionTestResult is the outcome of TestConnection.
type ConnectionTestResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Response       string `json:"response,omitempty"`
	ResponseTimeMs *int64 `json:"responseTimeMs,omitempty"`
}

// upstreamRequest is the JSON body sent to the configured endpoint.
type upstreamRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Service relays completion requests to the configured LLM endpoint. It holds
// no per-request state and is safe for concurrent use.
type Service struct {
	config     ConfigSource
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithHTTPClient sets the client used for outbound calls.
func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a gateway reading its settings from config.
func NewService(config ConfigSource, opts ...ServiceOption) *Service {
	s := &Service{
		config:     config,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateRequest checks req without any I/O and reports every violated rule.
func (s *Service) ValidateRequest(req CompletionRequest) ValidationResult {
	verr := validateRequest(req)
	return ValidationResult{Valid: len(verr.Errors) == 0, Errors: verr.Errors}
}

func validateRequest(req CompletionRequest) *ValidationError {
	verr := &ValidationError{Errors: []string{}}
	if strings.TrimSpace(req.Prompt) == "" {
		verr.add("prompt", "prompt is required")
	}
	if utf8.RuneCountInString(req.Prompt) > MaxPromptLength {
		verr.add("prompt", fmt.Sprintf("prompt must be at most %d characters", MaxPromptLength))
	}
	if req.MaxTokens != nil && !validMaxTokens(*req.MaxTokens) {
		verr.add("max_tokens", maxTokensMessage("max_tokens"))
	}
	if req.Temperature != nil && !validTemperature(*req.Temperature) {
		verr.add("temperature", temperatureMessage("temperature"))
	}
	return verr
}

// SendChatCompletion merges req over the stored configuration and performs
// one outbound completion call bounded by the configured timeout.
func (s *Service) SendChatCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	cfg := s.config.Config()
	payload := mergeRequest(req, cfg)
	start := s.now()

	result, err := s.sendChatCompletion(ctx, req, cfg, payload)

	outcome := outcomeOf(err)
	metrics.CompletionsTotal.WithLabelValues(outcome).Inc()
	if outcome != metrics.OutcomeValidation && outcome != metrics.OutcomeConfiguration {
		metrics.CompletionLatency.WithLabelValues(payload.Model, outcome).Observe(s.now().Sub(start).Seconds())
	}

	if err != nil {
		s.logger.Warn("llm completion failed", "model", payload.Model, "outcome", outcome, "error", err)
		return nil, err
	}

	if result.TotalTokens != nil {
		metrics.TokensTotal.WithLabelValues(result.Model).Add(float64(*result.TotalTokens))
	}
	if cfg.EnableLogging {
		s.logger.Info("llm completion",
			"request_id", result.RequestID,
			"model", result.Model,
			"latency_ms", s.now().Sub(start).Milliseconds(),
			"choices", len(result.Choices))
	}
	return result, nil
}

func (s *Service) sendChatCompletion(ctx context.Context, req CompletionRequest, cfg LLMConfig, payload upstreamRequest) (*CompletionResult, error) {
	if verr := validateRequest(req); len(verr.Errors) > 0 {
		return nil, verr
	}
	if missing := missingFields(cfg); len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}
	if TokenExpired(cfg.AuthToken, s.now()) {
		s.logger.Warn("llm auth token has expired", "token", cfg.Masked().AuthToken)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RequestTimeoutMs)*time.Millisecond)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("create request: %w", err)}
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	httpReq.Header.Set("X-Request-ID", requestID)

	metrics.ActiveCompletions.Inc()
	defer metrics.ActiveCompletions.Dec()

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &NetworkError{Err: err}
		}
		return nil, &RequestError{Err: fmt.Errorf("read response: %w", err)}
	}

	if cfg.EnableLogging {
		s.logger.Info("llm upstream response", "request_id", requestID, "status", resp.StatusCode)
	}

	if resp.StatusCode >= statusErrorFrom {
		metrics.UpstreamStatusTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(resp.StatusCode, respBody),
		}
	}

	var decoded completionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &RequestError{Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &CompletionResult{
		ID:        decoded.ID,
		Model:     decoded.Model,
		RequestID: requestID,
		Choices:   decoded.Choices,
	}
	if result.ID == "" {
		result.ID = "cmpl-" + uuid.New().String()
	}
	if result.Model == "" {
		result.Model = payload.Model
	}
	if text, err := firstChoiceText(decoded.Choices); err == nil {
		result.Text = text
	}
	if decoded.Usage != nil {
		total := decoded.Usage.TotalTokens
		result.TotalTokens = &total
	}

	return result, nil
}

// SendCompletion completes prompt and returns the text of the first choice.
func (s *Service) SendCompletion(ctx context.Context, prompt string, maxTokens *int) (string, error) {
	result, err := s.SendChatCompletion(ctx, CompletionRequest{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}

	text, err := firstChoiceText(result.Choices)
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues(metrics.OutcomeNoResponse).Inc()
		return "", &NoResponseError{Err: err}
	}
	return text, nil
}

// TestConnection sends a short fixed prompt and reports latency and a preview
// of the reply. It never returns an error; failures are described in the result.
func (s *Service) TestConnection(ctx context.Context) ConnectionTestResult {
	start := s.now()
	maxTokens := testMaxTokens

	text, err := s.SendCompletion(ctx, TestPrompt, &maxTokens)
	elapsed := s.now().Sub(start).Milliseconds()
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: "Connection test failed: " + err.Error(),
		}
	}

	preview := utils.Truncate(text, testPreviewLength)
	return ConnectionTestResult{
		Success:        true,
		Message:        fmt.Sprintf("Connection successful (%d ms)", elapsed),
		Response:       preview,
		ResponseTimeMs: &elapsed,
	}
}

// mergeRequest applies req over the configured defaults. Request fields win
// when present.
func mergeRequest(req CompletionRequest, cfg LLMConfig) upstreamRequest {
	out := upstreamRequest{
		Model:       cfg.DefaultModel,
		Prompt:      req.Prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		out.Model = model
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	return out
}

// outcomeOf maps an error from the gateway to a metrics outcome label.
func outcomeOf(err error) string {
	var (
		verr *ValidationError
		cerr *ConfigurationError
		uerr *UpstreamError
		nerr *NetworkError
		rerr *NoResponseError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &verr):
		return metrics.OutcomeValidation
	case errors.As(err, &cerr):
		return metrics.OutcomeConfiguration
	case errors.As(err, &uerr):
		return metrics.OutcomeUpstream
	case errors.As(err, &nerr):
		return metrics.OutcomeNetwork
	case errors.As(err, &rerr):
		return metrics.OutcomeNoResponse
	default:
		return metrics.OutcomeRequest
	}
}
