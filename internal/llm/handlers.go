package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"llm-chat-proxy/internal/metrics"
)

// timestampLayout is used for every timestamp the proxy emits.
const timestampLayout = time.RFC3339

// maxRequestBody bounds the size of JSON bodies accepted by the handlers.
const maxRequestBody = 1 << 20

// ConfigManager is the configuration surface used by the HTTP handlers.
type ConfigManager interface {
	ConfigSource
	Masked() MaskedConfig
	Status() ConfigStatus
	Update(ConfigUpdate) error
	SetAPIConfig(url, token string) error
	Reset() error
}

// ServerState holds the dependencies of the /api handlers.
type ServerState struct {
	Store   ConfigManager
	Service *Service
	now     func() time.Time
}

// NewServerState creates the handler state for store and service.
func NewServerState(store ConfigManager, service *Service) *ServerState {
	return &ServerState{
		Store:   store,
		Service: service,
		now:     time.Now,
	}
}

// SetAPIRequest is the body of POST /api/config/api.
type SetAPIRequest struct {
	APIURL   string `json:"apiUrl"`
	APIToken string `json:"apiToken"`
}

// SimpleRequest is the body of POST /api/chat/simple.
type SimpleRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens *int   `json:"maxTokens,omitempty"`
}

// RegisterHandlers registers the configuration and chat handlers on r.
func (s *ServerState) RegisterHandlers(r chi.Router) {
	r.Route("/api/config", func(r chi.Router) {
		r.Get("/", s.HandleGetConfig)
		r.Post("/", s.HandleUpdateConfig)
		r.Post("/api", s.HandleSetAPIConfig)
		r.Get("/status", s.HandleConfigStatus)
		r.Post("/reset", s.HandleResetConfig)
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/completion", s.HandleChatCompletion)
		r.Post("/simple", s.HandleSimpleChat)
		r.Post("/test", s.HandleTestConnection)
	})
}

// HandleGetConfig returns the masked configuration and its status.
func (s *ServerState) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  s.Store.Masked(),
		"status":  s.Store.Status(),
	})
}

// HandleUpdateConfig merges a partial configuration.
func (s *ServerState) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var update ConfigUpdate
	if !s.decodeBody(w, r, &update) {
		return
	}

	if err := s.Store.Update(update); err != nil {
		metrics.ConfigWritesTotal.WithLabelValues("update", "error").Inc()
		s.writeConfigError(w, err, "Failed to update configuration")
		return
	}
	metrics.ConfigWritesTotal.WithLabelValues("update", "ok").Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Configuration updated",
		"config":  s.Store.Masked(),
	})
}

// HandleSetAPIConfig sets the endpoint URL and token together.
func (s *ServerState) HandleSetAPIConfig(w http.ResponseWriter, r *http.Request) {
	var req SetAPIRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.APIURL) == "" || strings.TrimSpace(req.APIToken) == "" {
		s.writeError(w, http.StatusBadRequest, "Missing required fields", "apiUrl and apiToken are required", nil)
		return
	}

	if err := s.Store.SetAPIConfig(req.APIURL, req.APIToken); err != nil {
		metrics.ConfigWritesTotal.WithLabelValues("set_api", "error").Inc()
		s.writeConfigError(w, err, "Failed to save API configuration")
		return
	}
	metrics.ConfigWritesTotal.WithLabelValues("set_api", "ok").Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "API configuration saved",
	})
}

// HandleConfigStatus reports whether the proxy is ready to relay completions.
func (s *ServerState) HandleConfigStatus(w http.ResponseWriter, r *http.Request) {
	status := s.Store.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"configured":    status.Configured,
		"missingFields": status.MissingFields,
	})
}

// HandleResetConfig restores the default configuration.
func (s *ServerState) HandleResetConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Reset(); err != nil {
		metrics.ConfigWritesTotal.WithLabelValues("reset", "error").Inc()
		s.writeError(w, http.StatusInternalServerError, "Failed to reset configuration", err.Error(), nil)
		return
	}
	metrics.ConfigWritesTotal.WithLabelValues("reset", "ok").Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Configuration reset to defaults",
		"config":  s.Store.Masked(),
	})
}

// HandleChatCompletion validates and relays a completion request.
func (s *ServerState) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if v := s.Service.ValidateRequest(req); !v.Valid {
		metrics.CompletionsTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		s.writeValidationFailure(w, v.Errors)
		return
	}

	result, err := s.Service.SendChatCompletion(r.Context(), req)
	if err != nil {
		s.writeCompletionError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// HandleSimpleChat relays a prompt and returns only the generated text.
func (s *ServerState) HandleSimpleChat(w http.ResponseWriter, r *http.Request) {
	var req SimpleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if v := s.Service.ValidateRequest(CompletionRequest{Prompt: req.Prompt, MaxTokens: req.MaxTokens}); !v.Valid {
		metrics.CompletionsTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		s.writeValidationFailure(w, v.Errors)
		return
	}

	text, err := s.Service.SendCompletion(r.Context(), req.Prompt, req.MaxTokens)
	if err != nil {
		s.writeCompletionError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": text,
	})
}

// HandleTestConnection performs a short round trip to the configured endpoint.
func (s *ServerState) HandleTestConnection(w http.ResponseWriter, r *http.Request) {
	result := s.Service.TestConnection(r.Context())

	body := map[string]any{
		"success": result.Success,
		"message": result.Message,
	}
	if result.ResponseTimeMs != nil {
		body["responseTimeMs"] = *result.ResponseTimeMs
	}
	if result.Response != "" {
		body["response"] = result.Response
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, body)
}

// decodeBody decodes a JSON request body into v, writing a 400 response and
// returning false when the body is malformed.
func (s *ServerState) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return false
	}
	return true
}

func (s *ServerState) writeConfigError(w http.ResponseWriter, err error, label string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, "Validation failed", verr.Error(), map[string]any{
			"fields":  verr.Fields,
			"details": verr.Errors,
		})
		return
	}
	s.writeError(w, http.StatusInternalServerError, label, err.Error(), nil)
}

func (s *ServerState) writeValidationFailure(w http.ResponseWriter, errs []string) {
	s.writeError(w, http.StatusBadRequest, "Validation failed", strings.Join(errs, "; "), map[string]any{
		"details": errs,
	})
}

// writeCompletionError maps a classified gateway error to an HTTP response.
func (s *ServerState) writeCompletionError(w http.ResponseWriter, err error) {
	var (
		verr *ValidationError
		cerr *ConfigurationError
		uerr *UpstreamError
		nerr *NetworkError
		rerr *NoResponseError
	)
	switch {
	case errors.As(err, &verr):
		s.writeValidationFailure(w, verr.Errors)
	case errors.As(err, &cerr):
		s.writeError(w, http.StatusInternalServerError, "Configuration error", cerr.Error(), map[string]any{
			"missingFields": cerr.Missing,
		})
	case errors.As(err, &uerr):
		s.writeError(w, http.StatusInternalServerError, "Upstream error", uerr.Error(), map[string]any{
			"upstreamStatus": uerr.StatusCode,
		})
	case errors.As(err, &nerr):
		s.writeError(w, http.StatusInternalServerError, "Network error", nerr.Error(), nil)
	case errors.As(err, &rerr):
		s.writeError(w, http.StatusInternalServerError, "No response", rerr.Error(), nil)
	default:
		s.writeError(w, http.StatusInternalServerError, "Request failed", err.Error(), nil)
	}
}

// writeError writes a JSON error response.
func (s *ServerState) writeError(w http.ResponseWriter, status int, label, message string, extra map[string]any) {
	body := map[string]any{
		"error":   label,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	s.writeJSON(w, status, body)
}

// writeJSON stamps body with the current time and writes it.
func (s *ServerState) writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	body["timestamp"] = s.now().UTC().Format(timestampLayout)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
