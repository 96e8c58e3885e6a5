package llm

import (
	"fmt"
	"strings"

	"llm-chat-proxy/pkg/utils"
)

// Bounds for LLMConfig and CompletionRequest fields.
const (
	MinMaxTokens        = 1
	MaxMaxTokens        = 4000
	MinTemperature      = 0.0
	MaxTemperature      = 2.0
	MinRequestTimeoutMs = 1000
	MaxRequestTimeoutMs = 120000
	MaxPromptLength     = 10000
)

// Defaults applied when neither the persisted file nor the environment
// provides a value.
const (
	DefaultModel            = "gpt-3.5-turbo"
	DefaultMaxTokens        = 150
	DefaultTemperature      = 0.7
	DefaultRequestTimeoutMs = 30000
)

// Environment variables consulted by DefaultsFromEnv.
const (
	EnvAPIURL           = "LLM_API_URL"
	EnvAPIToken         = "LLM_API_TOKEN"
	EnvDefaultModel     = "LLM_DEFAULT_MODEL"
	EnvMaxTokens        = "LLM_MAX_TOKENS"
	EnvTemperature      = "LLM_TEMPERATURE"
	EnvRequestTimeoutMs = "LLM_REQUEST_TIMEOUT_MS"
	EnvEnableLogging    = "LLM_ENABLE_LOGGING"
)

// Field names as they appear on the wire and in validation messages.
const (
	FieldEndpointURL      = "endpointUrl"
	FieldAuthToken        = "authToken"
	FieldDefaultModel     = "defaultModel"
	FieldMaxTokens        = "maxTokens"
	FieldTemperature      = "temperature"
	FieldRequestTimeoutMs = "requestTimeoutMs"
	FieldEnableLogging    = "enableLogging"
)

// NotConfigured is shown in masked views in place of an empty URL or token.
const NotConfigured = "not configured"

// maskVisiblePrefix is the number of token characters kept by Masked.
const maskVisiblePrefix = 8

// LLMConfig holds the persisted LLM settings.
type LLMConfig struct {
	EndpointURL      string  `json:"endpointUrl" yaml:"endpointUrl"`
	AuthToken        string  `json:"authToken" yaml:"authToken"`
	DefaultModel     string  `json:"defaultModel" yaml:"defaultModel"`
	MaxTokens        int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	RequestTimeoutMs int     `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	EnableLogging    bool    `json:"enableLogging" yaml:"enableLogging"`
}

// ConfigUpdate is a partial LLMConfig. Nil fields are left untouched.
type ConfigUpdate struct {
	EndpointURL      *string  `json:"endpointUrl,omitempty"`
	AuthToken        *string  `json:"authToken,omitempty"`
	DefaultModel     *string  `json:"defaultModel,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	RequestTimeoutMs *int     `json:"requestTimeoutMs,omitempty"`
	EnableLogging    *bool    `json:"enableLogging,omitempty"`
}

// MaskedConfig is an LLMConfig that is safe to display or log.
type MaskedConfig struct {
	EndpointURL      string  `json:"endpointUrl" yaml:"endpointUrl"`
	AuthToken        string  `json:"authToken" yaml:"authToken"`
	DefaultModel     string  `json:"defaultModel" yaml:"defaultModel"`
	MaxTokens        int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	RequestTimeoutMs int     `json:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	EnableLogging    bool    `json:"enableLogging" yaml:"enableLogging"`
	// TokenExpiresAt is set when the token is a JWT carrying an exp claim.
	TokenExpiresAt string `json:"tokenExpiresAt,omitempty" yaml:"tokenExpiresAt,omitempty"`
}

// ConfigStatus reports whether the settings required for a completion are present.
type ConfigStatus struct {
	Configured    bool     `json:"configured" yaml:"configured"`
	MissingFields []string `json:"missingFields" yaml:"missingFields"`
}

// DefaultsFromEnv resolves the default configuration from an environment
// snapshot. Values that do not parse or fall outside their bounds are
// ignored so the result always validates.
func DefaultsFromEnv(getenv func(string) string) LLMConfig {
	cfg := LLMConfig{
		EndpointURL:      strings.TrimSpace(getenv(EnvAPIURL)),
		AuthToken:        strings.TrimSpace(getenv(EnvAPIToken)),
		DefaultModel:     DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		Temperature:      DefaultTemperature,
		RequestTimeoutMs: DefaultRequestTimeoutMs,
	}

	if !validURL(cfg.EndpointURL) {
		cfg.EndpointURL = ""
	}
	if model := strings.TrimSpace(getenv(EnvDefaultModel)); model != "" {
		cfg.DefaultModel = model
	}
	if v, ok := utils.LookupInt(getenv, EnvMaxTokens); ok && validMaxTokens(v) {
		cfg.MaxTokens = v
	}
	if v, ok := utils.LookupFloat(getenv, EnvTemperature); ok && validTemperature(v) {
		cfg.Temperature = v
	}
	if v, ok := utils.LookupInt(getenv, EnvRequestTimeoutMs); ok && validTimeout(v) {
		cfg.RequestTimeoutMs = v
	}
	if v, ok := utils.LookupBool(getenv, EnvEnableLogging); ok {
		cfg.EnableLogging = v
	}

	return cfg
}

// Validate checks every bound of the configuration.
func (c LLMConfig) Validate() error {
	verr := &ValidationError{}
	if !validURL(c.EndpointURL) {
		verr.add(FieldEndpointURL, "endpointUrl must start with http:// or https://")
	}
	if !validMaxTokens(c.MaxTokens) {
		verr.add(FieldMaxTokens, maxTokensMessage(FieldMaxTokens))
	}
	if !validTemperature(c.Temperature) {
		verr.add(FieldTemperature, temperatureMessage(FieldTemperature))
	}
	if !validTimeout(c.RequestTimeoutMs) {
		verr.add(FieldRequestTimeoutMs, fmt.Sprintf("requestTimeoutMs must be between %d and %d",
			MinRequestTimeoutMs, MaxRequestTimeoutMs))
	}
	return verr.errOrNil()
}

// Validate checks every present field of the update against its bound.
func (u ConfigUpdate) Validate() error {
	verr := &ValidationError{}
	if u.EndpointURL != nil && !validURL(strings.TrimSpace(*u.EndpointURL)) {
		verr.add(FieldEndpointURL, "endpointUrl must start with http:// or https://")
	}
	if u.DefaultModel != nil && strings.TrimSpace(*u.DefaultModel) == "" {
		verr.add(FieldDefaultModel, "defaultModel must not be empty")
	}
	if u.MaxTokens != nil && !validMaxTokens(*u.MaxTokens) {
		verr.add(FieldMaxTokens, maxTokensMessage(FieldMaxTokens))
	}
	if u.Temperature != nil && !validTemperature(*u.Temperature) {
		verr.add(FieldTemperature, temperatureMessage(FieldTemperature))
	}
	if u.RequestTimeoutMs != nil && !validTimeout(*u.RequestTimeoutMs) {
		verr.add(FieldRequestTimeoutMs, fmt.Sprintf("requestTimeoutMs must be between %d and %d",
			MinRequestTimeoutMs, MaxRequestTimeoutMs))
	}
	return verr.errOrNil()
}

// apply merges the present fields of u over c.
func (u ConfigUpdate) apply(c LLMConfig) LLMConfig {
	if u.EndpointURL != nil {
		c.EndpointURL = strings.TrimSpace(*u.EndpointURL)
	}
	if u.AuthToken != nil {
		c.AuthToken = strings.TrimSpace(*u.AuthToken)
	}
	if u.DefaultModel != nil {
		c.DefaultModel = strings.TrimSpace(*u.DefaultModel)
	}
	if u.MaxTokens != nil {
		c.MaxTokens = *u.MaxTokens
	}
	if u.Temperature != nil {
		c.Temperature = *u.Temperature
	}
	if u.RequestTimeoutMs != nil {
		c.RequestTimeoutMs = *u.RequestTimeoutMs
	}
	if u.EnableLogging != nil {
		c.EnableLogging = *u.EnableLogging
	}
	return c
}

// Masked returns a display-safe view of c.
func (c LLMConfig) Masked() MaskedConfig {
	m := MaskedConfig{
		EndpointURL:      c.EndpointURL,
		AuthToken:        utils.MaskToken(c.AuthToken, maskVisiblePrefix),
		DefaultModel:     c.DefaultModel,
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		RequestTimeoutMs: c.RequestTimeoutMs,
		EnableLogging:    c.EnableLogging,
	}
	if m.EndpointURL == "" {
		m.EndpointURL = NotConfigured
	}
	if m.AuthToken == "" {
		m.AuthToken = NotConfigured
	}
	if exp, ok := TokenExpiry(c.AuthToken); ok {
		m.TokenExpiresAt = exp.UTC().Format(timestampLayout)
	}
	return m
}

// Status reports which of the required fields are missing.
func (c LLMConfig) Status() ConfigStatus {
	missing := missingFields(c)
	return ConfigStatus{
		Configured:    len(missing) == 0,
		MissingFields: missing,
	}
}

// missingFields lists the empty required fields, always in the order
// endpointUrl, authToken.
func missingFields(c LLMConfig) []string {
	missing := []string{}
	if c.EndpointURL == "" {
		missing = append(missing, FieldEndpointURL)
	}
	if c.AuthToken == "" {
		missing = append(missing, FieldAuthToken)
	}
	return missing
}

func validURL(u string) bool {
	return u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func validMaxTokens(v int) bool {
	return v >= MinMaxTokens && v <= MaxMaxTokens
}

func validTemperature(v float64) bool {
	return v >= MinTemperature && v <= MaxTemperature
}

func validTimeout(v int) bool {
	return v >= MinRequestTimeoutMs && v <= MaxRequestTimeoutMs
}

func maxTokensMessage(field string) string {
	return fmt.Sprintf("%s must be between %d and %d", field, MinMaxTokens, MaxMaxTokens)
}

func temperatureMessage(field string) string {
	return fmt.Sprintf("%s must be between %g and %g", field, MinTemperature, MaxTemperature)
}
