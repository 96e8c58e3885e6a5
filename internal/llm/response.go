package llm

import (
	"encoding/json"
	"net/http"
	"strings"

	"llm-chat-proxy/pkg/utils"
)

// maxRawErrorBody bounds how much of an unstructured error body is echoed
// back in an UpstreamError.
const maxRawErrorBody = 200

// completionResponse is the OpenAI-completions-like shape returned upstream.
type completionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Choice is one generated alternative. Completion endpoints fill Text, chat
// endpoints fill Message; anything else is unrecognised.
type Choice struct {
	Text    *string `json:"text,omitempty"`
	Message *struct {
		Content *string `json:"content,omitempty"`
	} `json:"message,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// choiceText extracts plain text from a choice, preferring the direct text
// field over the nested message content.
func choiceText(c Choice) (string, error) {
	if c.Text != nil {
		return *c.Text, nil
	}
	if c.Message != nil && c.Message.Content != nil {
		return *c.Message.Content, nil
	}
	return "", ErrUnrecognizedChoice
}

// firstChoiceText extracts the text of the first choice.
func firstChoiceText(choices []Choice) (string, error) {
	if len(choices) == 0 {
		return "", ErrNoChoices
	}
	return choiceText(choices[0])
}

// upstreamMessage extracts a human-readable message from an error body,
// trying error.message, error, message, the raw body and finally the
// status text.
func upstreamMessage(status int, body []byte) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(parsed.Error, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if err := json.Unmarshal(parsed.Error, &flat); err == nil && flat != "" {
				return flat
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	if raw := strings.TrimSpace(string(body)); raw != "" {
		return utils.Truncate(raw, maxRawErrorBody)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown error"
}
