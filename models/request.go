package models

import (
	"encoding/json"
	"strings"
)

// ChatCompletionRequest is the inbound OpenAI chat request.
type ChatCompletionRequest struct {
	Model            string         `json:"model"`
	Messages         []ChatMessage  `json:"messages"`
	Stream           bool           `json:"stream,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	N                *int           `json:"n,omitempty"`
	StreamOptions    *StreamOptions `json:"stream_options,omitempty"`
	Stop             interface{}    `json:"stop,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	Seed             *int           `json:"seed,omitempty"`
}

// ChatMessage is a single conversation turn. Content is either a plain
// string or the multimodal array form; adapters that need text only go
// through StringContent.
type ChatMessage struct {
	Role    string      `json:"role,omitempty"`
	Content interface{} `json:"content,omitempty"`
	Name    string      `json:"name,omitempty"`
}

// StreamOptions mirrors the OpenAI stream_options object.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionResponse doubles as the non-streaming response
// (object "chat.completion") and the streaming chunk
// (object "chat.completion.chunk").
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ChatCompletionChoice carries Message for full responses and Delta for
// stream chunks. FinishReason stays a pointer so chunks can serialize an
// explicit null until the final chunk.
type ChatCompletionChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatCompletionUsage is the OpenAI usage block.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse is the OpenAI-style error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ModelList is the response shape of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo is one entry of the model list. AliasFor is set for alias
// entries only.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Backend string `json:"backend,omitempty"`
	AliasFor string `json:"alias_for,omitempty"`
}

// FinishReason returns a pointer suitable for ChatCompletionChoice.
func FinishReason(reason string) *string {
	return &reason
}

// StringContent flattens ChatMessage.Content into plain text. Multimodal
// arrays contribute their type=="text" items joined by spaces; anything
// else falls back to its JSON encoding.
func (m *ChatMessage) StringContent() string {
	if m.Content == nil {
		return ""
	}

	if str, ok := m.Content.(string); ok {
		return str
	}

	if arr, ok := m.Content.([]interface{}); ok {
		var result strings.Builder
		for _, item := range arr {
			itemMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if itemType, exists := itemMap["type"]; !exists || itemType != "text" {
				continue
			}
			if text, ok := itemMap["text"].(string); ok {
				if result.Len() > 0 {
					result.WriteString(" ")
				}
				result.WriteString(text)
			}
		}
		return result.String()
	}

	if jsonBytes, err := json.Marshal(m.Content); err == nil {
		return string(jsonBytes)
	}
	return ""
}

// HasContent reports whether the message carries non-empty content.
func (m *ChatMessage) HasContent() bool {
	if m.Content == nil {
		return false
	}
	if str, ok := m.Content.(string); ok {
		return str != ""
	}
	if arr, ok := m.Content.([]interface{}); ok {
		return len(arr) > 0
	}
	return true
}
