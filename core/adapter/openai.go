package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OpenAIAdapter proxies OpenAI-compatible backends. Requests pass through
// unchanged apart from the model swap; responses and stream chunks are
// passed through when they already conform and re-wrapped when they do not.
type OpenAIAdapter struct {
	logger *logrus.Logger
}

func NewOpenAIAdapter(logger *logrus.Logger) *OpenAIAdapter {
	return &OpenAIAdapter{logger: logger}
}

// requiredResponseKeys are the top-level keys a payload must carry to be
// forwarded as-is.
var requiredResponseKeys = []string{"id", "object", "created", "model", "choices"}

func (a *OpenAIAdapter) ConvertRequest(ctx context.Context, originalReq models.ChatCompletionRequest, upstream Upstream, upstreamModel string) (*http.Request, error) {
	originalReq.Model = upstreamModel

	reqBodyBytes, err := json.Marshal(originalReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	u, err := url.Parse(upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	// Append the chat endpoint only when the configured URL looks like a
	// bare base URL.
	path := u.Path
	if !strings.Contains(path, "/chat/completions") {
		if path == "" || path == "/" || strings.HasSuffix(path, "/v1") || strings.HasSuffix(path, "/v1/") {
			u.Path = strings.TrimSuffix(path, "/") + "/chat/completions"
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Open-LLM-Gateway/1.0")
	for name, value := range upstream.Headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

func (a *OpenAIAdapter) ConvertResponse(c *gin.Context, resp *http.Response, model string) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return fmt.Errorf("invalid JSON from upstream: %w", err)
	}

	if hasRequiredKeys(raw) {
		c.Data(http.StatusOK, "application/json", bodyBytes)
		return nil
	}

	c.JSON(http.StatusOK, synthesizeResponse(raw, model))
	return nil
}

// hasRequiredKeys checks the five keys that make a payload OpenAI-shaped.
func hasRequiredKeys(raw map[string]interface{}) bool {
	for _, key := range requiredResponseKeys {
		if _, ok := raw[key]; !ok {
			return false
		}
	}
	return true
}

// synthesizeResponse lifts message/content-only payloads into a full
// single-choice response with defaults for everything missing.
func synthesizeResponse(raw map[string]interface{}, model string) models.ChatCompletionResponse {
	content := extractContent(raw)

	out := models.ChatCompletionResponse{
		ID:      newChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index:        0,
				Message:      &models.ChatMessage{Role: "assistant", Content: content},
				FinishReason: models.FinishReason("stop"),
			},
		},
		Usage: &models.ChatCompletionUsage{},
	}

	if usage, ok := raw["usage"].(map[string]interface{}); ok {
		out.Usage = &models.ChatCompletionUsage{
			PromptTokens:     intField(usage, "prompt_tokens"),
			CompletionTokens: intField(usage, "completion_tokens"),
			TotalTokens:      intField(usage, "total_tokens"),
		}
	}
	return out
}

// extractContent digs assistant text out of partially-shaped payloads:
// choices[0].{message,delta}.content, then a top-level message.content,
// then a bare content field.
func extractContent(raw map[string]interface{}) string {
	if choices, ok := raw["choices"].([]interface{}); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]interface{}); ok {
			for _, key := range []string{"message", "delta"} {
				if msg, ok := choice[key].(map[string]interface{}); ok {
					if text, ok := msg["content"].(string); ok {
						return text
					}
				}
			}
			if text, ok := choice["text"].(string); ok {
				return text
			}
		}
	}
	if msg, ok := raw["message"].(map[string]interface{}); ok {
		if text, ok := msg["content"].(string); ok {
			return text
		}
	}
	if text, ok := raw["content"].(string); ok {
		return text
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (a *OpenAIAdapter) StreamResponse(c *gin.Context, resp *http.Response, model string) error {
	return pumpStream(c, NewOpenAIStreamScanner(resp.Body, model, a.logger))
}

// OpenAIStreamScanner re-parses an already data:-framed SSE stream,
// forwarding conforming chunk payloads verbatim and re-wrapping anything
// else into the unified chunk shape. The upstream [DONE] line terminates
// the scan; pumpStream appends the gateway's own single terminal event.
type OpenAIStreamScanner struct {
	scanner  *bufio.Scanner
	logger   *logrus.Logger
	model    string
	id       string
	created  int64
	current  []byte
	err      error
	finished bool
}

func NewOpenAIStreamScanner(r io.Reader, model string, logger *logrus.Logger) *OpenAIStreamScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &OpenAIStreamScanner{
		scanner: sc,
		logger:  logger,
		model:   model,
		id:      newChatCompletionID(),
		created: time.Now().Unix(),
	}
}

func (s *OpenAIStreamScanner) Scan() bool {
	if s.finished {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if strings.TrimSpace(payload) == "[DONE]" {
			s.finished = true
			return false
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			if s.logger != nil {
				s.logger.Warnf("Dropping non-JSON stream line: %s", truncate(payload, 100))
			}
			continue
		}

		if hasRequiredKeys(raw) {
			s.current = []byte(fmt.Sprintf("data: %s\n\n", payload))
			return true
		}

		chunk := deltaChunk(s.id, s.model, s.created, extractContent(raw))
		s.current = encodeChunk(chunk)
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = err
	}
	return false
}

func (s *OpenAIStreamScanner) Bytes() []byte {
	return s.current
}

func (s *OpenAIStreamScanner) Err() error {
	return s.err
}

// truncate bounds s to max bytes for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
