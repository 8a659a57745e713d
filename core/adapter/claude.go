package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const anthropicVersion = "2023-06-01"

// claudeDefaultMaxTokens applies when the client omits max_tokens; the
// Messages API rejects requests without it.
const claudeDefaultMaxTokens = 1024

// ClaudeAdapter translates between the unified contract and the Claude
// Messages API.
type ClaudeAdapter struct {
	logger *logrus.Logger
}

func NewClaudeAdapter(logger *logrus.Logger) *ClaudeAdapter {
	return &ClaudeAdapter{logger: logger}
}

func (a *ClaudeAdapter) ConvertRequest(ctx context.Context, originalReq models.ChatCompletionRequest, upstream Upstream, upstreamModel string) (*http.Request, error) {
	claudeReq := ClaudeRequest{
		Model:     upstreamModel,
		Messages:  make([]ClaudeMessage, 0, len(originalReq.Messages)),
		MaxTokens: claudeDefaultMaxTokens,
		Stream:    originalReq.Stream,
	}

	// Only user and assistant turns with actual content survive; system
	// and tool roles have no place in this mapping.
	for _, msg := range originalReq.Messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		if !msg.HasContent() {
			continue
		}
		claudeReq.Messages = append(claudeReq.Messages, ClaudeMessage{
			Role:    msg.Role,
			Content: msg.StringContent(),
		})
	}

	if originalReq.MaxTokens != nil {
		claudeReq.MaxTokens = *originalReq.MaxTokens
	}
	if originalReq.Temperature != nil {
		claudeReq.Temperature = originalReq.Temperature
	}

	reqBodyBytes, err := json.Marshal(claudeReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(upstream.BaseURL, "/")
	if !strings.HasSuffix(endpoint, "/messages") {
		endpoint += "/messages"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", upstream.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	for name, value := range upstream.Headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

func (a *ClaudeAdapter) ConvertResponse(c *gin.Context, resp *http.Response, model string) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(bodyBytes, &claudeResp); err != nil {
		return fmt.Errorf("invalid JSON from upstream: %w", err)
	}

	var contentBuilder strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			contentBuilder.WriteString(block.Text)
		}
	}
	content := contentBuilder.String()
	if content == "" && claudeResp.Completion != "" {
		content = claudeResp.Completion
	}

	id := claudeResp.ID
	if id == "" {
		id = newChatCompletionID()
	}

	out := models.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index:        0,
				Message:      &models.ChatMessage{Role: "assistant", Content: content},
				FinishReason: models.FinishReason(mapClaudeStopReason(claudeResp.StopReason)),
			},
		},
		Usage: &models.ChatCompletionUsage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}

	c.JSON(http.StatusOK, out)
	return nil
}

func mapClaudeStopReason(reason *string) string {
	if reason == nil {
		return "stop"
	}
	switch *reason {
	case "end_turn":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return *reason
	}
}

func (a *ClaudeAdapter) StreamResponse(c *gin.Context, resp *http.Response, model string) error {
	return pumpStream(c, NewClaudeStreamScanner(resp.Body, model))
}

// ClaudeStreamScanner turns Claude SSE events into unified chunks. Events
// are classified by the type field of each data: payload; text deltas map
// to content chunks, message_stop maps to the finish chunk, everything
// else is ignored. If the upstream drops without a message_stop the scan
// just ends; pumpStream still closes the client stream with [DONE].
type ClaudeStreamScanner struct {
	scanner  *bufio.Scanner
	model    string
	id       string
	created  int64
	current  []byte
	err      error
	finished bool
}

func NewClaudeStreamScanner(r io.Reader, model string) *ClaudeStreamScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ClaudeStreamScanner{
		scanner: sc,
		model:   model,
		id:      newChatCompletionID(),
		created: time.Now().Unix(),
	}
}

func (s *ClaudeStreamScanner) Scan() bool {
	if s.finished {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var event ClaudeStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			s.current = encodeChunk(deltaChunk(s.id, s.model, s.created, event.Delta.Text))
			return true
		case "message_stop":
			s.finished = true
			s.current = encodeChunk(finishChunk(s.id, s.model, s.created, "stop"))
			return true
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = err
	}
	return false
}

func (s *ClaudeStreamScanner) Bytes() []byte {
	return s.current
}

func (s *ClaudeStreamScanner) Err() error {
	return s.err
}
