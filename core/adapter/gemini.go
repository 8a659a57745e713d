package adapter

import (
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

// GeminiAdapter translates between the unified contract and the Gemini
// generateContent API. The model is part of the URL, not the body, so the
// endpoint is built per request.
type GeminiAdapter struct {
	logger *logrus.Logger
}

func NewGeminiAdapter(logger *logrus.Logger) *GeminiAdapter {
	return &GeminiAdapter{logger: logger}
}

func (a *GeminiAdapter) ConvertRequest(ctx context.Context, originalReq models.ChatCompletionRequest, upstream Upstream, upstreamModel string) (*http.Request, error) {
	geminiReq := GeminiRequest{
		Contents: make([]GeminiContent, 0, len(originalReq.Messages)),
	}

	// System turns have no direct equivalent; user stays user, assistant
	// becomes model.
	for _, msg := range originalReq.Messages {
		if msg.Role == "system" {
			continue
		}
		if !msg.HasContent() {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: msg.StringContent()}},
		})
	}

	if originalReq.Temperature != nil || originalReq.MaxTokens != nil {
		cfg := &GeminiConfig{}
		if originalReq.Temperature != nil {
			cfg.Temperature = originalReq.Temperature
		}
		if originalReq.MaxTokens != nil {
			cfg.MaxOutputTokens = *originalReq.MaxTokens
		}
		geminiReq.GenerationConfig = cfg
	}

	reqBodyBytes, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	action := "generateContent"
	if originalReq.Stream {
		action = "streamGenerateContent"
	}
	endpoint := fmt.Sprintf("%s/models/%s:%s", strings.TrimSuffix(upstream.BaseURL, "/"), upstreamModel, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", upstream.APIKey)
	for name, value := range upstream.Headers {
		req.Header.Set(name, value)
	}

	return req, nil
}

func (a *GeminiAdapter) ConvertResponse(c *gin.Context, resp *http.Response, model string) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return fmt.Errorf("invalid JSON from upstream: %w", err)
	}

	var contentBuilder strings.Builder
	finishReason := "stop"
	if len(geminiResp.Candidates) > 0 {
		candidate := geminiResp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			contentBuilder.WriteString(part.Text)
		}
		if candidate.FinishReason != "" {
			finishReason = mapGeminiFinishReason(candidate.FinishReason)
		}
	}

	usage := &models.ChatCompletionUsage{}
	if geminiResp.UsageMetadata != nil {
		usage = &models.ChatCompletionUsage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		}
	}

	out := models.ChatCompletionResponse{
		ID:      newChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index:        0,
				Message:      &models.ChatMessage{Role: "assistant", Content: contentBuilder.String()},
				FinishReason: models.FinishReason(finishReason),
			},
		},
		Usage: usage,
	}

	c.JSON(http.StatusOK, out)
	return nil
}

func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION":
		return "content_filter"
	default:
		return "stop"
	}
}

func (a *GeminiAdapter) StreamResponse(c *gin.Context, resp *http.Response, model string) error {
	return pumpStream(c, NewGeminiStreamScanner(resp.Body, model))
}

// geminiArrayParser extracts complete JSON objects from the incrementally
// arriving array that streamGenerateContent sends. It tracks brace depth
// with string and escape awareness, so braces inside model output never
// confuse the framing. A leading [ is stripped once; input without array
// framing parses the same way.
type geminiArrayParser struct {
	started bool
	inObj   bool
	inStr   bool
	escaped bool
	depth   int
	obj     []byte
}

// Feed consumes the next chunk and returns every object completed by it.
// Partial objects stay buffered until a later chunk closes them.
func (p *geminiArrayParser) Feed(chunk []byte) [][]byte {
	var objs [][]byte
	for _, c := range chunk {
		if !p.inObj {
			if !p.started {
				switch c {
				case ' ', '\t', '\r', '\n':
					continue
				case '[':
					p.started = true
					continue
				}
				p.started = true
			}
			if c == '{' {
				p.inObj = true
				p.depth = 1
				p.obj = append(p.obj[:0], c)
			}
			continue
		}

		p.obj = append(p.obj, c)
		if p.inStr {
			switch {
			case p.escaped:
				p.escaped = false
			case c == '\\':
				p.escaped = true
			case c == '"':
				p.inStr = false
			}
			continue
		}
		switch c {
		case '"':
			p.inStr = true
		case '{':
			p.depth++
		case '}':
			p.depth--
			if p.depth == 0 {
				objs = append(objs, append([]byte(nil), p.obj...))
				p.inObj = false
			}
		}
	}
	return objs
}

// GeminiStreamScanner converts the object stream into unified chunks.
// Each object may carry cumulative text, so the delta is the suffix past
// the accumulated text; when the upstream restarts its accumulation the
// whole text is emitted as the delta instead of stalling. The object
// carrying a finishReason produces a finish chunk and ends the scan.
type GeminiStreamScanner struct {
	reader    io.Reader
	parser    geminiArrayParser
	buf       []byte
	pending   [][]byte
	textAccum string
	model     string
	id        string
	created   int64
	current   []byte
	err       error
	done      bool
}

func NewGeminiStreamScanner(r io.Reader, model string) *GeminiStreamScanner {
	return &GeminiStreamScanner{
		reader:  r,
		buf:     make([]byte, 4096),
		model:   model,
		id:      newChatCompletionID(),
		created: time.Now().Unix(),
	}
}

func (s *GeminiStreamScanner) Scan() bool {
	for {
		if len(s.pending) > 0 {
			s.current = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}
		if s.done {
			return false
		}

		n, err := s.reader.Read(s.buf)
		if n > 0 {
			for _, obj := range s.parser.Feed(s.buf[:n]) {
				s.handleObject(obj)
				if s.done {
					break
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.err = err
			}
			s.done = true
		}
	}
}

// handleObject queues up to two events per object: a content delta and,
// when the object carries a finishReason, the finish chunk. Objects that
// do not parse are skipped.
func (s *GeminiStreamScanner) handleObject(obj []byte) {
	var geminiResp GeminiResponse
	if err := json.Unmarshal(obj, &geminiResp); err != nil {
		return
	}
	if len(geminiResp.Candidates) == 0 {
		return
	}
	candidate := geminiResp.Candidates[0]

	var delta string
	for _, part := range candidate.Content.Parts {
		if part.Text == "" {
			continue
		}
		if strings.HasPrefix(part.Text, s.textAccum) {
			delta = part.Text[len(s.textAccum):]
			s.textAccum = part.Text
		} else {
			delta = part.Text
			s.textAccum += delta
		}
	}
	if delta != "" {
		s.pending = append(s.pending, encodeChunk(deltaChunk(s.id, s.model, s.created, delta)))
	}

	if candidate.FinishReason != "" {
		s.pending = append(s.pending, encodeChunk(finishChunk(s.id, s.model, s.created, mapGeminiFinishReason(candidate.FinishReason))))
		s.done = true
	}
}

func (s *GeminiStreamScanner) Bytes() []byte {
	return s.current
}

func (s *GeminiStreamScanner) Err() error {
	return s.err
}
