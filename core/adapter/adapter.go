package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
)

// Upstream carries the per-request resolved view of a backend: the base
// URL, the plain credential, and the expanded header template. Adapters
// with provider-specific auth (Claude, Gemini) use APIKey directly and
// ignore Headers.
type Upstream struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
}

// ProviderAdapter translates between the OpenAI contract and one
// provider's wire format.
type ProviderAdapter interface {
	// ConvertRequest builds the upstream HTTP request for the given
	// unified request. upstreamModel is the canonical model id to send.
	ConvertRequest(ctx context.Context, originalReq models.ChatCompletionRequest, upstream Upstream, upstreamModel string) (*http.Request, error)

	// ConvertResponse translates a 200 non-streaming upstream response
	// and writes the unified JSON body to the client.
	ConvertResponse(c *gin.Context, resp *http.Response, model string) error

	// StreamResponse consumes the upstream stream incrementally and
	// writes unified chunks as SSE, ending with exactly one [DONE].
	StreamResponse(c *gin.Context, resp *http.Response, model string) error
}

// StreamScanner is a lazy, finite, non-restartable sequence of encoded SSE
// events produced from an upstream stream. Scan blocks on the next
// upstream chunk; the consumer's write blocks on downstream readiness, so
// backpressure propagates end to end.
type StreamScanner interface {
	Scan() bool
	Bytes() []byte
	Err() error
}

// newChatCompletionID synthesizes a response id when the upstream does not
// provide one.
func newChatCompletionID() string {
	return fmt.Sprintf("chatcmpl-%x", time.Now().UnixNano())
}

// writeSSEHeaders prepares the downstream connection for event streaming
// and flushes immediately so clients see headers before the first chunk.
func writeSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}

// pumpStream drains the scanner into the client connection. Whatever
// happens upstream, the client sees exactly one terminal [DONE]: a scanner
// error turns into one inline error event before it. A downstream write
// error means the client is gone; nothing more is written.
func pumpStream(c *gin.Context, scanner StreamScanner) error {
	writeSSEHeaders(c)

	for scanner.Scan() {
		if _, err := c.Writer.Write(scanner.Bytes()); err != nil {
			return err
		}
		c.Writer.Flush()
	}

	if err := scanner.Err(); err != nil {
		payload, _ := json.Marshal(map[string]string{"error": "stream processing failed"})
		if _, werr := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); werr != nil {
			return werr
		}
	}

	if _, err := fmt.Fprintf(c.Writer, "data: [DONE]\n\n"); err != nil {
		return err
	}
	c.Writer.Flush()
	return scanner.Err()
}

// encodeChunk serializes one unified chunk as an SSE data event.
func encodeChunk(chunk models.ChatCompletionResponse) []byte {
	chunkBytes, _ := json.Marshal(chunk)
	return []byte(fmt.Sprintf("data: %s\n\n", chunkBytes))
}

// deltaChunk builds a content delta event with a null finish_reason.
func deltaChunk(id, model string, created int64, content string) models.ChatCompletionResponse {
	return models.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{Index: 0, Delta: &models.ChatMessage{Content: content}},
		},
	}
}

// finishChunk builds the final event: empty delta, terminal finish_reason.
func finishChunk(id, model string, created int64, finishReason string) models.ChatCompletionResponse {
	return models.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{Index: 0, Delta: &models.ChatMessage{}, FinishReason: models.FinishReason(finishReason)},
		},
	}
}
