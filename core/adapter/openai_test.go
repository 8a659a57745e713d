package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOpenAIAdapter_ConvertRequest(t *testing.T) {
	a := NewOpenAIAdapter(nil)

	originalReq := models.ChatCompletionRequest{
		Model: "gpt-4-alias",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "Hello!"},
		},
	}

	upstream := Upstream{
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "sk-test",
		Headers: map[string]string{"Authorization": "Bearer sk-test"},
	}

	req, err := a.ConvertRequest(context.Background(), originalReq, upstream, "gpt-4")
	assert.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	var sent models.ChatCompletionRequest
	assert.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
	assert.Equal(t, "gpt-4", sent.Model)
	assert.Len(t, sent.Messages, 1)
}

func TestOpenAIAdapter_ConvertRequest_FullURLUntouched(t *testing.T) {
	a := NewOpenAIAdapter(nil)

	upstream := Upstream{BaseURL: "https://example.com/custom/chat/completions"}
	req, err := a.ConvertRequest(context.Background(), models.ChatCompletionRequest{}, upstream, "m")
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/custom/chat/completions", req.URL.String())
}

func TestOpenAIAdapter_ConvertResponse_Passthrough(t *testing.T) {
	a := NewOpenAIAdapter(nil)

	body := `{"id":"chatcmpl-abc","object":"chat.completion","created":1,"model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"Hi"},"finish_reason":"stop"}]}`
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body))}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	assert.NoError(t, a.ConvertResponse(c, resp, "gpt-4"))
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, body, w.Body.String())
}

func TestOpenAIAdapter_ConvertResponse_Synthesized(t *testing.T) {
	a := NewOpenAIAdapter(nil)

	body := `{"message":{"role":"assistant","content":"Hello!"},"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`
	resp := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body))}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	assert.NoError(t, a.ConvertResponse(c, resp, "gpt-4"))

	var out models.ChatCompletionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, "gpt-4", out.Model)
	assert.Contains(t, out.ID, "chatcmpl-")
	assert.Len(t, out.Choices, 1)
	assert.Equal(t, "Hello!", out.Choices[0].Message.Content)
	assert.Equal(t, "stop", *out.Choices[0].FinishReason)
	assert.Equal(t, 5, out.Usage.TotalTokens)
}

func TestOpenAIAdapter_StreamResponse_MixedChunks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Conforming chunk passes through untouched.
		fmt.Fprintf(w, "data: %s\n\n", `{"id":"chatcmpl-up","object":"chat.completion.chunk","created":1,"model":"gpt-4","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`)
		// Bare delta gets re-wrapped.
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"lo"}}]}`)
		// Garbage is dropped.
		fmt.Fprintf(w, "data: not json at all\n\n")
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	a := NewOpenAIAdapter(nil)
	assert.NoError(t, a.StreamResponse(c, resp, "gpt-4"))

	text, _, doneCount := parseSSE(w.Body.String())
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 1, doneCount)
	assert.NotContains(t, w.Body.String(), "not json at all")
	assert.Contains(t, w.Body.String(), `"id":"chatcmpl-up"`)
}

func TestOpenAIAdapter_StreamResponse_NoUpstreamDone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"partial"}}]}`)
		// Connection closes without [DONE].
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	a := NewOpenAIAdapter(nil)
	assert.NoError(t, a.StreamResponse(c, resp, "gpt-4"))

	text, _, doneCount := parseSSE(w.Body.String())
	assert.Equal(t, "partial", text)
	assert.Equal(t, 1, doneCount)
}
