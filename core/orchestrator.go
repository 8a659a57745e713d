package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"open-llm-gateway/core/adapter"
	"open-llm-gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// defaultUpstreamTimeout bounds the whole upstream exchange, including
// stream consumption. No retries: a model response is not idempotent.
const defaultUpstreamTimeout = 120 * time.Second

// maxErrorBodyRead caps how much of an upstream error body is read when
// extracting a client-visible detail.
const maxErrorBodyRead = 4096

// ProxyHandler drives a chat completion end to end: validate, resolve,
// convert, dispatch, translate back. One instance serves all requests.
type ProxyHandler struct {
	registry *RegistryHolder
	client   *http.Client
	logger   *logrus.Logger
	adapters map[BackendKind]adapter.ProviderAdapter
	timeout  time.Duration
}

func NewProxyHandler(registry *RegistryHolder, logger *logrus.Logger) *ProxyHandler {
	return &ProxyHandler{
		registry: registry,
		client:   NewHTTPClient(),
		logger:   logger,
		adapters: map[BackendKind]adapter.ProviderAdapter{
			KindOpenAICompatible: adapter.NewOpenAIAdapter(logger),
			KindClaude:           adapter.NewClaudeAdapter(logger),
			KindGemini:           adapter.NewGeminiAdapter(logger),
		},
		timeout: defaultUpstreamTimeout,
	}
}

// HandleChatCompletions is the POST /v1/chat/completions handler.
func (p *ProxyHandler) HandleChatCompletions(c *gin.Context) {
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		p.respondError(c, NewBadRequest("Invalid request body"))
		return
	}

	reg := p.registry.Current()

	if req.Model == "" {
		if reg.DefaultModel == "" {
			p.respondError(c, NewBadRequest("Missing required field: model"))
			return
		}
		req.Model = reg.DefaultModel
	}
	if len(req.Messages) == 0 {
		p.respondError(c, NewBadRequest("Missing required field: messages"))
		return
	}

	resolution, err := Resolve(reg, req.Model)
	if err != nil {
		p.respondError(c, AsGatewayError(err))
		return
	}
	backend := resolution.Backend

	// Logging middleware picks these up after the handler returns.
	c.Set("model", resolution.Model)
	c.Set("backend", backend.Name)
	c.Set("stream", req.Stream)

	resolved, err := ResolveCredentials(backend)
	if err != nil {
		p.logger.WithField("backend", backend.Name).Error(err)
		p.respondError(c, AsGatewayError(err))
		return
	}

	ad, ok := p.adapters[backend.Kind]
	if !ok {
		p.respondError(c, NewInternalError(fmt.Errorf("no adapter for backend kind %q", backend.Kind)))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), p.timeout)
	defer cancel()

	upstream := adapter.Upstream{
		BaseURL: backend.BaseURL,
		APIKey:  resolved.Credential,
		Headers: resolved.Headers,
	}

	upReq, err := ad.ConvertRequest(ctx, req, upstream, resolution.Model)
	if err != nil {
		p.logger.WithField("backend", backend.Name).Errorf("Failed to build upstream request: %v", err)
		p.respondError(c, NewInternalError(err))
		return
	}

	p.logger.WithFields(logrus.Fields{
		"backend": backend.Name,
		"model":   resolution.Model,
		"stream":  req.Stream,
	}).Info("Dispatching upstream request")

	resp, err := p.client.Do(upReq)
	if err != nil {
		p.respondError(c, p.classifyTransportError(c, ctx, backend.Name, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := extractUpstreamError(resp, backend.Name)
		p.logger.WithFields(logrus.Fields{
			"backend": backend.Name,
			"status":  resp.StatusCode,
		}).Warnf("Upstream error: %s", detail)
		p.respondError(c, NewUpstreamError(resp.StatusCode, detail))
		return
	}

	if req.Stream {
		if err := ad.StreamResponse(c, resp, resolution.Model); err != nil {
			// Headers are out; all we can do is log.
			p.logger.WithField("backend", backend.Name).Warnf("Stream ended with error: %v", err)
		}
		return
	}

	if err := ad.ConvertResponse(c, resp, resolution.Model); err != nil {
		p.logger.WithField("backend", backend.Name).Errorf("Failed to convert upstream response: %v", err)
		p.respondError(c, NewInternalError(err))
	}
}

// classifyTransportError maps a client.Do failure onto the error taxonomy.
// A deadline hit is a 504, a client disconnect gets no response at all,
// everything else is a 502.
func (p *ProxyHandler) classifyTransportError(c *gin.Context, ctx context.Context, backend string, err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.WithField("backend", backend).Errorf("Upstream timeout: %v", err)
		return NewUpstreamTimeout(backend, err)
	}
	if errors.Is(err, context.Canceled) || c.Request.Context().Err() != nil {
		p.logger.WithField("backend", backend).Info("Client disconnected before upstream reply")
		return NewUpstreamUnavailable(backend, err)
	}
	p.logger.WithField("backend", backend).Errorf("Upstream request failed: %v", err)
	return NewUpstreamUnavailable(backend, err)
}

func (p *ProxyHandler) respondError(c *gin.Context, ge *GatewayError) {
	c.JSON(ge.Status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: ge.Message,
			Type:    ge.OpenAIType(),
		},
	})
}

// extractUpstreamError pulls the human-readable message out of an upstream
// error body. The common envelopes are tried in order; an unparseable body
// is never forwarded, a generic bounded message takes its place.
func extractUpstreamError(resp *http.Response, backend string) string {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
	if err == nil && len(bodyBytes) > 0 {
		var raw map[string]interface{}
		if json.Unmarshal(bodyBytes, &raw) == nil {
			if errObj, ok := raw["error"].(map[string]interface{}); ok {
				if msg, ok := errObj["message"].(string); ok && msg != "" {
					return msg
				}
			}
			if msg, ok := raw["error"].(string); ok && msg != "" {
				return msg
			}
			if msg, ok := raw["detail"].(string); ok && msg != "" {
				return msg
			}
			if msg, ok := raw["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("upstream %s returned status %d", backend, resp.StatusCode)
}
