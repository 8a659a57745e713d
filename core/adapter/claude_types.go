package adapter

// Claude Messages API wire types, limited to the fields the gateway maps.

type ClaudeRequest struct {
	Model       string          `json:"model"`
	Messages    []ClaudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ClaudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ClaudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ClaudeResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Content []ClaudeContentBlock `json:"content"`
	// Completion is the legacy Text Completions field, still emitted by
	// some proxies in front of older endpoints.
	Completion string      `json:"completion"`
	StopReason *string     `json:"stop_reason"`
	Usage      ClaudeUsage `json:"usage"`
}

type ClaudeStreamDelta struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	StopReason *string `json:"stop_reason"`
}

type ClaudeStreamEvent struct {
	Type  string             `json:"type"`
	Delta *ClaudeStreamDelta `json:"delta"`
}
