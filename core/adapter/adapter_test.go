package adapter

import (
	"bufio"
	"encoding/json"
	"strings"
)

// parseSSE walks an SSE body and returns the concatenated delta text, the
// finish reasons seen, and how many [DONE] markers the stream carried.
func parseSSE(body string) (string, []string, int) {
	var fullText string
	var finishes []string
	doneCount := 0

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			doneCount++
			continue
		}

		var chunk map[string]interface{}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		choices, _ := chunk["choices"].([]interface{})
		if len(choices) == 0 {
			continue
		}
		choice := choices[0].(map[string]interface{})
		if delta, ok := choice["delta"].(map[string]interface{}); ok {
			if content, ok := delta["content"].(string); ok {
				fullText += content
			}
		}
		if reason, ok := choice["finish_reason"].(string); ok {
			finishes = append(finishes, reason)
		}
	}

	return fullText, finishes, doneCount
}
