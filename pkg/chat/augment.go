package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calvinhq/calvin/pkg/provider"
)

// Augment builds the generation prompt for one turn: the user's message
// followed by one delimited section per successful tool result, in plan
// order. Failed and timed-out results never reach the prompt; they stay in
// logs and diagnostics only.
func Augment(userMessage string, results []provider.ToolResult) string {
	var b strings.Builder
	b.WriteString(userMessage)

	for _, r := range results {
		if !r.Success {
			continue
		}
		b.WriteString("\n\n--- Tool output (")
		b.WriteString(r.Provider)
		b.WriteString("/")
		b.WriteString(r.Tool)
		b.WriteString(") ---\n")
		b.WriteString(formatPayload(r.Payload))
		b.WriteString("\n--- End tool output ---")
	}

	return b.String()
}

// formatPayload renders a tool payload for the prompt. MCP-style content
// blocks are flattened to their text; anything else is emitted as JSON.
func formatPayload(payload map[string]interface{}) string {
	if text := contentText(payload); text != "" {
		return text
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

func contentText(payload map[string]interface{}) string {
	content, ok := payload["content"].([]interface{})
	if !ok {
		return ""
	}

	var parts []string
	for _, block := range content {
		if m, ok := block.(map[string]interface{}); ok {
			if text, ok := m["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
