package chatpanel

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tasksuite/tasks/internal/model"
)

const ThinkingText = "Thinking..."

// Bubble is one rendered message.
type Bubble struct {
	Role     string
	Text     string
	Thinking bool
	// Tools lists the names of the tools the assistant called, comma
	// separated.
	Tools string
}

// Render turns messages into bubbles, hiding system-internal messages.
func Render(msgs []model.Message) []Bubble {
	visible := model.VisibleMessages(msgs)
	bubbles := make([]Bubble, 0, len(visible))
	for _, m := range visible {
		if m.Thinking() {
			bubbles = append(bubbles, Bubble{Role: m.Role, Text: ThinkingText, Thinking: true})
			continue
		}
		bubbles = append(bubbles, Bubble{
			Role:  m.Role,
			Text:  contentText(m.Content),
			Tools: toolNames(m.ToolCalls),
		})
	}
	return bubbles
}

func contentText(c model.Content) string {
	if c.Kind != model.ContentStructured {
		return c.String()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.Structured, "", "  "); err != nil {
		return c.String()
	}
	return buf.String()
}

func toolNames(calls []model.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, call := range calls {
		names = append(names, call.Name)
	}
	return strings.Join(names, ", ")
}
