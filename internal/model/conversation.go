package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentKind tags which variant a Content holds.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentText
	ContentStructured
)

// Content is either plain text or an arbitrary JSON value. On the wire it is
// a JSON string for text, any other JSON value for structured content, and
// null when empty.
type Content struct {
	Kind       ContentKind
	Text       string
	Structured json.RawMessage
}

func TextContent(s string) Content {
	return Content{Kind: ContentText, Text: s}
}

// StructuredContent marshals v into a structured content value.
func StructuredContent(v any) (Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{}, err
	}
	return Content{Kind: ContentStructured, Structured: raw}, nil
}

// IsEmpty reports whether there is nothing to show: no value or empty text.
func (c Content) IsEmpty() bool {
	switch c.Kind {
	case ContentText:
		return c.Text == ""
	case ContentStructured:
		return len(c.Structured) == 0
	default:
		return true
	}
}

// String renders text as is and structured content as compact JSON.
func (c Content) String() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentStructured:
		var buf bytes.Buffer
		if err := json.Compact(&buf, c.Structured); err != nil {
			return string(c.Structured)
		}
		return buf.String()
	default:
		return ""
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return json.Marshal(c.Text)
	case ContentStructured:
		if len(c.Structured) == 0 {
			return []byte("null"), nil
		}
		return c.Structured, nil
	default:
		return []byte("null"), nil
	}
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = TextContent(s)
	default:
		raw := make(json.RawMessage, len(trimmed))
		copy(raw, trimmed)
		*c = Content{Kind: ContentStructured, Structured: raw}
	}
	return nil
}

// ToolCall records one tool invocation made by the agent.
type ToolCall struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Status  string         `json:"status,omitempty"`
	Results string         `json:"results,omitempty"`
}

// Tool call statuses.
const (
	ToolCallRunning   = "running"
	ToolCallCompleted = "completed"
	ToolCallFailed    = "failed"
)

type Message struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Content     Content    `json:"content"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	Hidden      bool       `json:"hidden,omitempty"`
	CreatedDate time.Time  `json:"created_date"`
}

// Thinking reports whether an assistant message has produced nothing yet.
func (m Message) Thinking() bool {
	return m.Role == RoleAssistant && m.Content.IsEmpty() && len(m.ToolCalls) == 0
}

type Conversation struct {
	ID          string    `json:"id"`
	AgentName   string    `json:"agent_name"`
	UserID      string    `json:"created_by"`
	Messages    []Message `json:"messages"`
	CreatedDate time.Time `json:"created_date"`
}

// VisibleMessages drops hidden, system-internal messages.
func VisibleMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}
