package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/tasksuite/tasks/internal/model"
)

type conversationRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	AgentName   string    `db:"agent_name"`
	CreatedDate time.Time `db:"created_date"`
}

// messageRow stores content and tool calls as JSON text columns.
type messageRow struct {
	Seq            int64     `db:"seq"`
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	ToolCalls      string    `db:"tool_calls"`
	Hidden         bool      `db:"hidden"`
	CreatedDate    time.Time `db:"created_date"`
}

func newMessageRow(conversationID string, msg model.Message) (messageRow, error) {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return messageRow{}, errors.Wrap(err, "failed to encode message content")
	}
	toolCalls := msg.ToolCalls
	if toolCalls == nil {
		toolCalls = []model.ToolCall{}
	}
	calls, err := json.Marshal(toolCalls)
	if err != nil {
		return messageRow{}, errors.Wrap(err, "failed to encode tool calls")
	}
	return messageRow{
		ID:             msg.ID,
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        string(content),
		ToolCalls:      string(calls),
		Hidden:         msg.Hidden,
		CreatedDate:    msg.CreatedDate,
	}, nil
}

func (r messageRow) toModel() (model.Message, error) {
	msg := model.Message{
		ID:          r.ID,
		Role:        r.Role,
		Hidden:      r.Hidden,
		CreatedDate: r.CreatedDate,
	}
	if err := json.Unmarshal([]byte(r.Content), &msg.Content); err != nil {
		return model.Message{}, errors.Wrapf(err, "failed to decode content of message %s", r.ID)
	}
	if err := json.Unmarshal([]byte(r.ToolCalls), &msg.ToolCalls); err != nil {
		return model.Message{}, errors.Wrapf(err, "failed to decode tool calls of message %s", r.ID)
	}
	if len(msg.ToolCalls) == 0 {
		msg.ToolCalls = nil
	}
	return msg, nil
}
