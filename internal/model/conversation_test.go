package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDecodesVariants(t *testing.T) {
	var msg struct {
		A Content `json:"a"`
		B Content `json:"b"`
		C Content `json:"c"`
	}
	err := json.Unmarshal([]byte(`{"a":"hello","b":{"k": [1, 2]},"c":null}`), &msg)
	require.NoError(t, err)

	assert.Equal(t, ContentText, msg.A.Kind)
	assert.Equal(t, "hello", msg.A.String())

	assert.Equal(t, ContentStructured, msg.B.Kind)
	assert.Equal(t, `{"k":[1,2]}`, msg.B.String())
	assert.False(t, msg.B.IsEmpty())

	assert.Equal(t, ContentEmpty, msg.C.Kind)
	assert.True(t, msg.C.IsEmpty())
}

func TestContentEncodesVariants(t *testing.T) {
	structured, err := StructuredContent(map[string]int{"n": 1})
	require.NoError(t, err)

	out, err := json.Marshal([]Content{TextContent("hi"), structured, {}})
	require.NoError(t, err)
	assert.JSONEq(t, `["hi", {"n": 1}, null]`, string(out))
}

func TestMessageThinking(t *testing.T) {
	assert.True(t, Message{Role: RoleAssistant}.Thinking())
	assert.True(t, Message{Role: RoleAssistant, Content: TextContent("")}.Thinking())
	assert.False(t, Message{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "list_tasks"}}}.Thinking())
	assert.False(t, Message{Role: RoleAssistant, Content: TextContent("done")}.Thinking())
	assert.False(t, Message{Role: RoleUser}.Thinking())
}

func TestVisibleMessages(t *testing.T) {
	msgs := []Message{{ID: "1"}, {ID: "2", Hidden: true}, {ID: "3"}}

	visible := VisibleMessages(msgs)
	require.Len(t, visible, 2)
	assert.Equal(t, "1", visible[0].ID)
	assert.Equal(t, "3", visible[1].ID)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada", User{FullName: "Ada", Email: "ada@example.com"}.DisplayName())
	assert.Equal(t, "ada@example.com", User{Email: "ada@example.com"}.DisplayName())
}
