package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksuite/tasks/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "creating test store")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateTask(ctx, "Buy milk", false)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	second, err := s.CreateTask(ctx, "Walk dog", true)
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID, "insertion order is kept")
	assert.Equal(t, second.ID, tasks[1].ID)
	assert.True(t, tasks[1].Completed)

	done := true
	updated, err := s.UpdateTask(ctx, first.ID, model.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title, "title untouched by a completed-only patch")

	got, err := s.GetTask(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	require.NoError(t, s.DeleteTask(ctx, first.ID))
	_, err = s.GetTask(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err = s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTaskNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	title := "x"
	_, err := s.UpdateTask(ctx, "missing", model.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, "missing"), ErrNotFound)
}

func TestListTasksEmpty(t *testing.T) {
	tasks, err := newTestStore(t).ListTasks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestUpsertUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.UpsertUser(ctx, model.User{Email: "ada@example.com", FullName: "Ada"})
	require.NoError(t, err)

	again, err := s.UpsertUser(ctx, model.User{Email: "ada@example.com", FullName: "Ada Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID, "same email resolves to the same user")
	assert.Equal(t, "Ada Lovelace", again.FullName)

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)

	_, err = s.GetUserByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.UpsertUser(ctx, model.User{Email: "ada@example.com"})
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, u.ID, "task_manager")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)

	userMsg := model.Message{Role: model.RoleUser, Content: model.TextContent("add milk")}
	require.NoError(t, s.AppendMessage(ctx, conv.ID, &userMsg))
	require.NotEmpty(t, userMsg.ID)

	reply := model.Message{Role: model.RoleAssistant}
	require.NoError(t, s.AppendMessage(ctx, conv.ID, &reply))

	result, err := model.StructuredContent(map[string]any{"ok": true})
	require.NoError(t, err)
	hidden := model.Message{Role: model.RoleUser, Content: result, Hidden: true}
	require.NoError(t, s.AppendMessage(ctx, conv.ID, &hidden))

	reply.Content = model.TextContent("Added.")
	reply.ToolCalls = []model.ToolCall{{Name: "create_task", Args: map[string]any{"title": "milk"}, Status: model.ToolCallCompleted}}
	require.NoError(t, s.UpdateMessage(ctx, conv.ID, reply))

	loaded, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, loaded.UserID)
	assert.Equal(t, "task_manager", loaded.AgentName)
	require.Len(t, loaded.Messages, 3)

	assert.Equal(t, "add milk", loaded.Messages[0].Content.String())
	assert.Nil(t, loaded.Messages[0].ToolCalls)
	assert.Equal(t, "Added.", loaded.Messages[1].Content.String())
	require.Len(t, loaded.Messages[1].ToolCalls, 1)
	assert.Equal(t, "create_task", loaded.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, "milk", loaded.Messages[1].ToolCalls[0].Args["title"])
	assert.True(t, loaded.Messages[2].Hidden)
	assert.Equal(t, model.ContentStructured, loaded.Messages[2].Content.Kind)

	_, err = s.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateMessage(ctx, conv.ID, model.Message{ID: "missing"}), ErrNotFound)
}
