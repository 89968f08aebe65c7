package core

import (
	"context"
	"sync"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksuite/tasks/internal/hub"
	"github.com/tasksuite/tasks/internal/model"
	"github.com/tasksuite/tasks/internal/store"
)

// scriptedModel replays canned turns and records the histories it was given.
type scriptedModel struct {
	mu        sync.Mutex
	turns     []*genai.Content
	err       error
	histories [][]*genai.Content
}

func (m *scriptedModel) Generate(_ context.Context, _ string, _ []*genai.Tool, history []*genai.Content) (*genai.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, append([]*genai.Content(nil), history...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.turns) == 0 {
		return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text("done")}}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	return turn, nil
}

func textTurn(s string) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(s)}}
}

func callTurn(name string, args map[string]any) *genai.Content {
	return &genai.Content{Role: "model", Parts: []genai.Part{genai.FunctionCall{Name: name, Args: args}}}
}

func newTestService(t *testing.T, m Model) (*AgentService, *store.SQLiteStore, *hub.Hub) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.UpsertUser(context.Background(), model.User{ID: "u1", Email: "ada@example.com", FullName: "Ada"})
	require.NoError(t, err)

	h := hub.New()
	svc := NewAgentService(db, m, h, 5, NewTaskManagerAgent(db))
	return svc, db, h
}

func TestCreateConversationRejectsUnknownAgent(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedModel{})

	_, err := svc.CreateConversation(context.Background(), "u1", "nope")
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestCreateConversationWithoutModel(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.CreateConversation(context.Background(), "u1", TaskManagerAgent)
	assert.True(t, errors.Is(err, ErrAgentUnavailable))
}

func TestGetConversationChecksOwner(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedModel{})
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)

	got, err := svc.GetConversation(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, TaskManagerAgent, got.AgentName)

	_, err = svc.GetConversation(ctx, conv.ID, "someone-else")
	assert.True(t, errors.Is(err, ErrConversationNotFound))

	_, err = svc.GetConversation(ctx, "missing", "u1")
	assert.True(t, errors.Is(err, ErrConversationNotFound))
}

func TestAddMessageValidates(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedModel{})
	ctx := context.Background()
	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleAssistant, model.TextContent("hi"))
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent(""))
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestAgentReplyWithText(t *testing.T) {
	m := &scriptedModel{turns: []*genai.Content{textTurn("Hello! How can I help with your tasks?")}}
	svc, db, h := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)
	updates, cancel := h.Subscribe(conv.ID)
	defer cancel()

	msg, err := svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("hi"))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	svc.Wait()

	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, model.RoleUser, stored.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, stored.Messages[1].Role)
	assert.Equal(t, "Hello! How can I help with your tasks?", stored.Messages[1].Content.Text)

	latest := <-updates
	require.Len(t, latest.Messages, 2)
	assert.False(t, latest.Messages[1].Thinking())

	require.Len(t, m.histories, 1)
	require.Len(t, m.histories[0], 1)
	assert.Equal(t, "user", m.histories[0][0].Role)
}

func TestAgentReplyRunsTools(t *testing.T) {
	m := &scriptedModel{turns: []*genai.Content{
		callTurn("create_task", map[string]any{"title": "Buy milk"}),
		textTurn("I added \"Buy milk\" to your list."),
	}}
	svc, db, _ := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("add buy milk"))
	require.NoError(t, err)
	svc.Wait()

	tasks, err := db.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)

	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	visible := model.VisibleMessages(stored.Messages)
	require.Len(t, visible, 2)
	reply := visible[1]
	assert.Equal(t, "I added \"Buy milk\" to your list.", reply.Content.Text)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "create_task", reply.ToolCalls[0].Name)
	assert.Equal(t, model.ToolCallCompleted, reply.ToolCalls[0].Status)
	assert.Contains(t, reply.ToolCalls[0].Results, "Buy milk")

	require.Len(t, stored.Messages, 3, "tool results are kept as a hidden message")
	assert.True(t, stored.Messages[2].Hidden)

	require.Len(t, m.histories, 2)
	second := m.histories[1]
	last := second[len(second)-1]
	assert.Equal(t, "user", last.Role)
	_, ok := last.Parts[0].(genai.FunctionResponse)
	assert.True(t, ok, "tool output goes back as a function response")
}

func TestAgentReplyMarksFailedTool(t *testing.T) {
	m := &scriptedModel{turns: []*genai.Content{
		callTurn("delete_task", map[string]any{"id": "missing"}),
		textTurn("I couldn't find that task."),
	}}
	svc, db, _ := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("delete it"))
	require.NoError(t, err)
	svc.Wait()

	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	reply := model.VisibleMessages(stored.Messages)[1]
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, model.ToolCallFailed, reply.ToolCalls[0].Status)
	assert.Contains(t, reply.ToolCalls[0].Results, "error")
}

func TestAgentReplyOnModelError(t *testing.T) {
	m := &scriptedModel{err: errors.New("quota exceeded")}
	svc, db, _ := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("hi"))
	require.NoError(t, err)
	svc.Wait()

	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, replyFailedText, stored.Messages[1].Content.Text)
}

func TestAgentReplyStopsAtStepLimit(t *testing.T) {
	var turns []*genai.Content
	for i := 0; i < 10; i++ {
		turns = append(turns, callTurn("list_tasks", nil))
	}
	m := &scriptedModel{turns: turns}
	svc, db, _ := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("loop"))
	require.NoError(t, err)
	svc.Wait()

	assert.Len(t, m.histories, 5)
	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	reply := model.VisibleMessages(stored.Messages)[1]
	assert.Equal(t, stepLimitText, reply.Content.Text)
	assert.Len(t, reply.ToolCalls, 5)
}

func TestBuildHistorySkipsHiddenAndEmpty(t *testing.T) {
	hiddenContent, err := model.StructuredContent(map[string]any{"tool_results": []any{}})
	require.NoError(t, err)

	history := buildHistory([]model.Message{
		{Role: model.RoleUser, Content: model.TextContent("add milk")},
		{Role: model.RoleAssistant, Content: model.TextContent("Added.")},
		{Role: model.RoleUser, Content: hiddenContent, Hidden: true},
		{Role: model.RoleAssistant},
		{Role: model.RoleUser, Content: model.TextContent("thanks")},
	})

	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("thanks"), history[2].Parts[0])
}

func TestQueuedRepliesAnswerOnce(t *testing.T) {
	m := &scriptedModel{turns: []*genai.Content{textTurn("Added milk and eggs.")}}
	svc, db, _ := newTestService(t, m)
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", TaskManagerAgent)
	require.NoError(t, err)

	// Both replies queue behind a reply still in progress.
	unlock := svc.lock(conv.ID)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("add milk"))
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, "u1", conv.ID, model.RoleUser, model.TextContent("and eggs"))
	require.NoError(t, err)
	unlock()
	svc.Wait()

	require.Len(t, m.histories, 1)
	history := m.histories[0]
	require.Len(t, history, 1)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("add milk"), genai.Text("and eggs")}, history[0].Parts)

	stored, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 3)
	assert.Equal(t, "Added milk and eggs.", stored.Messages[2].Content.Text)
}

func TestConversationLocksArePruned(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedModel{})

	unlock := svc.lock("c1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.lock("c1")()
	}()
	unlock()
	<-done

	svc.locksMu.Lock()
	defer svc.locksMu.Unlock()
	assert.Empty(t, svc.locks)
}

func TestBuildHistoryMergesSameRole(t *testing.T) {
	history := buildHistory([]model.Message{
		{Role: model.RoleUser, Content: model.TextContent("add milk")},
		{Role: model.RoleAssistant, Content: model.TextContent("Added.")},
		{Role: model.RoleUser, Content: model.TextContent("and eggs")},
		{Role: model.RoleUser, Content: model.TextContent("and bread")},
	})

	require.Len(t, history, 3)
	assert.Equal(t, "user", history[2].Role)
	assert.Len(t, history[2].Parts, 2)
}
