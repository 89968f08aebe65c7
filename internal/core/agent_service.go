package core

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/model"
	"github.com/tasksuite/tasks/internal/store"
)

var (
	ErrUnknownAgent         = errors.New("unknown agent")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessage       = errors.New("invalid message")
	ErrAgentUnavailable     = errors.New("task assistant is not configured")
)

const (
	defaultReplyTimeout = 2 * time.Minute
	defaultMaxSteps     = 5

	replyFailedText = "I'm sorry, I encountered an error while processing your request."
	stepLimitText   = "I couldn't finish that request in time. Please try again with a simpler request."
	emptyReplyText  = "I received an empty response, please try rephrasing your request."
)

type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, agentName string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error
	UpdateMessage(ctx context.Context, conversationID string, msg model.Message) error
}

// Publisher receives the full conversation after every change.
type Publisher interface {
	Publish(conv model.Conversation)
}

// AgentService owns conversation lifecycles. Posting a message returns as
// soon as the message is stored; the agent reply is produced in the
// background and observed only through published updates.
type AgentService struct {
	store    ConversationStore
	model    Model
	hub      Publisher
	agents   map[string]Agent
	maxSteps int
	timeout  time.Duration

	wg sync.WaitGroup

	locksMu sync.Mutex
	locks   map[string]*conversationLock
}

// conversationLock is dropped from the map once nobody holds or waits on it.
type conversationLock struct {
	mu   sync.Mutex
	refs int
}

// NewAgentService wires the service. A nil model disables the assistant.
func NewAgentService(db ConversationStore, m Model, hub Publisher, maxSteps int, agents ...Agent) *AgentService {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	s := &AgentService{
		store:    db,
		model:    m,
		hub:      hub,
		agents:   make(map[string]Agent, len(agents)),
		maxSteps: maxSteps,
		timeout:  defaultReplyTimeout,
		locks:    make(map[string]*conversationLock),
	}
	for _, a := range agents {
		s.agents[a.Name] = a
	}
	return s
}

func (s *AgentService) CreateConversation(ctx context.Context, userID, agentName string) (*model.Conversation, error) {
	if _, ok := s.agents[agentName]; !ok {
		return nil, errors.Wrapf(ErrUnknownAgent, "%q", agentName)
	}
	if s.model == nil {
		return nil, ErrAgentUnavailable
	}
	conv, err := s.store.CreateConversation(ctx, userID, agentName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation in DB")
	}
	return conv, nil
}

// GetConversation returns the conversation if userID owns it.
func (s *AgentService) GetConversation(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// AddMessage appends a user message and starts the agent reply.
func (s *AgentService) AddMessage(ctx context.Context, userID, conversationID, role string, content model.Content) (*model.Message, error) {
	if role != model.RoleUser {
		return nil, errors.Wrapf(ErrInvalidMessage, "role %q cannot be posted", role)
	}
	if content.IsEmpty() {
		return nil, errors.Wrap(ErrInvalidMessage, "message content cannot be empty")
	}

	conv, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	agent, ok := s.agents[conv.AgentName]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAgent, "%q", conv.AgentName)
	}
	if s.model == nil {
		return nil, ErrAgentUnavailable
	}

	msg := model.Message{Role: model.RoleUser, Content: content}
	if err := s.store.AppendMessage(ctx, conversationID, &msg); err != nil {
		return nil, errors.Wrap(err, "failed to store user message")
	}
	s.publish(ctx, conversationID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		replyCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.respond(replyCtx, agent, conversationID)
	}()

	return &msg, nil
}

// Wait blocks until every background reply has finished.
func (s *AgentService) Wait() {
	s.wg.Wait()
}

func (s *AgentService) lock(conversationID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &conversationLock{}
		s.locks[conversationID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, conversationID)
		}
		s.locksMu.Unlock()
	}
}

func (s *AgentService) publish(ctx context.Context, conversationID string) {
	if s.hub == nil {
		return
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		log.Errorf("Failed to load conversation %s for publishing: %v", conversationID, err)
		return
	}
	s.hub.Publish(*conv)
}

// respond runs the agent loop for the user messages not answered yet.
// Replies on one conversation are serialized, so a run queued behind another
// that already answered its message has nothing to do.
func (s *AgentService) respond(ctx context.Context, agent Agent, conversationID string) {
	unlock := s.lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		log.Errorf("Failed to load conversation %s: %v", conversationID, err)
		return
	}
	history := buildHistory(conv.Messages)
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		log.Debugf("No unanswered message in conversation %s", conversationID)
		return
	}

	reply := model.Message{Role: model.RoleAssistant}
	if err := s.store.AppendMessage(ctx, conversationID, &reply); err != nil {
		log.Errorf("Failed to store assistant placeholder for conversation %s: %v", conversationID, err)
		return
	}
	s.publish(ctx, conversationID)

	save := func() {
		if err := s.store.UpdateMessage(ctx, conversationID, reply); err != nil {
			log.Errorf("Failed to update assistant message %s: %v", reply.ID, err)
			return
		}
		s.publish(ctx, conversationID)
	}

	for step := 0; step < s.maxSteps; step++ {
		turn, err := s.model.Generate(ctx, agent.Instructions, agent.declarations(), history)
		if err != nil {
			log.Errorf("Error generating model response for conversation %s: %v", conversationID, err)
			reply.Content = model.TextContent(replyFailedText)
			save()
			return
		}
		history = append(history, turn)

		text, calls := splitParts(turn)
		if len(calls) == 0 {
			if text == "" {
				text = emptyReplyText
			}
			reply.Content = model.TextContent(text)
			save()
			return
		}
		if text != "" {
			reply.Content = model.TextContent(text)
		}

		responses := make([]genai.Part, 0, len(calls))
		results := make([]map[string]any, 0, len(calls))
		for _, call := range calls {
			reply.ToolCalls = append(reply.ToolCalls, model.ToolCall{
				Name:   call.Name,
				Args:   call.Args,
				Status: model.ToolCallRunning,
			})
			idx := len(reply.ToolCalls) - 1
			save()

			result, err := agent.call(ctx, call.Name, call.Args)
			if err != nil {
				log.Warnf("Tool %s failed in conversation %s: %v", call.Name, conversationID, err)
				reply.ToolCalls[idx].Status = model.ToolCallFailed
				result = map[string]any{"error": err.Error()}
			} else {
				reply.ToolCalls[idx].Status = model.ToolCallCompleted
			}
			if encoded, err := json.Marshal(result); err == nil {
				reply.ToolCalls[idx].Results = string(encoded)
			}
			save()

			responses = append(responses, genai.FunctionResponse{Name: call.Name, Response: result})
			results = append(results, map[string]any{"name": call.Name, "response": result})
		}

		s.recordToolResults(ctx, conversationID, results)
		history = append(history, &genai.Content{Role: "user", Parts: responses})
	}

	log.Warnf("Agent step limit (%d) reached for conversation %s", s.maxSteps, conversationID)
	if reply.Content.IsEmpty() {
		reply.Content = model.TextContent(stepLimitText)
	}
	save()
}

// recordToolResults keeps what the tools returned as a hidden message.
func (s *AgentService) recordToolResults(ctx context.Context, conversationID string, results []map[string]any) {
	content, err := model.StructuredContent(map[string]any{"tool_results": results})
	if err != nil {
		log.Errorf("Failed to encode tool results: %v", err)
		return
	}
	hidden := model.Message{Role: model.RoleUser, Content: content, Hidden: true}
	if err := s.store.AppendMessage(ctx, conversationID, &hidden); err != nil {
		log.Errorf("Failed to store tool results for conversation %s: %v", conversationID, err)
	}
}

// buildHistory turns visible text messages into model turns, merging
// consecutive messages of one role into a single turn. Tool traffic of
// earlier replies is not replayed.
func buildHistory(msgs []model.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Hidden || m.Content.IsEmpty() {
			continue
		}
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		part := genai.Text(m.Content.String())
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, part)
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{part}})
	}
	return history
}

func splitParts(turn *genai.Content) (string, []genai.FunctionCall) {
	if turn == nil {
		return "", nil
	}
	var text strings.Builder
	var calls []genai.FunctionCall
	for _, part := range turn.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			calls = append(calls, p)
		case *genai.FunctionCall:
			calls = append(calls, *p)
		default:
			log.Debugf("Ignoring model response part of type %T", part)
		}
	}
	return strings.TrimSpace(text.String()), calls
}
