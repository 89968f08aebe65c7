// Package chatpanel is the floating assistant chat: it opens a conversation
// with the task agent, follows its live updates and sends user messages.
package chatpanel

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/model"
	"github.com/tasksuite/tasks/internal/platform"
)

// AgentName is the agent every conversation is opened with.
const AgentName = "task_manager"

const startFailedText = "Failed to start conversation. Please try again."

type AuthService interface {
	Me(ctx context.Context) (*model.User, error)
}

type AgentService interface {
	CreateConversation(ctx context.Context, agentName string) (*model.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role string, content model.Content) (*model.Message, error)
	SubscribeToConversation(ctx context.Context, conversationID string, onUpdate func(model.Conversation)) (func(), error)
}

type Status int

const (
	Closed Status = iota
	Loading
	Unauthenticated
	Failed
	Ready
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Failed:
		return "error"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

type State struct {
	Status         Status
	ConversationID string
	Messages       []model.Message
	Input          string
	Sending        bool
	Error          string
}

func (s State) Open() bool { return s.Status != Closed }

// InputEnabled reports whether the user can type and send.
func (s State) InputEnabled() bool {
	return s.Status == Ready && !s.Sending && s.ConversationID != ""
}

// Visible is the message list as displayed.
func (s State) Visible() []model.Message {
	return model.VisibleMessages(s.Messages)
}

type Panel struct {
	auth   AuthService
	agents AgentService

	// OnTasksChanged runs after every conversation update, since agent
	// tools may have changed the task list.
	OnTasksChanged func()
	// OnChange runs after any state change made outside a direct call.
	OnChange func()

	mu          sync.Mutex
	state       State
	generation  int
	unsubscribe func()
}

func New(auth AuthService, agents AgentService) *Panel {
	return &Panel{auth: auth, agents: agents}
}

func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Messages = append([]model.Message(nil), p.state.Messages...)
	return s
}

// Open starts a fresh conversation. Without a signed-in user the panel
// stays unauthenticated and no conversation is created.
func (p *Panel) Open(ctx context.Context) {
	p.mu.Lock()
	if p.state.Status != Closed {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	p.state = State{Status: Loading}
	p.mu.Unlock()

	user, err := p.auth.Me(ctx)
	if err != nil || user == nil {
		if err != nil {
			log.Debugf("Chat opened without a session: %v", err)
		}
		p.update(gen, func(s *State) { s.Status = Unauthenticated })
		return
	}
	p.start(ctx, gen)
}

// Close drops the conversation and stops listening to it.
func (p *Panel) Close() {
	p.mu.Lock()
	p.generation++
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.state = State{Status: Closed}
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// NewConversation discards the current messages and moves to a new
// conversation.
func (p *Panel) NewConversation(ctx context.Context) {
	p.mu.Lock()
	if p.state.Status != Ready && p.state.Status != Failed {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.state = State{Status: Loading, Input: p.state.Input}
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.start(ctx, gen)
}

func (p *Panel) start(ctx context.Context, gen int) {
	conv, err := p.agents.CreateConversation(ctx, AgentName)
	if err != nil {
		p.fail(gen, err)
		return
	}

	unsubscribe, err := p.agents.SubscribeToConversation(ctx, conv.ID, func(c model.Conversation) {
		p.receive(gen, c)
	})
	if err != nil {
		p.fail(gen, err)
		return
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		unsubscribe()
		return
	}
	p.unsubscribe = unsubscribe
	p.state.Status = Ready
	p.state.ConversationID = conv.ID
	if p.state.Messages == nil {
		p.state.Messages = conv.Messages
	}
	p.state.Error = ""
	p.mu.Unlock()
}

func (p *Panel) receive(gen int, conv model.Conversation) {
	p.mu.Lock()
	if gen != p.generation || (p.state.ConversationID != "" && conv.ID != p.state.ConversationID) {
		p.mu.Unlock()
		return
	}
	p.state.Messages = conv.Messages
	p.mu.Unlock()

	if p.OnTasksChanged != nil {
		p.OnTasksChanged()
	}
	p.changed()
}

func (p *Panel) fail(gen int, err error) {
	log.Errorf("Failed to initialize conversation: %v", err)
	p.update(gen, func(s *State) {
		if isAuthError(err) {
			s.Status = Unauthenticated
			return
		}
		s.Status = Failed
		s.Error = startFailedText
	})
}

func (p *Panel) update(gen int, fn func(*State)) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	fn(&p.state)
	p.mu.Unlock()
	p.changed()
}

func (p *Panel) changed() {
	if p.OnChange != nil {
		p.OnChange()
	}
}

func (p *Panel) SetInput(text string) {
	p.mu.Lock()
	p.state.Input = text
	p.mu.Unlock()
}

// Send posts the input as a user message. The input is cleared at once and
// restored if posting fails. The reply only shows up through the
// subscription.
func (p *Panel) Send(ctx context.Context) error {
	p.mu.Lock()
	text := strings.TrimSpace(p.state.Input)
	if text == "" || p.state.ConversationID == "" || p.state.Sending || p.state.Status != Ready {
		p.mu.Unlock()
		return nil
	}
	original := p.state.Input
	conversationID := p.state.ConversationID
	gen := p.generation
	p.state.Input = ""
	p.state.Sending = true
	p.mu.Unlock()

	_, err := p.agents.AddMessage(ctx, conversationID, model.RoleUser, model.TextContent(text))

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return errors.Wrap(err, "failed to send message")
	}
	p.state.Sending = false
	if err != nil {
		p.state.Input = original
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

func isAuthError(err error) bool {
	if platform.StatusCode(err) == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "authenticated")
}
