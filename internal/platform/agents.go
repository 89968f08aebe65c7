package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/model"
)

const conversationsPath = "/api/agents/conversations"

type Agents struct {
	c *Client
}

func (a *Agents) CreateConversation(ctx context.Context, agentName string) (*model.Conversation, error) {
	var conv model.Conversation
	body := map[string]string{"agent_name": agentName}
	if err := a.c.do(ctx, http.MethodPost, conversationsPath, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *Agents) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := a.c.do(ctx, http.MethodGet, conversationsPath+"/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddMessage posts a message. The agent's reply is not part of the answer;
// it arrives through SubscribeToConversation.
func (a *Agents) AddMessage(ctx context.Context, conversationID, role string, content model.Content) (*model.Message, error) {
	var msg model.Message
	body := map[string]any{"role": role, "content": content}
	path := conversationsPath + "/" + url.PathEscape(conversationID) + "/messages"
	if err := a.c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SubscribeToConversation calls onUpdate with the full conversation on every
// change until the returned unsubscribe function is called or the stream
// ends. Unsubscribe may be called more than once and from inside onUpdate.
func (a *Agents) SubscribeToConversation(ctx context.Context, conversationID string, onUpdate func(model.Conversation)) (func(), error) {
	wsURL, err := a.subscribeURL(conversationID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	a.c.authorize(header)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, errors.Wrap(err, "opening conversation subscription")
	}

	var (
		once    sync.Once
		mu      sync.Mutex
		stopped bool
	)
	unsubscribe := func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		})
	}

	go func() {
		defer unsubscribe()
		for {
			var conv model.Conversation
			if err := conn.ReadJSON(&conv); err != nil {
				mu.Lock()
				quiet := stopped
				mu.Unlock()
				if !quiet {
					log.Debugf("Conversation %s subscription ended: %v", conversationID, err)
				}
				return
			}
			mu.Lock()
			active := !stopped
			mu.Unlock()
			if active {
				onUpdate(conv)
			}
		}
	}()

	return unsubscribe, nil
}

func (a *Agents) subscribeURL(conversationID string) (string, error) {
	u, err := url.Parse(a.c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parsing server URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + conversationsPath + "/" + url.PathEscape(conversationID) + "/subscribe"
	return u.String(), nil
}
