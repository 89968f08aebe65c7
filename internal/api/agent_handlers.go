package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/core"
	"github.com/tasksuite/tasks/internal/httputil"
	"github.com/tasksuite/tasks/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type CreateConversationRequest struct {
	AgentName string `json:"agent_name"`
}

type AddMessageRequest struct {
	Role    string        `json:"role"`
	Content model.Content `json:"content"`
}

func writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownAgent), errors.Is(err, core.ErrInvalidMessage):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrConversationNotFound):
		httputil.WriteError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, core.ErrAgentUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorf("Agent request failed: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to process conversation")
	}
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	conv, err := h.agents.CreateConversation(r.Context(), user.ID, req.AgentName)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.agents.GetConversation(r.Context(), conversationID, user.ID)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conv)
}

// AddMessageHandler stores the message and returns at once. The reply
// arrives through the conversation subscription.
func (h *APIHandler) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = model.RoleUser
	}

	msg, err := h.agents.AddMessage(r.Context(), user.ID, conversationID, req.Role, req.Content)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

// SubscribeHandler streams the full conversation over a websocket on every
// change, starting with the current state.
func (h *APIHandler) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	if _, err := h.agents.GetConversation(r.Context(), conversationID, user.ID); err != nil {
		writeAgentError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(conversationID)
	defer cancel()
	log.Debugf("Subscriber attached to conversation %s", conversationID)

	// Read after subscribing so no update falls in between.
	conv, err := h.agents.GetConversation(r.Context(), conversationID, user.ID)
	if err != nil {
		log.Errorf("Error loading conversation %s: %v", conversationID, err)
		return
	}

	// The client never sends data; reading only notices the close.
	done := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(c model.Conversation) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(c); err != nil {
			log.Debugf("Subscriber of conversation %s went away: %v", conversationID, err)
			return false
		}
		return true
	}
	if !write(*conv) {
		return
	}

	for {
		select {
		case c, ok := <-updates:
			if !ok || !write(c) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Debugf("Subscriber detached from conversation %s", conversationID)
			return
		}
	}
}
