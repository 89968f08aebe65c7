package functions

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/connector"
	"github.com/tasksuite/tasks/internal/httputil"
	"github.com/tasksuite/tasks/internal/slack"
)

const (
	NotifyTaskCompletedName = "notify-slack-task-completed"

	slackConnector = "slack"
)

// MessagePoster posts a chat message with a bearer token. A rejection by
// the provider is an error recognized by slack.ProviderError.
type MessagePoster interface {
	PostMessage(ctx context.Context, token, channel, text string) (*slack.PostMessageResponse, error)
}

type NotifyRequest struct {
	TaskTitle string `json:"taskTitle"`
}

type NotifyResponse struct {
	Success bool `json:"success"`
}

// NotifyTaskCompleted announces a completed task on the messaging channel.
type NotifyTaskCompleted struct {
	connector connector.Connector
	poster    MessagePoster
	channel   string
}

func NewNotifyTaskCompleted(conn connector.Connector, poster MessagePoster, channel string) *NotifyTaskCompleted {
	return &NotifyTaskCompleted{connector: conn, poster: poster, channel: channel}
}

func (f *NotifyTaskCompleted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskTitle == "" {
		httputil.WriteError(w, http.StatusBadRequest, "taskTitle is required")
		return
	}

	token, err := f.connector.AccessToken(r.Context(), slackConnector)
	if err != nil {
		log.Errorf("Failed to resolve %s token: %v", slackConnector, err)
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := f.poster.PostMessage(r.Context(), token, f.channel, "Task completed: "+req.TaskTitle); err != nil {
		if code, ok := slack.ProviderError(err); ok {
			httputil.WriteError(w, http.StatusBadRequest, code)
			return
		}
		log.Errorf("Failed to post completion of %q: %v", req.TaskTitle, err)
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NotifyResponse{Success: true})
}
