// Package slack posts chat messages through the Slack Web API.
package slack

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

const DefaultBaseURL = "https://slack.com/api"

// Client posts with a token supplied per call, since the token comes from a
// connector rather than from configuration.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{apiURL: strings.TrimRight(baseURL, "/") + "/", httpClient: httpClient}
}

// PostMessageResponse identifies the posted message.
type PostMessageResponse struct {
	Channel string
	TS      string
}

// PostMessage sends text to channel. A rejection by Slack, e.g.
// "channel_not_found", is returned as an error that ProviderError recognizes.
func (c *Client) PostMessage(ctx context.Context, token, channel, text string) (*PostMessageResponse, error) {
	api := slack.New(token, slack.OptionAPIURL(c.apiURL), slack.OptionHTTPClient(c.httpClient))

	start := time.Now()
	respChannel, ts, err := api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	log.WithFields(log.Fields{
		"channel": channel,
		"ok":      err == nil,
		"latency": time.Since(start),
	}).Debug("slack chat.postMessage")
	if err != nil {
		if _, ok := ProviderError(err); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, "chat.postMessage request failed")
	}
	return &PostMessageResponse{Channel: respChannel, TS: ts}, nil
}

// ProviderError reports the Slack error code when err is a rejection by the
// Web API rather than a transport failure.
func ProviderError(err error) (string, bool) {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err, true
	}
	return "", false
}
