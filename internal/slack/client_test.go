package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMessage(t *testing.T) {
	var channel, text, token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		channel, text = r.PostForm.Get("channel"), r.PostForm.Get("text")
		token = r.Header.Get("Authorization")
		if token == "" {
			token = "Bearer " + r.PostForm.Get("token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1.2"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, srv.Client()).PostMessage(context.Background(), "xoxb-1", "general", "hello")
	require.NoError(t, err)
	assert.Equal(t, "C1", resp.Channel)
	assert.Equal(t, "1.2", resp.TS)
	assert.Equal(t, "general", channel)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "Bearer xoxb-1", token)
}

func TestPostMessageProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", srv.Client()).PostMessage(context.Background(), "t", "nope", "hi")
	require.Error(t, err)
	code, ok := ProviderError(err)
	assert.True(t, ok)
	assert.Equal(t, "channel_not_found", code)
}

func TestPostMessageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).PostMessage(context.Background(), "t", "c", "hi")
	require.Error(t, err)
	_, ok := ProviderError(err)
	assert.False(t, ok)
}

func TestProviderErrorPlain(t *testing.T) {
	_, ok := ProviderError(errors.New("dial tcp: refused"))
	assert.False(t, ok)
}
