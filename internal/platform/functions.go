package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

type Functions struct {
	c *Client
}

// Invoke calls the named function with payload as its JSON body and returns
// the raw JSON answer.
func (f *Functions) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var raw json.RawMessage
	if err := f.c.do(ctx, http.MethodPost, "/api/functions/"+url.PathEscape(name), payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
