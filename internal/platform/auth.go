package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tasksuite/tasks/internal/model"
)

// DefaultProvider is the login provider offered by the server.
const DefaultProvider = "google"

type Auth struct {
	c *Client
}

// Me returns the signed-in user. Without a valid session it fails with an
// *APIError carrying status 401.
func (a *Auth) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := a.c.do(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginURL is where to send the user to sign in; the server redirects back
// to returnURL afterwards.
func (a *Auth) LoginURL(provider, returnURL string) string {
	if provider == "" {
		provider = DefaultProvider
	}
	u := a.c.baseURL + "/api/auth/login/" + url.PathEscape(provider)
	if returnURL != "" {
		u += "?from_url=" + url.QueryEscape(returnURL)
	}
	return u
}

// LogoutURL clears the browser session and returns to returnURL.
func (a *Auth) LogoutURL(returnURL string) string {
	u := a.c.baseURL + "/api/auth/logout"
	if returnURL != "" {
		u += "?from_url=" + url.QueryEscape(returnURL)
	}
	return u
}

// TokenURL shows a session token for the browser login, for clients that
// authenticate with a bearer token.
func (a *Auth) TokenURL() string {
	return a.c.baseURL + "/api/auth/token"
}
