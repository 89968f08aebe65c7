package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/auth"
	"github.com/tasksuite/tasks/internal/httputil"
	"github.com/tasksuite/tasks/internal/model"
)

type TokenResponse struct {
	Token string `json:"token"`
}

func (h *APIHandler) provider(w http.ResponseWriter, r *http.Request) (auth.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "unknown login provider: "+name)
	}
	return p, ok
}

// returnURL keeps redirects on this server. Anything else falls back to the
// public root.
func (h *APIHandler) returnURL(raw string) string {
	fallback := h.publicURL + "/"
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if !u.IsAbs() {
		if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
			return h.publicURL + raw
		}
		return fallback
	}
	if !strings.HasPrefix(raw, h.publicURL+"/") && raw != h.publicURL {
		return fallback
	}
	return raw
}

func (h *APIHandler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(h.publicURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
}

// LoginHandler redirects to the provider's consent page.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	state, err := h.issuer.GenerateState(h.returnURL(r.URL.Query().Get("from_url")))
	if err != nil {
		log.Errorf("Error generating OAuth state: %v", err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to start login")
		return
	}
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler completes the login, stores the user and sets the session
// cookie before returning to the page the login started from.
func (h *APIHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		httputil.WriteError(w, http.StatusUnauthorized, "Login was cancelled: "+errParam)
		return
	}
	returnTo, err := h.issuer.ValidateState(query.Get("state"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid login state")
		return
	}
	code := query.Get("code")
	if code == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("Error exchanging authorization code: %v", err)
		httputil.WriteError(w, http.StatusBadGateway, "Failed to complete login")
		return
	}

	user, err := h.store.UpsertUser(r.Context(), model.User{Email: profile.Email, FullName: profile.Name})
	if err != nil {
		log.Errorf("Error storing user %s: %v", profile.Email, err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to store user")
		return
	}

	token, err := h.issuer.GenerateSession(user.ID)
	if err != nil {
		log.Errorf("Error generating session for user %s: %v", user.ID, err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	log.Infof("User %s logged in", user.Email)

	h.setSessionCookie(w, token, int((24 * time.Hour).Seconds()))
	http.Redirect(w, r, h.returnURL(returnTo), http.StatusFound)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, h.returnURL(r.URL.Query().Get("from_url")), http.StatusFound)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, user)
}

// TokenHandler issues a fresh session token for the current user, so
// clients that cannot hold the cookie can reuse a browser login.
func (h *APIHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	token, err := h.issuer.GenerateSession(user.ID)
	if err != nil {
		log.Errorf("Error generating session for user %s: %v", user.ID, err)
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}
