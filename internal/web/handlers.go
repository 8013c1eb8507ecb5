package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"listen-along/internal/db"
	"listen-along/internal/queue"
	"listen-along/internal/sse"
)

// Submitter validates and executes queue submissions.
type Submitter interface {
	Submit(ctx context.Context, user queue.User, rawURL string) (string, error)
}

// SettingsStore reads and flips the feature flags.
type SettingsStore interface {
	Bool(ctx context.Context, name string) (*bool, error)
	SetBool(ctx context.Context, name string, value bool) error
}

// AuthProvider drives the host account's OAuth flow.
type AuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
}

// Handlers contains the HTTP handlers for the service.
type Handlers struct {
	hub       *sse.Hub
	submitter Submitter
	settings  SettingsStore
	auth      AuthProvider
	adminKey  string
	logger    *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(hub *sse.Hub, submitter Submitter, settings SettingsStore, auth AuthProvider, adminKey string, logger *log.Logger) *Handlers {
	return &Handlers{
		hub:       hub,
		submitter: submitter,
		settings:  settings,
		auth:      auth,
		adminKey:  adminKey,
		logger:    logger,
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Events streams now-playing snapshots to the client (GET /api/events).
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-sub.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// submitRequest is the body of a queue submission.
type submitRequest struct {
	URL string `json:"url"`
}

// submitResponse is the body returned for every queue submission.
type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubmitQueue handles a track submission (POST /api/queue). The submitting
// user is identified by headers set by the fronting proxy.
func (h *Handlers) SubmitQueue(w http.ResponseWriter, r *http.Request) {
	user := queue.User{
		ID:       r.Header.Get("X-User-Id"),
		Name:     r.Header.Get("X-User-Name"),
		Username: r.Header.Get("X-User-Username"),
	}
	if user.ID == "" {
		writeJSON(w, http.StatusUnauthorized, submitResponse{Message: "You are not logged in"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Message: "Invalid request body"})
		return
	}

	msg, err := h.submitter.Submit(r.Context(), user, req.URL)
	if err != nil {
		h.logger.Warn("queue submission rejected", "user", user.ID, "err", err)
		writeJSON(w, http.StatusOK, submitResponse{Message: queue.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Success: true, Message: msg})
}

// ToggleQueue flips whether submissions are accepted (POST /api/settings/queue/toggle).
func (h *Handlers) ToggleQueue(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, db.SettingQueueEnabled)
}

// ToggleListener flips whether the poller mirrors playback (POST /api/settings/listener/toggle).
func (h *Handlers) ToggleListener(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, db.SettingListenerEnabled)
}

// toggle flips a boolean flag. An unset flag counts as enabled, so the first
// toggle always disables.
func (h *Handlers) toggle(w http.ResponseWriter, r *http.Request, name string) {
	cur, err := h.settings.Bool(r.Context(), name)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	next := cur != nil && !*cur
	if err := h.settings.SetBool(r.Context(), name, next); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("setting toggled", "name", name, "enabled", next)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": next})
}

// RequireAdmin gates a route on the shared admin key.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" || r.Header.Get("X-Admin-Key") != h.adminKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Login starts the host account's Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow and stores the host credential
// (GET /auth/callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	if err := h.auth.Exchange(r.Context(), code); err != nil {
		h.logger.Error("exchanging authorization code", "err", err)
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("host account connected")
	w.Write([]byte("Spotify account connected. You can close this tab."))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
