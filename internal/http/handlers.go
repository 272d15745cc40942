package http

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/auth"
	"github.com/osucord/linkedroles/internal/database"
	"github.com/osucord/linkedroles/internal/linking"
	"github.com/osucord/linkedroles/internal/models"
)

// SessionCookie is the name of the browser session cookie
const SessionCookie = "linkedroles_session"

// SessionStore resolves and removes browser sessions.
type SessionStore interface {
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// AccountLinker runs one linking attempt for a signed-in user.
type AccountLinker interface {
	Link(ctx context.Context, userID string, retry bool) linking.Outcome
}

// SignInFlow starts and completes provider sign-ins.
type SignInFlow interface {
	Begin(ctx context.Context, providerID, userID string) (string, error)
	Complete(ctx context.Context, providerID, state, code string) (*models.Session, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	signIn        SignInFlow
	linker        AccountLinker
	sessions      SessionStore
	health        HealthChecker
	secureCookies bool
	logger        *zap.Logger
}

// NewHandlers creates a new handlers instance. secureCookies should be
// true everywhere except local development over plain HTTP.
func NewHandlers(signIn SignInFlow, linker AccountLinker, sessions SessionStore, health HealthChecker, secureCookies bool, logger *zap.Logger) *Handlers {
	return &Handlers{
		signIn:        signIn,
		linker:        linker,
		sessions:      sessions,
		health:        health,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HealthHandler handles health check requests
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("unhealthy")); err != nil {
			h.logger.Error("failed to write health check response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", zap.Error(err))
	}
}

// LinkHandler runs a linking attempt for the current session and turns
// the outcome into a redirect or a rendered page. Without a session the
// flow starts at osu! sign-in.
func (h *Handlers) LinkHandler(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionUserID(r)
	if userID == "" {
		http.Redirect(w, r, "/auth/signin/osu", http.StatusFound)
		return
	}

	retry := r.URL.Query().Get("retry") == "1"
	outcome := h.linker.Link(r.Context(), userID, retry)

	switch outcome.Kind {
	case linking.OutcomeNeedSignIn:
		http.Redirect(w, r, "/auth/signin/"+outcome.Provider, http.StatusFound)
	case linking.OutcomeRetry:
		http.Redirect(w, r, "/link?retry=1", http.StatusFound)
	case linking.OutcomeDone:
		h.renderSuccess(w)
	default:
		h.renderError(w, "Linking failed", outcome.Message)
	}
}

// SignInHandler starts a provider authorization and redirects the
// browser to the provider's consent screen.
func (h *Handlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")

	authURL, err := h.signIn.Begin(r.Context(), providerID, h.sessionUserID(r))
	if err != nil {
		h.logger.Error("failed to begin sign-in", zap.String("provider", providerID), zap.Error(err))
		h.renderError(w, "Sign-in failed", "Could not start the sign-in flow. Please try again.")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler handles the OAuth callback from a provider
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		errDesc := r.URL.Query().Get("error_description")
		h.logger.Warn("oauth error from provider",
			zap.String("provider", providerID),
			zap.String("error", errParam),
			zap.String("description", errDesc),
		)
		h.renderError(w, "Authentication failed", "The provider reported an error. Please try again.")
		return
	}

	if code == "" || state == "" {
		h.renderError(w, "Invalid request", "Missing required parameters (code or state)")
		return
	}

	session, err := h.signIn.Complete(r.Context(), providerID, state, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidState) {
			h.renderError(w, "Authentication failed", "The sign-in link expired. Please start over.")
			return
		}
		h.logger.Error("failed to complete sign-in",
			zap.String("provider", providerID),
			zap.Error(err),
		)
		h.renderError(w, "Authentication failed", "Failed to complete authentication. Please try again.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/link", http.StatusFound)
}

// IndexHandler renders the landing page
func (h *Handlers) IndexHandler(w http.ResponseWriter, _ *http.Request) {
	h.renderIndex(w)
}

// PrivacyHandler renders the privacy notice
func (h *Handlers) PrivacyHandler(w http.ResponseWriter, _ *http.Request) {
	h.renderPrivacy(w)
}

// sessionUserID resolves the session cookie to a user id, returning an
// empty string for missing, unknown or expired sessions. Expired
// sessions are deleted on sight.
func (h *Handlers) sessionUserID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}

	session, err := h.sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			h.logger.Error("failed to load session", zap.Error(err))
		}
		return ""
	}

	if session.IsExpired() {
		if err := h.sessions.DeleteSession(r.Context(), session.Token); err != nil {
			h.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return ""
	}

	return session.UserID
}
