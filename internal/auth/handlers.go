package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	domainerrors "github.com/iruldev/edge-gateway/internal/domain/errors"
	"github.com/iruldev/edge-gateway/internal/filters"
	"github.com/iruldev/edge-gateway/internal/observability"
	"github.com/iruldev/edge-gateway/internal/session"
)

// TokenRefresher exchanges a refresh token for a fresh access token at the
// identity provider. Implemented by Authenticator; nil when the OIDC
// integration is disabled.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (accessToken string, expiry time.Time, err error)
}

// createSessionRequest is the body of POST /auth/session: a direct token
// post from a client that already completed an OAuth exchange elsewhere.
type createSessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type refreshResponse struct {
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// sessionView is the shape returned by GET /auth/session — it never
// includes the raw access/refresh tokens.
type sessionView struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Handler groups the /auth/* HTTP handlers: the sole writers to the
// Session Store. Every session lifecycle change emits an audit event.
type Handler struct {
	sessions   session.Store
	refresher  TokenRefresher
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewHandler builds the /auth/* handler set. refresher may be nil when no
// identity provider is configured; /auth/refresh then reports the identity
// service as unavailable.
func NewHandler(sessions session.Store, refresher TokenRefresher, refreshTTL time.Duration, logger *zap.Logger) *Handler {
	return &Handler{sessions: sessions, refresher: refresher, refreshTTL: refreshTTL, logger: logger}
}

func (h *Handler) audit(ctx context.Context, action observability.AuditAction, actorID, status, errMsg string) {
	event := observability.NewAuditEvent(ctx, action, "session", actorID, nil)
	event.Status = status
	event.Error = errMsg
	event.RequestID = filters.TraceIDFromContext(ctx)
	observability.LogAudit(ctx, h.logger, event)
}

// Mount registers /auth/session, /auth/refresh and /auth/logout on r, and —
// when a is non-nil — the OIDC login/callback routes, behind a coarse
// per-IP login-attempt throttle distinct from the gateway's main Rate
// Limit Engine.
func Mount(r chi.Router, h *Handler, a *Authenticator) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.Get("/session", h.GetSession)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})

	if a != nil {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Get("/oauth2/authorization/{provider}", a.BeginLogin)
			r.Get("/login/oauth2/code/{provider}", a.HandleCallback)
		})
	}
}

// CreateSession handles POST /auth/session: it binds a caller-supplied
// token pair to a new opaque session id and sets the session cookie. The
// session id is only returned once the L2 write has been acknowledged;
// a cache-store outage here fails the login outright rather than handing
// out a session that would vanish on the next replica restart.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		filters.WriteErrorCode(w, r, domainerrors.CodeBadRequest, "access_token is required")
		return
	}

	now := time.Now()
	accessExp := now.Add(time.Duration(req.ExpiresIn) * time.Second)
	if req.ExpiresIn <= 0 {
		accessExp = tokenExpiry(req.AccessToken, now.Add(15*time.Minute))
	}

	rec := session.Record{
		UserID:       tokenSubject(req.AccessToken),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		AccessExp:    accessExp,
		RefreshExp:   now.Add(h.refreshTTL),
	}

	created, err := h.sessions.Create(r.Context(), rec)
	if err != nil {
		h.audit(r.Context(), observability.ActionLogin, rec.UserID, "failure", "session persist failed")
		filters.WriteErrorCode(w, r, domainerrors.CodeSessionPersistError, "session could not be persisted")
		return
	}
	h.audit(r.Context(), observability.ActionLogin, created.UserID, "success", "")

	SetSessionCookie(w, created.ID, h.refreshTTL)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: created.ID})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sid := sessionIDFromRequest(r)
	if sid == "" {
		filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "no session")
		return
	}

	rec, err := h.sessions.Lookup(r.Context(), sid)
	if err != nil {
		filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "session not found or expired")
		return
	}

	writeJSON(w, http.StatusOK, sessionView{UserID: rec.UserID, ExpiresAt: rec.AccessExp})
}

// Refresh handles POST /auth/refresh: it exchanges the session's stored
// refresh token at the identity provider and swaps the new access token
// into the Session Store. A rejected refresh token destroys the session —
// the client must authenticate from scratch.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sid := sessionIDFromRequest(r)
	if sid == "" {
		filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "no session")
		return
	}

	rec, err := h.sessions.Lookup(r.Context(), sid)
	if err != nil {
		filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "session not found or expired")
		return
	}

	if h.refresher == nil {
		filters.WriteErrorCode(w, r, domainerrors.CodeIdentityUnavailable, "no identity provider configured")
		return
	}

	newAccess, newExp, err := h.refresher.RefreshTokens(r.Context(), rec.RefreshToken)
	if err != nil {
		_ = h.sessions.Delete(r.Context(), sid)
		clearSessionCookie(w)
		h.audit(r.Context(), observability.ActionUpdate, rec.UserID, "failure", "refresh rejected")
		filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "refresh rejected by identity provider")
		return
	}

	updated, err := h.sessions.Refresh(r.Context(), sid, newAccess, newExp)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			filters.WriteErrorCode(w, r, domainerrors.CodeUnauthorized, "session not found or expired")
			return
		}
		filters.WriteErrorCode(w, r, domainerrors.CodeSessionPersistError, "session could not be persisted")
		return
	}

	h.audit(r.Context(), observability.ActionUpdate, updated.UserID, "success", "")
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessExpiresAt:  updated.AccessExp,
		RefreshExpiresAt: updated.RefreshExp,
	})
}

// Logout is idempotent: an unknown or already-deleted session still gets a
// 204 and a cleared cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := sessionIDFromRequest(r); sid != "" {
		actor := ""
		if rec, err := h.sessions.Lookup(r.Context(), sid); err == nil {
			actor = rec.UserID
		}
		_ = h.sessions.Delete(r.Context(), sid)
		h.audit(r.Context(), observability.ActionDelete, actor, "success", "")
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// SetSessionCookie writes the SESSION_ID cookie with the hardened
// attributes every session-issuing handler uses.
func SetSessionCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     "SESSION_ID",
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: "SESSION_ID", Value: "", Path: "/", HttpOnly: true,
		Secure: true, SameSite: http.SameSiteStrictMode, MaxAge: -1,
	})
}

func sessionIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie("SESSION_ID"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Session-Id")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
