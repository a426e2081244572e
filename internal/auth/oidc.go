// Package auth implements the Auth Endpoints: the authorization-code+PKCE
// OIDC login flow and the /auth/session, /auth/refresh, /auth/logout
// routes. These handlers are the sole writers to the Session Store
// in this process.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iruldev/edge-gateway/internal/config"
	"github.com/iruldev/edge-gateway/internal/observability"
	"github.com/iruldev/edge-gateway/internal/session"
)

// Authenticator wraps the OIDC provider/verifier and oauth2 config the
// gateway's login flow drives.
type Authenticator struct {
	cfg      config.OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config

	sessions session.Store

	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewAuthenticator performs OIDC discovery against cfg.IssuerURL and builds
// the authorization-code+PKCE oauth2 config. It is the only place the
// gateway talks directly to the identity provider's OAuth endpoints.
func NewAuthenticator(ctx context.Context, cfg config.OIDCConfig, sessions session.Store, refreshTTL time.Duration, logger *zap.Logger) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: oidc discovery: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return &Authenticator{
		cfg:      cfg,
		provider: provider,
		verifier: verifier,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		sessions:   sessions,
		refreshTTL: refreshTTL,
		logger:     logger,
	}, nil
}

const (
	pkceVerifierCookie = "PKCE_VERIFIER"
	oauthStateCookie   = "OAUTH_STATE"
)

// BeginLogin handles GET /oauth2/authorization/<provider>: it generates a
// PKCE verifier/challenge pair and state nonce, stashes the verifier in a
// short-lived cookie, and redirects the browser to the identity provider.
func (a *Authenticator) BeginLogin(w http.ResponseWriter, r *http.Request) {
	verifier := randomString(64)
	challenge := pkceChallenge(verifier)
	state := randomString(32)

	http.SetCookie(w, &http.Cookie{
		Name: pkceVerifierCookie, Value: verifier, Path: "/", HttpOnly: true,
		MaxAge: 300, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: oauthStateCookie, Value: state, Path: "/", HttpOnly: true,
		MaxAge: 300, SameSite: http.SameSiteLaxMode,
	})

	authURL := a.oauth2.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles GET /login/oauth2/code/<provider>: it exchanges
// the authorization code for tokens, verifies the ID token, creates a
// Session, sets the SESSION_ID cookie, and redirects to
// OIDC.PostLoginRedirectURL.
func (a *Authenticator) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	verifierCookie, err := r.Cookie(pkceVerifierCookie)
	if err != nil {
		http.Error(w, "missing pkce verifier", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	token, err := a.oauth2.Exchange(r.Context(), code,
		oauth2.SetAuthURLParam("code_verifier", verifierCookie.Value))
	if err != nil {
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "missing id_token in token response", http.StatusBadGateway)
		return
	}
	idToken, err := a.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		http.Error(w, "id_token verification failed", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Subject string `json:"sub"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "malformed id_token claims", http.StatusBadGateway)
		return
	}

	accessExp := tokenExpiry(token.AccessToken, token.Expiry)

	rec := session.Record{
		UserID:       claims.Subject,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IdPSubject:   idToken.Subject,
		AccessExp:    accessExp,
		RefreshExp:   time.Now().Add(a.refreshTTL),
	}

	created, err := a.sessions.Create(r.Context(), rec)
	if err != nil {
		a.auditLogin(r.Context(), rec.UserID, "failure", "session persist failed")
		http.Error(w, "could not persist session", http.StatusServiceUnavailable)
		return
	}
	a.auditLogin(r.Context(), created.UserID, "success", "")

	SetSessionCookie(w, created.ID, a.refreshTTL)
	http.Redirect(w, r, a.cfg.PostLoginRedirectURL, http.StatusFound)
}

func (a *Authenticator) auditLogin(ctx context.Context, actorID, status, errMsg string) {
	event := observability.NewAuditEvent(ctx, observability.ActionLogin, "session", actorID, nil)
	event.Status = status
	event.Error = errMsg
	observability.LogAudit(ctx, a.logger, event)
}

// RefreshTokens implements TokenRefresher: it drives the IdP's token
// endpoint with the stored refresh token and returns the replacement
// access token and its expiry.
func (a *Authenticator) RefreshTokens(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if refreshToken == "" {
		return "", time.Time{}, fmt.Errorf("auth: no refresh token held for session")
	}

	src := a.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: token refresh: %w", err)
	}
	return token.AccessToken, tokenExpiry(token.AccessToken, token.Expiry), nil
}

// tokenExpiry decodes the exp claim from an opaque-looking access token
// when it happens to be a JWT (common for OIDC access tokens), falling
// back to the oauth2 token's own Expiry field. jwt.ParseUnverified is used
// deliberately: the gateway trusts the IdP connection this token arrived
// over and only needs the expiry for its own bookkeeping, never for
// authorization decisions.
func tokenExpiry(rawToken string, fallback time.Time) time.Time {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(rawToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return fallback
}

// tokenSubject extracts the sub claim from a JWT-shaped access token, the
// same unverified decode tokenExpiry performs. Returns "" for genuinely
// opaque tokens; the Session Store then records an anonymous-subject
// session whose identity is pinned by the token itself.
func tokenSubject(rawToken string) string {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(rawToken, &claims); err == nil {
		return claims.Subject
	}
	return ""
}

func randomString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
