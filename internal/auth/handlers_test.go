package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iruldev/edge-gateway/internal/cache/cachetest"
	"github.com/iruldev/edge-gateway/internal/session"
)

type fakeRefresher struct {
	access string
	expiry time.Time
	err    error
}

func (f *fakeRefresher) RefreshTokens(context.Context, string) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.access, f.expiry, nil
}

type authFixture struct {
	router   chi.Router
	sessions session.Store
	l2       *cachetest.Store
}

func newAuthFixture(t *testing.T, refresher TokenRefresher) *authFixture {
	t.Helper()
	l2 := cachetest.New()
	sessions := session.New(l2, 1000, time.Minute, 5*time.Minute)

	r := chi.NewRouter()
	Mount(r, NewHandler(sessions, refresher, 24*time.Hour, zap.NewNop()), nil)
	return &authFixture{router: r, sessions: sessions, l2: l2}
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "SESSION_ID" {
			return c
		}
	}
	return nil
}

func TestCreateSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	body := `{"access_token":"x","refresh_token":"y","expires_in":3600}`
	req := httptest.NewRequest("POST", "/auth/session", strings.NewReader(body))
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	sid := resp["session_id"]
	require.NotEmpty(t, sid)

	cookie := sessionCookie(t, rr)
	require.NotNil(t, cookie)
	assert.Equal(t, sid, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.LessOrEqual(t, cookie.MaxAge, int((24 * time.Hour).Seconds()))

	rec, err := f.sessions.Lookup(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "x", rec.AccessToken)
	assert.Equal(t, "y", rec.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rec.AccessExp, 5*time.Second)
}

func TestCreateSession_MissingAccessToken(t *testing.T) {
	f := newAuthFixture(t, nil)

	req := httptest.NewRequest("POST", "/auth/session", strings.NewReader(`{"refresh_token":"y"}`))
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "BAD_REQUEST")
}

func TestCreateSession_CacheOutage(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.l2.SetUnavailable(true)

	body := `{"access_token":"x","refresh_token":"y","expires_in":3600}`
	req := httptest.NewRequest("POST", "/auth/session", strings.NewReader(body))
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "SESSION_PERSIST_ERROR")
	assert.Nil(t, sessionCookie(t, rr), "no cookie for a session that was not persisted")
}

func TestGetSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	created, err := f.sessions.Create(context.Background(), session.Record{
		UserID: "u1", AccessToken: "secret-access-token",
		AccessExp:  time.Now().Add(time.Hour),
		RefreshExp: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: created.ID})
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"userId":"u1"`)
	assert.NotContains(t, rr.Body.String(), "secret-access-token", "tokens never leave the gateway")
}

func TestGetSession_NoCookie(t *testing.T) {
	f := newAuthFixture(t, nil)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/session", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefresh_SwapsAccessToken(t *testing.T) {
	newExp := time.Now().Add(30 * time.Minute)
	f := newAuthFixture(t, &fakeRefresher{access: "new-access", expiry: newExp})
	created, err := f.sessions.Create(context.Background(), session.Record{
		UserID: "u1", AccessToken: "old-access", RefreshToken: "rt",
		AccessExp:  time.Now().Add(time.Minute),
		RefreshExp: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: created.ID})
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	rec, err := f.sessions.Lookup(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", rec.AccessToken)
	assert.WithinDuration(t, newExp, rec.AccessExp, time.Second)
}

func TestRefresh_RejectedDestroysSession(t *testing.T) {
	f := newAuthFixture(t, &fakeRefresher{err: errors.New("invalid_grant")})
	created, err := f.sessions.Create(context.Background(), session.Record{
		UserID: "u1", AccessToken: "x", RefreshToken: "rt",
		AccessExp:  time.Now().Add(time.Minute),
		RefreshExp: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: created.ID})
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	_, err = f.sessions.Lookup(context.Background(), created.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRefresh_NoProviderConfigured(t *testing.T) {
	f := newAuthFixture(t, nil)
	created, err := f.sessions.Create(context.Background(), session.Record{
		UserID: "u1", AccessToken: "x",
		AccessExp:  time.Now().Add(time.Minute),
		RefreshExp: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: created.ID})
	rr := httptest.NewRecorder()

	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "IDENTITY_UNAVAILABLE")
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t, nil)
	created, err := f.sessions.Create(context.Background(), session.Record{
		UserID: "u1", AccessToken: "x",
		AccessExp:  time.Now().Add(time.Minute),
		RefreshExp: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	logout := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: created.ID})
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		return rr
	}

	first := logout()
	assert.Equal(t, http.StatusNoContent, first.Code)
	cookie := sessionCookie(t, first)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0, "cookie is cleared")

	_, err = f.sessions.Lookup(context.Background(), created.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	// Repeating the logout with the same cookie stays a 204.
	second := logout()
	assert.Equal(t, http.StatusNoContent, second.Code)
}

func TestLogout_NoCookieStill204(t *testing.T) {
	f := newAuthFixture(t, nil)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest("POST", "/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
}
