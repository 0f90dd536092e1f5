package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/litenhq/liten-server/internal/ledger"
	"github.com/litenhq/liten-server/internal/models"
	"github.com/litenhq/liten-server/internal/service"
	"github.com/litenhq/liten-server/internal/token"
	"github.com/litenhq/liten-server/internal/users"
)

type testEnv struct {
	t  *testing.T
	e  *echo.Echo
	h  *AuthHandler
	db *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}))

	svc := &service.AuthService{
		Users:  &users.Directory{DB: db},
		Ledger: &ledger.Ledger{DB: db},
		Tokens: &token.Issuer{
			AccessSecret:  []byte("test-jwt-secret"),
			RefreshSecret: []byte("test-refresh-secret"),
		},
	}

	return &testEnv{
		t:  t,
		e:  echo.New(),
		h:  &AuthHandler{Svc: svc},
		db: db,
	}
}

func (env *testEnv) doJSONRequest(method, path string, body interface{}, headers ...http.Header) (*httptest.ResponseRecorder, echo.Context) {
	env.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, h := range headers {
		for k, vs := range h {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	rec := httptest.NewRecorder()
	return rec, env.e.NewContext(req, rec)
}

func registerBody() map[string]string {
	return map[string]string{
		"email":       "a@x.com",
		"password":    "password1",
		"nickname":    "tester",
		"appUniqueId": "dev-1",
		"deviceInfo":  "iPhone 15",
	}
}

func (env *testEnv) register(t *testing.T) tokenResponse {
	t.Helper()

	rec, c := env.doJSONRequest(http.MethodPost, "/auth/register", registerBody())
	require.NoError(t, env.h.Register(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegister_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.register(t)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(86400), resp.ExpiresIn)
	require.NotNil(t, resp.User)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.Equal(t, "LOCAL", resp.User.Provider)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	body := registerBody()
	body["appUniqueId"] = "dev-2"
	_, c := env.doJSONRequest(http.MethodPost, "/auth/register", body)

	err := env.h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestRegister_ShortPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	body := registerBody()
	body["password"] = "short"
	_, c := env.doJSONRequest(http.MethodPost, "/auth/register", body)

	err := env.h.Register(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	rec, c := env.doJSONRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "password1",
	})
	require.NoError(t, env.h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.User)
	assert.NotNil(t, resp.User.LastLoginAt)
}

func TestLogin_BadPassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.register(t)

	_, c := env.doJSONRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "wrong-password",
	})

	err := env.h.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestLogin_UnknownEmail_NoLedgerMutation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "password1",
	})

	err := env.h.Login(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	// unknown account is indistinguishable from a bad password
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.RefreshToken{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	registered := env.register(t)

	rec, c := env.doJSONRequest(http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": registered.RefreshToken,
	})
	require.NoError(t, env.h.Refresh(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, registered.RefreshToken, resp.RefreshToken)

	// the consumed token is no longer accepted
	_, c = env.doJSONRequest(http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": registered.RefreshToken,
	})
	err := env.h.Refresh(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRefresh_RevokedToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	registered := env.register(t)

	require.NoError(t, env.db.Model(&models.RefreshToken{}).
		Where("token = ?", registered.RefreshToken).
		Update("revoked", true).Error)

	_, c := env.doJSONRequest(http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": registered.RefreshToken,
	})
	err := env.h.Refresh(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/auth/refresh", map[string]string{})
	err := env.h.Refresh(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	registered := env.register(t)

	rec, c := env.doJSONRequest(http.MethodPost, "/auth/logout", map[string]string{
		"refreshToken": registered.RefreshToken,
	})
	require.NoError(t, env.h.Logout(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// repeating, empty and garbage logouts all answer 200
	for _, body := range []interface{}{
		map[string]string{"refreshToken": registered.RefreshToken},
		map[string]string{"refreshToken": "garbage"},
		nil,
	} {
		rec, c := env.doJSONRequest(http.MethodPost, "/auth/logout", body)
		require.NoError(t, env.h.Logout(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestSocialLogin_NotImplemented(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	_, c := env.doJSONRequest(http.MethodPost, "/auth/social/login", map[string]string{
		"provider":    "google",
		"accessToken": "provider-token",
		"appUniqueId": "dev-1",
	})
	err := env.h.SocialLogin(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusNotImplemented, he.Code)
}

func TestMe_WithBearerToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	registered := env.register(t)

	headers := http.Header{}
	headers.Set(echo.HeaderAuthorization, "Bearer "+registered.AccessToken)
	rec, c := env.doJSONRequest(http.MethodGet, "/auth/me", nil, headers)

	mw := RequireAuth(env.h.Svc.Tokens)
	require.NoError(t, mw(env.h.Me)(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.com", resp.Email)
}

func TestMe_RejectsMissingOrBadToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	mw := RequireAuth(env.h.Svc.Tokens)

	_, c := env.doJSONRequest(http.MethodGet, "/auth/me", nil)
	err := mw(env.h.Me)(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	headers := http.Header{}
	headers.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")
	_, c = env.doJSONRequest(http.MethodGet, "/auth/me", nil, headers)
	err = mw(env.h.Me)(c)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError")
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}
