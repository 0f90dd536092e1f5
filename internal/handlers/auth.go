package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/litenhq/liten-server/internal/ledger"
	"github.com/litenhq/liten-server/internal/logging"
	"github.com/litenhq/liten-server/internal/models"
	"github.com/litenhq/liten-server/internal/service"
	"github.com/litenhq/liten-server/internal/token"
)

type AuthHandler struct {
	Svc *service.AuthService
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Nickname     string `json:"nickname"`
	AppUniqueID  string `json:"appUniqueId"`
	LanguageCode string `json:"languageCode"`
	Theme        string `json:"theme"`
	DeviceInfo   string `json:"deviceInfo"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type socialLoginRequest struct {
	Provider     string `json:"provider"`
	AccessToken  string `json:"accessToken"`
	AppUniqueID  string `json:"appUniqueId"`
	LanguageCode string `json:"languageCode"`
	Theme        string `json:"theme"`
	DeviceInfo   string `json:"deviceInfo"`
}

type userInfo struct {
	UserID              uint       `json:"userId"`
	Email               string     `json:"email"`
	Nickname            string     `json:"nickname,omitempty"`
	ProfileImageURL     string     `json:"profileImageUrl,omitempty"`
	AppUniqueID         string     `json:"appUniqueId"`
	Provider            string     `json:"provider"`
	SubscriptionType    string     `json:"subscriptionType"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate,omitempty"`
	LanguageCode        string     `json:"languageCode"`
	Theme               string     `json:"theme"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         *userInfo `json:"user,omitempty"`
}

func newUserInfo(u *models.User) *userInfo {
	return &userInfo{
		UserID:              u.ID,
		Email:               u.Email,
		Nickname:            u.Nickname,
		ProfileImageURL:     u.ProfileImageURL,
		AppUniqueID:         u.AppUniqueID,
		Provider:            string(u.Provider),
		SubscriptionType:    string(u.SubscriptionType),
		SubscriptionEndDate: u.SubscriptionEndDate,
		LanguageCode:        u.LanguageCode,
		Theme:               u.Theme,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}

func newTokenResponse(pair *service.TokenPair) tokenResponse {
	resp := tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
	if pair.User != nil {
		resp.User = newUserInfo(pair.User)
	}
	return resp
}

// httpError maps each error kind to its own status code instead of
// collapsing everything into one generic failure.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrDeviceTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, token.ErrTokenInvalid),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, ledger.ErrTokenRevoked):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotImplemented):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, err := h.Svc.Register(ctx, service.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Nickname:     req.Nickname,
		AppUniqueID:  req.AppUniqueID,
		LanguageCode: req.LanguageCode,
		Theme:        req.Theme,
		DeviceInfo:   req.DeviceInfo,
	})
	if err != nil {
		he := httpError(err)
		l.Warn("register_failed", "status", he.Code, "error", err)
		return he
	}

	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, err := h.Svc.Login(ctx, req.Email, req.Password, req.DeviceInfo)
	if err != nil {
		// an unknown email reads the same as a wrong password
		if errors.Is(err, service.ErrUserNotFound) {
			err = service.ErrInvalidCredentials
		}
		he := httpError(err)
		l.Warn("login_failed", "status", he.Code, "error", err)
		return he
	}

	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "refreshToken is required")
	}

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		he := httpError(err)
		l.Warn("refresh_failed", "status", he.Code, "error", err)
		return he
	}

	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Logout always answers 200: a missing or garbage token is treated as an
// already terminated session.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var req refreshRequest
	_ = c.Bind(&req)

	h.Svc.Logout(ctx, req.RefreshToken)

	return c.NoContent(http.StatusOK)
}

func (h *AuthHandler) SocialLogin(c echo.Context) error {
	ctx := c.Request().Context()

	var req socialLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if _, err := h.Svc.SocialLogin(ctx, req.Provider, req.AccessToken, req.AppUniqueID); err != nil {
		return httpError(err)
	}
	return nil
}

func (h *AuthHandler) Me(c echo.Context) error {
	ctx := c.Request().Context()

	email, _ := c.Get("email").(string)
	user, err := h.Svc.Profile(ctx, email)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, newUserInfo(user))
}
