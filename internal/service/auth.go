package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/litenhq/liten-server/internal/events"
	"github.com/litenhq/liten-server/internal/hash"
	"github.com/litenhq/liten-server/internal/ledger"
	"github.com/litenhq/liten-server/internal/logging"
	"github.com/litenhq/liten-server/internal/models"
	"github.com/litenhq/liten-server/internal/token"
	"github.com/litenhq/liten-server/internal/users"
)

const (
	defaultLanguageCode = "ko"
	defaultTheme        = "CLASSIC_BLUE"
	minPasswordLen      = 8
)

// AuthService coordinates the user directory, password hashing, token
// minting and the refresh token ledger. Collaborators are passed in
// explicitly; there is no ambient registry.
type AuthService struct {
	Users    *users.Directory
	Ledger   *ledger.Ledger
	Tokens   *token.Issuer
	Producer *events.Producer
}

type RegisterParams struct {
	Email        string
	Password     string
	Nickname     string
	AppUniqueID  string
	LanguageCode string
	Theme        string
	DeviceInfo   string
}

// TokenPair is what every successful register/login/refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	User         *models.User
}

func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if !strings.Contains(p.Email, "@") || p.AppUniqueID == "" {
		return nil, ErrValidation
	}
	if len(p.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password too short", ErrValidation)
	}

	if taken, err := s.Users.ExistsByEmail(ctx, p.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.Users.ExistsByAppUniqueID(ctx, p.AppUniqueID); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDeviceTaken
	}

	pwHash, err := hash.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	if p.LanguageCode == "" {
		p.LanguageCode = defaultLanguageCode
	}
	if p.Theme == "" {
		p.Theme = defaultTheme
	}

	user := &models.User{
		Email:            p.Email,
		PasswordHash:     pwHash,
		Nickname:         p.Nickname,
		AppUniqueID:      p.AppUniqueID,
		Provider:         models.ProviderLocal,
		SubscriptionType: models.SubscriptionFree,
		LanguageCode:     p.LanguageCode,
		Theme:            p.Theme,
		IsActive:         true,
	}
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, user, p.DeviceInfo)
	if err != nil {
		return nil, err
	}

	l.Info("new user registered", "user_id", user.ID, "email", user.Email)
	s.publish(ctx, user, events.TypeUserRegistered)

	return pair, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, deviceInfo string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if email == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.Users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, err
	}

	// Other devices keep their sessions: a login never revokes existing
	// refresh tokens.
	pair, err := s.issuePair(ctx, user, deviceInfo)
	if err != nil {
		return nil, err
	}

	l.Info("user logged in", "user_id", user.ID)
	s.publish(ctx, user, events.TypeUserLoggedIn)

	return pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if !s.Ledger.IsValid(ctx, refreshToken) {
		return nil, token.ErrTokenInvalid
	}

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.Users.FindActiveByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// Mint both tokens before touching the ledger so a ledger failure never
	// leaves the client holding tokens that were never recorded.
	access, err := s.Tokens.MintAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Tokens.MintRefresh(user)
	if err != nil {
		return nil, err
	}

	if _, err := s.Ledger.Rotate(ctx, user, refreshToken, refresh, ""); err != nil {
		return nil, err
	}

	l.Info("tokens refreshed", "user_id", user.ID)
	s.publish(ctx, user, events.TypeTokenRefreshed)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(token.AccessTTL.Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. A missing, unknown or garbage
// token is a no-op: logout never fails from the caller's perspective.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken != "" {
		if err := s.Ledger.Revoke(ctx, refreshToken); err != nil {
			l.Warn("refresh token revoke failed", "error", err)
			return
		}
		// subject is taken unverified here; it only keys the event
		if email, err := s.Tokens.ExtractSubject(refreshToken); err == nil {
			event := map[string]interface{}{"type": events.TypeUserLoggedOut, "email": email}
			if err := s.Producer.PublishEvent(ctx, email, event); err != nil {
				l.Error("kafka publish error", "type", events.TypeUserLoggedOut, "error", err)
			}
		}
	}

	l.Info("user logged out")
}

// RevokeAllSessions terminates every live session of the user, e.g. after a
// password change or account lock.
func (s *AuthService) RevokeAllSessions(ctx context.Context, user *models.User) error {
	if err := s.Ledger.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("all sessions revoked", "user_id", user.ID)
	s.publish(ctx, user, events.TypeSessionsRevoked)
	return nil
}

func (s *AuthService) SocialLogin(ctx context.Context, provider, accessToken, appUniqueID string) (*TokenPair, error) {
	return nil, ErrNotImplemented
}

// Profile resolves the identity behind a verified access token subject.
func (s *AuthService) Profile(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Users.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, deviceInfo string) (*TokenPair, error) {
	access, err := s.Tokens.MintAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Tokens.MintRefresh(user)
	if err != nil {
		return nil, err
	}

	if _, err := s.Ledger.Issue(ctx, user, refresh, deviceInfo); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(token.AccessTTL.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, user *models.User, eventType string) {
	event := map[string]interface{}{
		"type":    eventType,
		"user_id": user.ID,
		"email":   user.Email,
	}
	if err := s.Producer.PublishEvent(ctx, fmt.Sprint(user.ID), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "type", eventType, "error", err)
	}
}
