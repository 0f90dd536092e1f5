package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/litenhq/liten-server/internal/models"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

const (
	AccessTTL  = 24 * time.Hour
	RefreshTTL = 7 * 24 * time.Hour
)

type AccessClaims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID uint   `json:"uid"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the HS256 token pair. Secrets are read once at
// startup and never change afterwards.
type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
}

func (i *Issuer) MintAccess(user *models.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTTL)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.AccessSecret)
}

// MintRefresh signs a refresh token with an advisory claim expiry; the
// authoritative expiry lives in the ledger record.
func (i *Issuer) MintRefresh(user *models.User) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID: user.ID,
		Type:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTTL)),
			ID:        uuid.NewString(),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.RefreshSecret)
}

func (i *Issuer) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := parse(raw, &claims, i.AccessSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (i *Issuer) VerifyRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := parse(raw, &claims, i.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != "refresh" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// ExtractSubject reads the subject claim without checking the signature.
// Callers on security-sensitive paths must verify the token separately
// before trusting the result.
func (i *Issuer) ExtractSubject(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

func parse(raw string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tkn.Valid {
		return ErrTokenInvalid
	}
	return nil
}
