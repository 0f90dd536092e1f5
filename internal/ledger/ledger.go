package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/litenhq/liten-server/internal/logging"
	"github.com/litenhq/liten-server/internal/models"
)

// ErrTokenRevoked is returned by Rotate when the presented token was no
// longer valid at commit time, including the replay case where a concurrent
// rotation already revoked it.
var ErrTokenRevoked = errors.New("refresh token expired or revoked")

// recordTTL is the authoritative lifetime of a ledger record. The claim
// expiry inside the signed token is advisory only.
const recordTTL = 7 * 24 * time.Hour

// Ledger owns every refresh token record; nothing else mutates revocation
// state.
type Ledger struct {
	DB *gorm.DB
}

// Issue inserts a new valid record for the user and then sweeps the user's
// already dead records. The sweep is best effort: a failure is logged and
// never fails the issue itself.
func (l *Ledger) Issue(ctx context.Context, user *models.User, tokenValue, deviceInfo string) (*models.RefreshToken, error) {
	record := models.RefreshToken{
		Token:      tokenValue,
		UserID:     user.ID,
		ExpiresAt:  time.Now().Add(recordTTL),
		Revoked:    false,
		DeviceInfo: deviceInfo,
	}
	if err := l.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	l.cleanupDeadTokens(ctx, user.ID)

	return &record, nil
}

// IsValid reports whether a record with this value exists and is neither
// revoked, expired nor soft-deleted. Unknown tokens and lookup failures both
// read as invalid.
func (l *Ledger) IsValid(ctx context.Context, tokenValue string) bool {
	var record models.RefreshToken
	err := l.DB.WithContext(ctx).Where("token = ?", tokenValue).First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logging.FromContext(ctx).Warn("refresh token lookup failed", "error", err)
		}
		return false
	}
	return record.Valid(time.Now())
}

// Revoke marks the matching record revoked. Unknown tokens are a no-op, and
// repeating the call for the same value is safe.
func (l *Ledger) Revoke(ctx context.Context, tokenValue string) error {
	return l.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", tokenValue).
		Update("revoked", true).Error
}

// RevokeAll terminates every currently valid session of the user.
func (l *Ledger) RevokeAll(ctx context.Context, userID uint) error {
	return l.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, time.Now()).
		Update("revoked", true).Error
}

// Rotate revokes the old record and inserts the new one in a single
// transaction. The revoke is a conditional update that re-checks validity,
// so of two concurrent rotations of the same value exactly one can win;
// the loser gets ErrTokenRevoked.
func (l *Ledger) Rotate(ctx context.Context, user *models.User, oldValue, newValue, deviceInfo string) (*models.RefreshToken, error) {
	now := time.Now()
	record := models.RefreshToken{
		Token:      newValue,
		UserID:     user.ID,
		ExpiresAt:  now.Add(recordTTL),
		Revoked:    false,
		DeviceInfo: deviceInfo,
	}

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token = ? AND revoked = ? AND expires_at > ?", oldValue, false, now).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenRevoked
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// PurgeExpiredBefore physically deletes records whose expiry predates the
// cutoff. Safe to run alongside live traffic: it only ever touches rows that
// are already past their validity window.
func (l *Ledger) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.DB.WithContext(ctx).Unscoped().
		Where("expires_at <= ?", cutoff).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (l *Ledger) cleanupDeadTokens(ctx context.Context, userID uint) {
	res := l.DB.WithContext(ctx).Unscoped().
		Where("user_id = ? AND (expires_at <= ? OR revoked = ?)", userID, time.Now(), true).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		logging.FromContext(ctx).Warn("refresh token cleanup failed", "user_id", userID, "error", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		logging.FromContext(ctx).Info("cleaned up dead refresh tokens", "user_id", userID, "count", res.RowsAffected)
	}
}
