package users

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/litenhq/liten-server/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Directory is the identity lookup consumed by the auth service. Spaces and
// content live in the CRUD layer; auth only needs this narrow surface.
type Directory struct {
	DB *gorm.DB
}

func (d *Directory) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.DB.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (d *Directory) FindActiveByAppUniqueID(ctx context.Context, appUniqueID string) (*models.User, error) {
	var user models.User
	err := d.DB.WithContext(ctx).
		Where("app_unique_id = ? AND is_active = ?", appUniqueID, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ExistsByEmail only sees non-deleted rows, so a soft-deleted account does
// not block its email from being registered again.
func (d *Directory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Directory) ExistsByAppUniqueID(ctx context.Context, appUniqueID string) (bool, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&models.User{}).
		Where("app_unique_id = ?", appUniqueID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Directory) Save(ctx context.Context, user *models.User) error {
	return d.DB.WithContext(ctx).Save(user).Error
}
