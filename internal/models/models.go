package models

import (
	"time"

	"gorm.io/gorm"
)

type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
	ProviderApple  AuthProvider = "APPLE"
)

type SubscriptionType string

const (
	SubscriptionFree     SubscriptionType = "FREE"
	SubscriptionStandard SubscriptionType = "STANDARD"
	SubscriptionPremium  SubscriptionType = "PREMIUM"
)

// Audit carries the shared bookkeeping columns. DeletedAt makes every
// embedding model soft-deleted: gorm filters deleted rows out of all
// regular queries.
type Audit struct {
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type User struct {
	ID                    uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	Email                 string           `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash          string           `json:"-"`
	Nickname              string           `gorm:"size:50"                  json:"nickname"`
	ProfileImageURL       string           `gorm:"size:500"                 json:"profile_image_url"`
	AppUniqueID           string           `gorm:"uniqueIndex;not null"     json:"app_unique_id"`
	Provider              AuthProvider     `gorm:"size:20;not null"         json:"provider"`
	ProviderID            string           `gorm:"size:255"                 json:"-"`
	SubscriptionType      SubscriptionType `gorm:"size:20;not null"         json:"subscription_type"`
	SubscriptionStartDate *time.Time       `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time       `json:"subscription_end_date,omitempty"`
	LanguageCode          string           `gorm:"size:10;default:ko"       json:"language_code"`
	Theme                 string           `gorm:"size:50"                  json:"theme"`
	IsActive              bool             `gorm:"default:true"             json:"is_active"`
	LastLoginAt           *time.Time       `json:"last_login_at,omitempty"`
	Audit
}

func (u *User) IsPremium() bool {
	return u.SubscriptionType == SubscriptionPremium || u.SubscriptionType == SubscriptionStandard
}

func (u *User) HasValidSubscription(now time.Time) bool {
	if u.SubscriptionType == SubscriptionFree {
		return true
	}
	return u.SubscriptionEndDate != nil && u.SubscriptionEndDate.After(now)
}

type RefreshToken struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"      json:"id"`
	Token      string    `gorm:"uniqueIndex;size:500;not null" json:"-"`
	UserID     uint      `gorm:"index;not null"                json:"user_id"`
	ExpiresAt  time.Time `gorm:"not null"                      json:"expires_at"`
	Revoked    bool      `gorm:"default:false"                 json:"revoked"`
	DeviceInfo string    `gorm:"size:500"                      json:"device_info"`
	Audit
}

// Valid reports whether the record may still be exchanged for a new token
// pair. A record expiring exactly at now is already expired.
func (r *RefreshToken) Valid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt) && !r.DeletedAt.Valid
}
