package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile carries per-user travel preferences and login bookkeeping.
// One profile row exists per user from registration onward.
type Profile struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	Bio         string     `gorm:"type:text" json:"bio,omitempty"`
	HomeCity    string     `gorm:"type:text" json:"homeCity,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	User User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
}
