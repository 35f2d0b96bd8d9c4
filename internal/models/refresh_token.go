package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is the durable mirror of an issued refresh token. The hot
// lookup path lives in Redis; these rows serve the disaster-recovery
// fallback and bulk revocation.
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Token     string    `gorm:"type:text;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	IsRevoked bool      `gorm:"not null;default:false;index" json:"isRevoked"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`

	User User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
}
