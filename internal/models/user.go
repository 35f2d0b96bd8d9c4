package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity record owned by the credential store.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email         string    `gorm:"type:text;uniqueIndex;not null" json:"email"`
	PasswordHash  string    `gorm:"type:text;not null" json:"-"`
	Name          string    `gorm:"type:text;not null" json:"name"`
	Phone         string    `gorm:"type:text" json:"phone,omitempty"`
	EmailVerified bool      `gorm:"not null;default:false" json:"emailVerified"`

	ResetToken                 *string    `gorm:"type:text;index" json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`
	VerificationToken          *string    `gorm:"type:text;index" json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Profile       *Profile       `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
