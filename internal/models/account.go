package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is a registered identity. Email is unique among rows that are not
// soft-deleted.
type Account struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title                 string         `gorm:"size:20" json:"title"`
	FirstName             string         `gorm:"size:100;not null" json:"firstName"`
	LastName              string         `gorm:"size:100;not null" json:"lastName"`
	Email                 string         `gorm:"size:255;not null;uniqueIndex:idx_accounts_email,where:deleted_at IS NULL" json:"email"`
	PasswordHash          string         `gorm:"not null" json:"-"`
	Role                  Role           `gorm:"size:20;not null;default:'User'" json:"role"`
	VerificationTokenHash *string        `gorm:"size:64;index" json:"-"`
	VerifiedAt            *time.Time     `json:"verified,omitempty"`
	ResetTokenHash        *string        `gorm:"size:64;index" json:"-"`
	ResetTokenExpiresAt   *time.Time     `json:"-"`
	PasswordResetAt       *time.Time     `json:"-"`
	Active                bool           `gorm:"not null;default:true" json:"isActive"`
	CreatedAt             time.Time      `json:"created"`
	UpdatedAt             time.Time      `json:"updated"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsVerified is true once the email was confirmed or a password reset proved
// control of the mailbox.
func (a *Account) IsVerified() bool {
	return a.VerifiedAt != nil || a.PasswordResetAt != nil
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
