package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one issued session credential. Only the SHA-256 of the
// opaque token is stored. Revocation sets RevokedAt, RevokedByIP and
// (on rotation) ReplacedByHash together and is never undone.
type RefreshToken struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"accountId"`
	TokenHash      string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt      time.Time  `gorm:"not null" json:"expires"`
	CreatedAt      time.Time  `json:"created"`
	CreatedByIP    string     `gorm:"size:64" json:"createdByIp"`
	RevokedAt      *time.Time `gorm:"index" json:"revoked,omitempty"`
	RevokedByIP    string     `gorm:"size:64" json:"revokedByIp,omitempty"`
	ReplacedByHash *string    `gorm:"size:64" json:"-"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// HashToken returns the hex SHA-256 of an opaque token string.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
