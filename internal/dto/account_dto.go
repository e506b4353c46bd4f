package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateAccountRequest struct {
	Title           string `json:"title"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role"`
}

// UpdateAccountRequest leaves empty fields unchanged.
type UpdateAccountRequest struct {
	Title           string `json:"title"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            string `json:"role"`
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

type AccountResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
	IsVerified bool      `json:"isVerified"`
	IsActive   bool      `json:"isActive"`
}

type SetActiveResponse struct {
	AccountResponse
	Message string `json:"message"`
}

type RefreshTokenResponse struct {
	ID          uuid.UUID  `json:"id"`
	TokenPrefix string     `json:"tokenPrefix"`
	Created     time.Time  `json:"created"`
	CreatedByIP string     `json:"createdByIp"`
	Expires     time.Time  `json:"expires"`
	Revoked     *time.Time `json:"revoked,omitempty"`
	RevokedByIP string     `json:"revokedByIp,omitempty"`
	Replaced    bool       `json:"replaced"`
	IsExpired   bool       `json:"isExpired"`
	IsActive    bool       `json:"isActive"`
}
