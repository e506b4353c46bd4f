package services

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/google/uuid"
)

// AccountStore is satisfied by repository.AccountRepository.
type AccountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.Account, error)
}

// RefreshTokenStore persists refresh tokens by hash. Rotate and Revoke only
// succeed while the stored token is unrevoked and return
// repository.ErrAlreadyRevoked otherwise; exactly one of any set of concurrent
// calls on the same hash wins.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, revokedAt time.Time, ip string, next *models.RefreshToken) error
	Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, ip string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.RefreshToken, error)
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time, ip string) (int64, error)
}
