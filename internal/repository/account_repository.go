package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByEmail matches on the normalized address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.first(ctx, "email = ?", models.NormalizeEmail(email))
}

func (r *AccountRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return r.first(ctx, "verification_token_hash = ?", tokenHash)
}

// FindByResetToken does not check expiry; the caller decides.
func (r *AccountRepository) FindByResetToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return r.first(ctx, "reset_token_hash = ?", tokenHash)
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.Email = models.NormalizeEmail(account.Email)
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Update writes every column of a live account. A deleted account is not
// written back and yields ErrNotFound.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.Email = models.NormalizeEmail(account.Email)
	result := r.db.WithContext(ctx).Model(account).Select("*").Omit("created_at", "deleted_at").Updates(account)
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes the account so its email becomes available again.
func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) first(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}
