package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshTokenRepository stores refresh tokens in SQL. Revocation is a
// guarded UPDATE (revoked_at IS NULL), so two concurrent revocations of the
// same row cannot both succeed.
type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	return findByHash(r.db.WithContext(ctx), tokenHash)
}

// Rotate revokes oldHash in favour of next and inserts next, in one transaction.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, revokedAt time.Time, ip string, next *models.RefreshToken) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := revoke(tx, oldHash, map[string]interface{}{
			"revoked_at":       revokedAt,
			"revoked_by_ip":    ip,
			"replaced_by_hash": next.TokenHash,
		}); err != nil {
			return err
		}
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
		return nil
	})
}

// Revoke ends the lineage at tokenHash without a successor.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, ip string) error {
	return revoke(r.db.WithContext(ctx), tokenHash, map[string]interface{}{
		"revoked_at":    revokedAt,
		"revoked_by_ip": ip,
	})
}

func (r *RefreshTokenRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.RefreshToken, error) {
	var tokens []models.RefreshToken
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	return tokens, nil
}

// RevokeAllForAccount revokes every not-yet-revoked token of the account and
// returns how many rows changed.
func (r *RefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time, ip string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Updates(map[string]interface{}{
			"revoked_at":    revokedAt,
			"revoked_by_ip": ip,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func revoke(db *gorm.DB, tokenHash string, fields map[string]interface{}) error {
	result := db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if _, err := findByHash(db, tokenHash); err != nil {
		return err
	}
	return ErrAlreadyRevoked
}

func findByHash(db *gorm.DB, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := db.Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	return &token, nil
}
