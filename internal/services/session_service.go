package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/repository"
	"github.com/google/uuid"
)

// TokenPair is the result of a successful authenticate or rotate.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Account               *models.Account
}

// SessionService drives the refresh token lifecycle. A lineage starts at
// Authenticate, moves forward one token per Rotate, and ends at Revoke. A
// revoked token never becomes usable again.
type SessionService struct {
	accounts AccountStore
	tokens   RefreshTokenStore
	verifier *CredentialVerifier
	issuer   *TokenIssuer
	now      func() time.Time
}

func NewSessionService(accounts AccountStore, tokens RefreshTokenStore, verifier *CredentialVerifier, issuer *TokenIssuer) *SessionService {
	return &SessionService{
		accounts: accounts,
		tokens:   tokens,
		verifier: verifier,
		issuer:   issuer,
		now:      time.Now,
	}
}

func (s *SessionService) Authenticate(ctx context.Context, email, password, ip string) (*TokenPair, error) {
	account, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			slog.Info("authentication failed", "email", models.NormalizeEmail(email), "ip", ip)
		}
		return nil, err
	}

	accessToken, accessExpires, err := s.issuer.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}
	refresh, raw, err := s.issuer.IssueRefreshToken(ctx, account.ID, ip)
	if err != nil {
		return nil, err
	}

	slog.Info("account authenticated", "account_id", account.ID.String(), "ip", ip)
	return &TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpires,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		Account:               account,
	}, nil
}

// Rotate exchanges an active refresh token for a new pair. The presented
// token is revoked with a forward link to its successor.
func (s *SessionService) Rotate(ctx context.Context, presented, ip string) (*TokenPair, error) {
	current, err := s.lookup(ctx, presented)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if current.IsRevoked() {
		slog.Warn("revoked refresh token presented",
			"account_id", current.AccountID.String(),
			"token_id", current.ID.String(),
			"ip", ip,
		)
		return nil, ErrTokenRevoked
	}
	if current.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	account, err := s.accounts.FindByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Active {
		return nil, ErrInvalidToken
	}

	next, raw, err := s.issuer.NewRefreshToken(account.ID, ip)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, current.TokenHash, now, ip, next); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyRevoked):
			slog.Warn("refresh token rotated concurrently",
				"account_id", current.AccountID.String(),
				"token_id", current.ID.String(),
				"ip", ip,
			)
			return nil, ErrTokenRevoked
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrInvalidToken
		default:
			return nil, err
		}
	}

	accessToken, accessExpires, err := s.issuer.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpires,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: next.ExpiresAt,
		Account:               account,
	}, nil
}

// Revoke ends the lineage at the presented token. Only the token's owner or
// an admin may do so.
func (s *SessionService) Revoke(ctx context.Context, presented string, requester *models.Account, ip string) error {
	current, err := s.lookup(ctx, presented)
	if err != nil {
		return err
	}
	if requester == nil || (current.AccountID != requester.ID && !requester.IsAdmin()) {
		return ErrUnauthorized
	}

	now := s.now()
	if current.IsRevoked() {
		return ErrTokenRevoked
	}
	if current.IsExpired(now) {
		return ErrTokenExpired
	}

	if err := s.tokens.Revoke(ctx, current.TokenHash, now, ip); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyRevoked):
			return ErrTokenRevoked
		case errors.Is(err, repository.ErrNotFound):
			return ErrInvalidToken
		default:
			return err
		}
	}

	slog.Info("refresh token revoked",
		"account_id", current.AccountID.String(),
		"token_id", current.ID.String(),
		"revoked_by", requester.ID.String(),
		"ip", ip,
	)
	return nil
}

func (s *SessionService) ListTokens(ctx context.Context, accountID uuid.UUID) ([]models.RefreshToken, error) {
	return s.tokens.ListByAccount(ctx, accountID)
}

func (s *SessionService) lookup(ctx context.Context, presented string) (*models.RefreshToken, error) {
	if presented == "" {
		return nil, ErrInvalidToken
	}
	token, err := s.tokens.FindByHash(ctx, models.HashToken(presented))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return token, nil
}
