package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const randomTokenBytes = 40

type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	tokens     RefreshTokenStore
	now        func() time.Time
}

func NewTokenIssuer(cfg *config.Config, tokens RefreshTokenStore) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.JWTAccessExpiry,
		refreshTTL: cfg.JWTRefreshExpiry,
		tokens:     tokens,
		now:        time.Now,
	}
}

// IssueAccessToken signs an HS256 JWT whose subject is the account id.
func (i *TokenIssuer) IssueAccessToken(account *models.Account) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.accessTTL)
	claims := jwt.MapClaims{
		"sub": account.ID.String(),
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expires, nil
}

// ParseAccessToken verifies signature and expiry and returns the subject.
func (i *TokenIssuer) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return uuid.Nil, &Error{Kind: KindInvalidToken, Message: ErrInvalidToken.Message, Err: err}
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, &Error{Kind: KindInvalidToken, Message: ErrInvalidToken.Message, Err: err}
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, &Error{Kind: KindInvalidToken, Message: ErrInvalidToken.Message, Err: err}
	}
	return id, nil
}

// NewRefreshToken builds an unsaved refresh token and returns it together with
// the raw value handed to the client.
func (i *TokenIssuer) NewRefreshToken(accountID uuid.UUID, ip string) (*models.RefreshToken, string, error) {
	raw, err := randomToken()
	if err != nil {
		return nil, "", err
	}
	now := i.now().UTC()
	return &models.RefreshToken{
		ID:          uuid.New(),
		AccountID:   accountID,
		TokenHash:   models.HashToken(raw),
		ExpiresAt:   now.Add(i.refreshTTL),
		CreatedAt:   now,
		CreatedByIP: ip,
	}, raw, nil
}

// IssueRefreshToken starts a new lineage for the account.
func (i *TokenIssuer) IssueRefreshToken(ctx context.Context, accountID uuid.UUID, ip string) (*models.RefreshToken, string, error) {
	token, raw, err := i.NewRefreshToken(accountID, ip)
	if err != nil {
		return nil, "", err
	}
	if err := i.tokens.Create(ctx, token); err != nil {
		return nil, "", err
	}
	return token, raw, nil
}

func randomToken() (string, error) {
	b := make([]byte, randomTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
