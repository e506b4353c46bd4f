package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refreshTokenStore is the contract both implementations satisfy.
type refreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, oldHash string, revokedAt time.Time, ip string, next *models.RefreshToken) error
	Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, ip string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.RefreshToken, error)
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time, ip string) (int64, error)
}

func storeImplementations(t *testing.T) map[string]refreshTokenStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return map[string]refreshTokenStore{
		"gorm":  NewRefreshTokenRepository(newTestDB(t)),
		"redis": NewRedisRefreshTokenRepository(rdb, "test", time.Hour),
	}
}

func TestRefreshTokenStore_CreateFind(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tok := newToken(uuid.New(), "raw-1", time.Hour)
			require.NoError(t, store.Create(ctx, tok))

			got, err := store.FindByHash(ctx, tok.TokenHash)
			require.NoError(t, err)
			assert.Equal(t, tok.ID, got.ID)
			assert.Equal(t, tok.AccountID, got.AccountID)
			assert.Equal(t, "10.0.0.1", got.CreatedByIP)
			assert.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Millisecond)
			assert.Nil(t, got.RevokedAt)
			assert.Nil(t, got.ReplacedByHash)

			_, err = store.FindByHash(ctx, models.HashToken("missing"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRefreshTokenStore_Rotate(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			accountID := uuid.New()
			old := newToken(accountID, "old", time.Hour)
			require.NoError(t, store.Create(ctx, old))

			next := newToken(accountID, "next", time.Hour)
			now := time.Now().UTC()
			require.NoError(t, store.Rotate(ctx, old.TokenHash, now, "10.0.0.2", next))

			revoked, err := store.FindByHash(ctx, old.TokenHash)
			require.NoError(t, err)
			require.NotNil(t, revoked.RevokedAt)
			require.NotNil(t, revoked.ReplacedByHash)
			assert.Equal(t, next.TokenHash, *revoked.ReplacedByHash)
			assert.Equal(t, "10.0.0.2", revoked.RevokedByIP)

			fresh, err := store.FindByHash(ctx, next.TokenHash)
			require.NoError(t, err)
			assert.True(t, fresh.IsActive(now))

			again := newToken(accountID, "again", time.Hour)
			err = store.Rotate(ctx, old.TokenHash, now, "10.0.0.3", again)
			assert.ErrorIs(t, err, ErrAlreadyRevoked)
			_, err = store.FindByHash(ctx, again.TokenHash)
			assert.ErrorIs(t, err, ErrNotFound, "a lost rotation must not insert its successor")

			err = store.Rotate(ctx, models.HashToken("nope"), now, "", newToken(accountID, "x", time.Hour))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRefreshTokenStore_Revoke(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tok := newToken(uuid.New(), "logout", time.Hour)
			require.NoError(t, store.Create(ctx, tok))

			require.NoError(t, store.Revoke(ctx, tok.TokenHash, time.Now().UTC(), "10.0.0.9"))
			got, err := store.FindByHash(ctx, tok.TokenHash)
			require.NoError(t, err)
			assert.True(t, got.IsRevoked())
			assert.Nil(t, got.ReplacedByHash)
			assert.Equal(t, "10.0.0.9", got.RevokedByIP)

			assert.ErrorIs(t, store.Revoke(ctx, tok.TokenHash, time.Now().UTC(), ""), ErrAlreadyRevoked)
			assert.ErrorIs(t, store.Revoke(ctx, models.HashToken("nope"), time.Now().UTC(), ""), ErrNotFound)
		})
	}
}

func TestRefreshTokenStore_ListAndRevokeAll(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			accountID := uuid.New()
			for i := 0; i < 3; i++ {
				tok := newToken(accountID, fmt.Sprintf("session-%d", i), time.Hour)
				tok.CreatedAt = tok.CreatedAt.Add(time.Duration(i) * time.Second)
				require.NoError(t, store.Create(ctx, tok))
			}
			require.NoError(t, store.Create(ctx, newToken(uuid.New(), "someone-else", time.Hour)))
			require.NoError(t, store.Revoke(ctx, models.HashToken("session-0"), time.Now().UTC(), ""))

			tokens, err := store.ListByAccount(ctx, accountID)
			require.NoError(t, err)
			require.Len(t, tokens, 3)
			assert.Equal(t, models.HashToken("session-2"), tokens[0].TokenHash, "newest first")

			n, err := store.RevokeAllForAccount(ctx, accountID, time.Now().UTC(), "10.0.0.7")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			tokens, err = store.ListByAccount(ctx, accountID)
			require.NoError(t, err)
			for _, tok := range tokens {
				assert.True(t, tok.IsRevoked())
			}

			other, err := store.FindByHash(ctx, models.HashToken("someone-else"))
			require.NoError(t, err)
			assert.False(t, other.IsRevoked())
		})
	}
}

func TestRefreshTokenStore_ConcurrentRotateSingleWinner(t *testing.T) {
	for name, store := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			accountID := uuid.New()
			root := newToken(accountID, "contended", time.Hour)
			require.NoError(t, store.Create(ctx, root))

			const n = 8
			var wg sync.WaitGroup
			results := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					next := newToken(accountID, fmt.Sprintf("child-%d", i), time.Hour)
					results <- store.Rotate(ctx, root.TokenHash, time.Now().UTC(), "", next)
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrAlreadyRevoked):
				default:
					t.Fatalf("unexpected rotate error: %v", err)
				}
			}
			assert.Equal(t, 1, wins)

			tokens, err := store.ListByAccount(ctx, accountID)
			require.NoError(t, err)
			assert.Len(t, tokens, 2, "root plus exactly one successor")
		})
	}
}

func TestRedisRefreshTokenStore_KeepsExpiredAndRevokedTokens(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	store := NewRedisRefreshTokenRepository(rdb, "test", 0)

	expired := newToken(uuid.New(), "expired", -time.Second)
	require.NoError(t, store.Create(ctx, expired))
	revoked := newToken(uuid.New(), "revoked", 2*time.Second)
	require.NoError(t, store.Create(ctx, revoked))
	require.NoError(t, store.Revoke(ctx, revoked.TokenHash, time.Now().UTC(), ""))

	mr.FastForward(time.Minute)

	got, err := store.FindByHash(ctx, expired.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.IsExpired(time.Now().UTC()))
	assert.False(t, got.IsRevoked())

	got, err = store.FindByHash(ctx, revoked.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	mr.FastForward(MinRedisRetention)
	_, err = store.FindByHash(ctx, expired.TokenHash)
	assert.ErrorIs(t, err, ErrNotFound)
}
