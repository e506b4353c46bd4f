package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusAlready  int64 = 2
)

// KEYS[1] token hash key
// ARGV[1] revoked_at, ARGV[2] revoked_by_ip
const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "revoked_at") == 1 then
  return 2
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1], "revoked_by_ip", ARGV[2])
return 1
`

// KEYS[1] old token key, KEYS[2] new token key, KEYS[3] account set key
// ARGV[1] revoked_at, ARGV[2] revoked_by_ip, ARGV[3] new token hash,
// ARGV[4] new key ttl (ms), ARGV[5..] new token field/value pairs
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "revoked_at") == 1 then
  return 2
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1], "revoked_by_ip", ARGV[2], "replaced_by_hash", ARGV[3])
redis.call("HSET", KEYS[2], unpack(ARGV, 5))
redis.call("PEXPIRE", KEYS[2], ARGV[4])
redis.call("SADD", KEYS[3], ARGV[3])
redis.call("PEXPIRE", KEYS[3], ARGV[4])
return 1
`

// MinRedisRetention keeps expired and revoked tokens readable long enough to
// report them as such instead of as unknown.
const MinRedisRetention = time.Hour

var (
	revokeLua = redis.NewScript(revokeScript)
	rotateLua = redis.NewScript(rotateScript)
)

// RedisRefreshTokenRepository keeps one hash per token plus a set of token
// hashes per account. Revocation runs inside Lua scripts, which Redis executes
// atomically. Keys live until the token expires plus retention, which is never
// less than MinRedisRetention.
type RedisRefreshTokenRepository struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisRefreshTokenRepository(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRefreshTokenRepository {
	if prefix == "" {
		prefix = "auth"
	}
	if retention < MinRedisRetention {
		retention = MinRedisRetention
	}
	return &RedisRefreshTokenRepository{client: client, prefix: prefix, retention: retention}
}

func (r *RedisRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	ttl := r.ttl(token)
	tokenKey := r.tokenKey(token.TokenHash)
	accountKey := r.accountKey(token.AccountID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey, encodeToken(token)...)
		pipe.PExpire(ctx, tokenKey, ttl)
		pipe.SAdd(ctx, accountKey, token.TokenHash)
		pipe.PExpire(ctx, accountKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *RedisRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	fields, err := r.client.HGetAll(ctx, r.tokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeToken(tokenHash, fields)
}

func (r *RedisRefreshTokenRepository) Rotate(ctx context.Context, oldHash string, revokedAt time.Time, ip string, next *models.RefreshToken) error {
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = revokedAt
	}
	keys := []string{r.tokenKey(oldHash), r.tokenKey(next.TokenHash), r.accountKey(next.AccountID)}
	args := []interface{}{formatTime(revokedAt), ip, next.TokenHash, r.ttl(next).Milliseconds()}
	args = append(args, encodeToken(next)...)

	status, err := rotateLua.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return revokeResult(status)
}

func (r *RedisRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time, ip string) error {
	status, err := revokeLua.Run(ctx, r.client, []string{r.tokenKey(tokenHash)}, formatTime(revokedAt), ip).Int64()
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return revokeResult(status)
}

func (r *RedisRefreshTokenRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.RefreshToken, error) {
	hashes, err := r.client.SMembers(ctx, r.accountKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	if _, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, h := range hashes {
			cmds[i] = pipe.HGetAll(ctx, r.tokenKey(h))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}

	tokens := make([]models.RefreshToken, 0, len(hashes))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// expired out of Redis; the set member is stale
			continue
		}
		tok, err := decodeToken(hashes[i], fields)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *tok)
	}
	sortTokensNewestFirst(tokens)
	return tokens, nil
}

func (r *RedisRefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, revokedAt time.Time, ip string) (int64, error) {
	hashes, err := r.client.SMembers(ctx, r.accountKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	var revoked int64
	for _, h := range hashes {
		err := r.Revoke(ctx, h, revokedAt, ip)
		switch {
		case err == nil:
			revoked++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyRevoked):
		default:
			return revoked, err
		}
	}
	return revoked, nil
}

func (r *RedisRefreshTokenRepository) ttl(token *models.RefreshToken) time.Duration {
	ttl := time.Until(token.ExpiresAt) + r.retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (r *RedisRefreshTokenRepository) tokenKey(tokenHash string) string {
	return r.prefix + ":rt:" + tokenHash
}

func (r *RedisRefreshTokenRepository) accountKey(accountID uuid.UUID) string {
	return r.prefix + ":rt:account:" + accountID.String()
}

func revokeResult(status int64) error {
	switch status {
	case revokeStatusRevoked:
		return nil
	case revokeStatusNotFound:
		return ErrNotFound
	case revokeStatusAlready:
		return ErrAlreadyRevoked
	default:
		return fmt.Errorf("unexpected revoke status %d", status)
	}
}

func encodeToken(t *models.RefreshToken) []interface{} {
	return []interface{}{
		"id", t.ID.String(),
		"account_id", t.AccountID.String(),
		"expires_at", formatTime(t.ExpiresAt),
		"created_at", formatTime(t.CreatedAt),
		"created_by_ip", t.CreatedByIP,
	}
}

func decodeToken(tokenHash string, fields map[string]string) (*models.RefreshToken, error) {
	tok := &models.RefreshToken{
		TokenHash:   tokenHash,
		CreatedByIP: fields["created_by_ip"],
		RevokedByIP: fields["revoked_by_ip"],
	}
	var err error
	if tok.ID, err = uuid.Parse(fields["id"]); err != nil {
		return nil, fmt.Errorf("corrupt refresh token %q: %w", "id", err)
	}
	if tok.AccountID, err = uuid.Parse(fields["account_id"]); err != nil {
		return nil, fmt.Errorf("corrupt refresh token %q: %w", "account_id", err)
	}
	if tok.ExpiresAt, err = time.Parse(time.RFC3339Nano, fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("corrupt refresh token %q: %w", "expires_at", err)
	}
	if tok.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("corrupt refresh token %q: %w", "created_at", err)
	}
	if v, ok := fields["revoked_at"]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("corrupt refresh token %q: %w", "revoked_at", err)
		}
		tok.RevokedAt = &at
	}
	if v, ok := fields["replaced_by_hash"]; ok {
		tok.ReplacedByHash = &v
	}
	return tok, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sortTokensNewestFirst(tokens []models.RefreshToken) {
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
}
