package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/email"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[uuid.UUID]models.Account)}
}

func (f *fakeAccountStore) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAccountStore) FindByEmail(_ context.Context, addr string) (*models.Account, error) {
	return f.findWhere(func(a *models.Account) bool { return a.Email == models.NormalizeEmail(addr) })
}

func (f *fakeAccountStore) FindByVerificationToken(_ context.Context, hash string) (*models.Account, error) {
	return f.findWhere(func(a *models.Account) bool {
		return a.VerificationTokenHash != nil && *a.VerificationTokenHash == hash
	})
}

func (f *fakeAccountStore) FindByResetToken(_ context.Context, hash string) (*models.Account, error) {
	return f.findWhere(func(a *models.Account) bool {
		return a.ResetTokenHash != nil && *a.ResetTokenHash == hash
	})
}

func (f *fakeAccountStore) findWhere(match func(*models.Account) bool) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		a := a
		if match(&a) {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountStore) Create(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.Email = models.NormalizeEmail(a.Email)
	for _, other := range f.accounts {
		if other.Email == a.Email {
			return repository.ErrDuplicate
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	f.accounts[a.ID] = *a
	return nil
}

func (f *fakeAccountStore) Update(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[a.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, other := range f.accounts {
		if id != a.ID && other.Email == a.Email {
			return repository.ErrDuplicate
		}
	}
	a.UpdatedAt = time.Now().UTC()
	f.accounts[a.ID] = *a
	return nil
}

func (f *fakeAccountStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountStore) List(_ context.Context) ([]models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	return out, nil
}

// fakeTokenStore mirrors the compare-and-set contract of the real stores.
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]models.RefreshToken)}
}

func (f *fakeTokenStore) Create(_ context.Context, t *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[t.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	f.tokens[t.TokenHash] = *t
	return nil
}

func (f *fakeTokenStore) FindByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTokenStore) Rotate(_ context.Context, oldHash string, at time.Time, ip string, next *models.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.revokeLocked(oldHash, at, ip); err != nil {
		return err
	}
	old := f.tokens[oldHash]
	replaced := next.TokenHash
	old.ReplacedByHash = &replaced
	f.tokens[oldHash] = old
	f.tokens[next.TokenHash] = *next
	return nil
}

func (f *fakeTokenStore) Revoke(_ context.Context, hash string, at time.Time, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokeLocked(hash, at, ip)
}

func (f *fakeTokenStore) revokeLocked(hash string, at time.Time, ip string) error {
	t, ok := f.tokens[hash]
	if !ok {
		return repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return repository.ErrAlreadyRevoked
	}
	t.RevokedAt = &at
	t.RevokedByIP = ip
	f.tokens[hash] = t
	return nil
}

func (f *fakeTokenStore) ListByAccount(_ context.Context, accountID uuid.UUID) ([]models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RefreshToken
	for _, t := range f.tokens {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTokenStore) RevokeAllForAccount(_ context.Context, accountID uuid.UUID, at time.Time, ip string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, t := range f.tokens {
		if t.AccountID == accountID && t.RevokedAt == nil {
			_ = f.revokeLocked(hash, at, ip)
			n++
		}
	}
	return n, nil
}

type sentEmail struct {
	To     string
	Kind   email.TemplateKind
	Params map[string]string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	// drain waits for background deliveries before inspecting sent
	drain func()
}

func (r *recordingSender) Send(_ context.Context, to string, kind email.TemplateKind, params map[string]string) (*email.DeliveryReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{To: to, Kind: kind, Params: params})
	return &email.DeliveryReceipt{MessageID: uuid.NewString(), To: to, Kind: kind, SentAt: time.Now()}, nil
}

func (r *recordingSender) last(t *testing.T, kind email.TemplateKind) sentEmail {
	t.Helper()
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Kind == kind {
			return r.sent[i]
		}
	}
	t.Fatalf("no %s email sent", kind)
	return sentEmail{}
}

func (r *recordingSender) count(kind email.TemplateKind) int {
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSender) wait() {
	if r.drain != nil {
		r.drain()
	}
}

type testEnv struct {
	cfg      *config.Config
	accounts *fakeAccountStore
	tokens   *fakeTokenStore
	mailer   *recordingSender
	verifier *CredentialVerifier
	issuer   *TokenIssuer
	sessions *SessionService
	service  *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "test-secret-key-that-is-long-enough",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 7 * 24 * time.Hour,
		ResetTokenExpiry: 24 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
		AdminEmails:      "root@example.com",
	}
	env := &testEnv{
		cfg:      cfg,
		accounts: newFakeAccountStore(),
		tokens:   newFakeTokenStore(),
		mailer:   &recordingSender{},
	}
	env.verifier = NewCredentialVerifier(env.accounts, cfg.BcryptCost)
	env.issuer = NewTokenIssuer(cfg, env.tokens)
	env.sessions = NewSessionService(env.accounts, env.tokens, env.verifier, env.issuer)
	env.service = NewAccountService(cfg, env.accounts, env.tokens, env.verifier, env.mailer)
	env.mailer.drain = env.service.Wait
	return env
}

// seedAccount stores an active, verified account with the given password.
func (e *testEnv) seedAccount(t *testing.T, addr, password string, role models.Role) *models.Account {
	t.Helper()
	hash, err := e.verifier.HashPassword(password)
	require.NoError(t, err)
	now := time.Now().UTC()
	acc := &models.Account{
		FirstName:    "Test",
		LastName:     "User",
		Email:        addr,
		PasswordHash: hash,
		Role:         role,
		VerifiedAt:   &now,
		Active:       true,
	}
	require.NoError(t, e.accounts.Create(context.Background(), acc))
	return acc
}
