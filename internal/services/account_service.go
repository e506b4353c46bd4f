package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/email"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/repository"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 6
	mailTimeout       = 30 * time.Second
)

const (
	MsgRegistered      = "Registration successful, please check your email for verification instructions"
	MsgVerified        = "Verification successful, you can now login"
	MsgForgotPassword  = "Please check your email for password reset instructions"
	MsgResetTokenValid = "Token is valid"
	MsgPasswordReset   = "Password reset successful, you can now login"
)

type AccountService struct {
	accounts    AccountStore
	tokens      RefreshTokenStore
	verifier    *CredentialVerifier
	mailer      email.Sender
	resetTTL    time.Duration
	adminEmails map[string]struct{}
	now         func() time.Time
	pending     sync.WaitGroup
}

func NewAccountService(cfg *config.Config, accounts AccountStore, tokens RefreshTokenStore, verifier *CredentialVerifier, mailer email.Sender) *AccountService {
	admins := make(map[string]struct{})
	for _, e := range cfg.AdminEmailList() {
		admins[e] = struct{}{}
	}
	return &AccountService{
		accounts:    accounts,
		tokens:      tokens,
		verifier:    verifier,
		mailer:      mailer,
		resetTTL:    cfg.ResetTokenExpiry,
		adminEmails: admins,
		now:         time.Now,
	}
}

// Register creates an unverified account and mails a verification link. When
// the email is taken it returns ErrEmailAlreadyRegistered after mailing the
// owner; callers must not reveal that to the client.
func (s *AccountService) Register(ctx context.Context, req *dto.RegisterRequest) error {
	addr, err := validateProfile(req.FirstName, req.LastName, req.Email)
	if err != nil {
		return err
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return err
	}
	if !req.AcceptTerms {
		return validationError("Terms and conditions must be accepted")
	}

	// Hash before the lookup so both outcomes cost one bcrypt run
	hash, err := s.verifier.HashPassword(req.Password)
	if err != nil {
		return err
	}
	existing, err := s.accounts.FindByEmail(ctx, addr)
	switch {
	case err == nil:
		return s.notifyAlreadyRegistered(ctx, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to check email: %w", err)
	}
	verification, err := randomToken()
	if err != nil {
		return err
	}
	verificationHash := models.HashToken(verification)

	role := models.RoleUser
	if _, ok := s.adminEmails[addr]; ok {
		role = models.RoleAdmin
	}

	account := &models.Account{
		ID:                    uuid.New(),
		Title:                 strings.TrimSpace(req.Title),
		FirstName:             strings.TrimSpace(req.FirstName),
		LastName:              strings.TrimSpace(req.LastName),
		Email:                 addr,
		PasswordHash:          hash,
		Role:                  role,
		VerificationTokenHash: &verificationHash,
		Active:                true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrEmailAlreadyRegistered
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.send(ctx, account.Email, email.KindVerification, map[string]string{"token": verification})
	slog.Info("account registered", "account_id", account.ID.String(), "role", string(role))
	return nil
}

// notifyAlreadyRegistered mails the owner of an existing account. Unverified
// owners get a fresh verification link since only token hashes are kept.
func (s *AccountService) notifyAlreadyRegistered(ctx context.Context, account *models.Account) error {
	params := map[string]string{}
	if !account.IsVerified() {
		verification, err := randomToken()
		if err != nil {
			return err
		}
		hash := models.HashToken(verification)
		account.VerificationTokenHash = &hash
		if err := s.save(ctx, account); err != nil {
			return err
		}
		params["token"] = verification
	}
	s.send(ctx, account.Email, email.KindAlreadyRegistered, params)
	return ErrEmailAlreadyRegistered
}

func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	account, err := s.accounts.FindByVerificationToken(ctx, models.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Error{Kind: KindInvalidToken, Message: "Verification failed"}
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	now := s.now().UTC()
	account.VerifiedAt = &now
	account.VerificationTokenHash = nil
	if err := s.save(ctx, account); err != nil {
		return err
	}
	slog.Info("email verified", "account_id", account.ID.String())
	return nil
}

// ForgotPassword issues a reset token when the account exists. The outcome is
// not reported so the endpoint cannot be used to probe for accounts.
func (s *AccountService) ForgotPassword(ctx context.Context, addr string) error {
	account, err := s.accounts.FindByEmail(ctx, models.NormalizeEmail(addr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	reset, err := randomToken()
	if err != nil {
		return err
	}
	hash := models.HashToken(reset)
	expires := s.now().UTC().Add(s.resetTTL)
	account.ResetTokenHash = &hash
	account.ResetTokenExpiresAt = &expires
	if err := s.save(ctx, account); err != nil {
		return err
	}

	s.send(ctx, account.Email, email.KindPasswordReset, map[string]string{"token": reset})
	return nil
}

func (s *AccountService) ValidateResetToken(ctx context.Context, token string) error {
	_, err := s.findByResetToken(ctx, token)
	return err
}

// ResetPassword sets a new password, marks the mailbox as proven and revokes
// every refresh token of the account.
func (s *AccountService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return err
	}
	account, err := s.findByResetToken(ctx, req.Token)
	if err != nil {
		return err
	}

	hash, err := s.verifier.HashPassword(req.Password)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	account.PasswordHash = hash
	account.PasswordResetAt = &now
	account.ResetTokenHash = nil
	account.ResetTokenExpiresAt = nil
	if err := s.save(ctx, account); err != nil {
		return err
	}

	s.revokeAll(ctx, account.ID, "password reset")
	s.send(ctx, account.Email, email.KindPasswordChanged, nil)
	return nil
}

func (s *AccountService) List(ctx context.Context) ([]dto.AccountResponse, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	resp := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, ToAccountResponse(&accounts[i]))
	}
	return resp, nil
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToAccountResponse(account)
	return &resp, nil
}

// FindActive resolves an authenticated subject to a usable account.
func (s *AccountService) FindActive(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, ErrUnauthorized
	}
	return account, nil
}

// Create is the admin path: the account starts verified.
func (s *AccountService) Create(ctx context.Context, req *dto.CreateAccountRequest) (*dto.AccountResponse, error) {
	addr, err := validateProfile(req.FirstName, req.LastName, req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
		return nil, err
	}
	role := models.RoleUser
	if req.Role != "" {
		role = models.Role(req.Role)
		if !role.Valid() {
			return nil, validationError("Role must be User or Admin")
		}
	}

	hash, err := s.verifier.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	account := &models.Account{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(req.Title),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        addr,
		PasswordHash: hash,
		Role:         role,
		VerifiedAt:   &now,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTakenError(addr)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	resp := ToAccountResponse(account)
	return &resp, nil
}

// Update applies the non-empty fields of req. Only admins may change roles.
func (s *AccountService) Update(ctx context.Context, id uuid.UUID, req *dto.UpdateAccountRequest, requester *models.Account) (*dto.AccountResponse, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(req.Title); v != "" {
		account.Title = v
	}
	if v := strings.TrimSpace(req.FirstName); v != "" {
		account.FirstName = v
	}
	if v := strings.TrimSpace(req.LastName); v != "" {
		account.LastName = v
	}
	if req.Email != "" {
		addr, err := validateEmail(req.Email)
		if err != nil {
			return nil, err
		}
		account.Email = addr
	}
	if req.Password != "" {
		if err := validatePassword(req.Password, req.ConfirmPassword); err != nil {
			return nil, err
		}
		hash, err := s.verifier.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}
	if req.Role != "" && models.Role(req.Role) != account.Role {
		if requester == nil || !requester.IsAdmin() {
			return nil, ErrUnauthorized
		}
		role := models.Role(req.Role)
		if !role.Valid() {
			return nil, validationError("Role must be User or Admin")
		}
		account.Role = role
	}

	if err := s.save(ctx, account); err != nil {
		return nil, err
	}

	resp := ToAccountResponse(account)
	return &resp, nil
}

func (s *AccountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	s.revokeAll(ctx, id, "account deleted")
	slog.Info("account deleted", "account_id", id.String())
	return nil
}

// SetActive activates or deactivates an account. Deactivation revokes all of
// its refresh tokens.
func (s *AccountService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*dto.AccountResponse, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	account.Active = active
	if err := s.save(ctx, account); err != nil {
		return nil, err
	}
	if !active {
		s.revokeAll(ctx, id, "account deactivated")
	}

	slog.Info("account active state changed", "account_id", id.String(), "active", active)
	resp := ToAccountResponse(account)
	return &resp, nil
}

// save writes back an account loaded earlier in the request. It fails with
// ErrAccountNotFound when the account was deleted in between.
func (s *AccountService) save(ctx context.Context, account *models.Account) error {
	if err := s.accounts.Update(ctx, account); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrAccountNotFound
		case errors.Is(err, repository.ErrDuplicate):
			return emailTakenError(account.Email)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (s *AccountService) find(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

func (s *AccountService) findByResetToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	account, err := s.accounts.FindByResetToken(ctx, models.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account.ResetTokenExpiresAt == nil || !s.now().Before(*account.ResetTokenExpiresAt) {
		return nil, ErrInvalidToken
	}
	return account, nil
}

func (s *AccountService) revokeAll(ctx context.Context, accountID uuid.UUID, reason string) {
	n, err := s.tokens.RevokeAllForAccount(ctx, accountID, s.now().UTC(), "")
	if err != nil {
		slog.Error("failed to revoke refresh tokens", "account_id", accountID.String(), "reason", reason, "error", err)
		return
	}
	if n > 0 {
		slog.Info("refresh tokens revoked", "account_id", accountID.String(), "reason", reason, "count", n)
	}
}

// send delivers best effort; a mail failure never fails the account operation.
// send delivers in the background so response times do not reveal whether a
// message went out. Failures are logged only.
func (s *AccountService) send(ctx context.Context, to string, kind email.TemplateKind, params map[string]string) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()
		if _, err := s.mailer.Send(ctx, to, kind, params); err != nil {
			slog.Error("failed to send email", "kind", string(kind), "error", err)
		}
	}()
}

// Wait blocks until queued emails have been handed to the mailer.
func (s *AccountService) Wait() {
	s.pending.Wait()
}

func ToAccountResponse(a *models.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:         a.ID,
		Title:      a.Title,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Role:       string(a.Role),
		Created:    a.CreatedAt,
		Updated:    a.UpdatedAt,
		IsVerified: a.IsVerified(),
		IsActive:   a.Active,
	}
}

func ToRefreshTokenResponse(t *models.RefreshToken, now time.Time) dto.RefreshTokenResponse {
	prefix := t.TokenHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return dto.RefreshTokenResponse{
		ID:          t.ID,
		TokenPrefix: prefix,
		Created:     t.CreatedAt,
		CreatedByIP: t.CreatedByIP,
		Expires:     t.ExpiresAt,
		Revoked:     t.RevokedAt,
		RevokedByIP: t.RevokedByIP,
		Replaced:    t.ReplacedByHash != nil,
		IsExpired:   t.IsExpired(now),
		IsActive:    t.IsActive(now),
	}
}

func validateProfile(firstName, lastName, addr string) (string, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return "", validationError("First name and last name are required")
	}
	return validateEmail(addr)
}

func validateEmail(addr string) (string, error) {
	normalized := models.NormalizeEmail(addr)
	parsed, err := mail.ParseAddress(normalized)
	if err != nil || parsed.Address != normalized {
		return "", validationError("Email is invalid")
	}
	return normalized, nil
}

func validatePassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return validationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if confirm != "" && confirm != password {
		return validationError("Passwords must match")
	}
	return nil
}
