package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/accounts-backend/internal/services"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const refreshTokenCookie = "refreshToken"

type AccountHandler struct {
	sessions *services.SessionService
	accounts *services.AccountService
	cfg      *config.Config
}

func NewAccountHandler(sessions *services.SessionService, accounts *services.AccountService, cfg *config.Config) *AccountHandler {
	return &AccountHandler{sessions: sessions, accounts: accounts, cfg: cfg}
}

func (h *AccountHandler) Authenticate(c *fiber.Ctx) error {
	var req dto.AuthenticateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	pair, err := h.sessions.Authenticate(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return h.fail(c, err)
	}
	return h.respondWithTokens(c, pair)
}

func (h *AccountHandler) RefreshToken(c *fiber.Ctx) error {
	token := c.Cookies(refreshTokenCookie)
	if token == "" {
		var req dto.TokenRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		token = req.Token
	}
	if token == "" {
		return badRequest(c, "Refresh token is required")
	}

	pair, err := h.sessions.Rotate(c.UserContext(), token, c.IP())
	if err != nil {
		return h.fail(c, err)
	}
	return h.respondWithTokens(c, pair)
}

func (h *AccountHandler) RevokeToken(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	cookie := c.Cookies(refreshTokenCookie)
	token := req.Token
	if token == "" {
		token = cookie
	}
	if token == "" {
		return badRequest(c, "Token is required")
	}

	if err := h.sessions.Revoke(c.UserContext(), token, middleware.CurrentAccount(c), c.IP()); err != nil {
		return h.fail(c, err)
	}
	if token == cookie {
		h.clearTokenCookie(c)
	}
	return c.JSON(dto.MessageResponse{Message: "Token revoked"})
}

func (h *AccountHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	err := h.accounts.Register(c.UserContext(), &req)
	if err != nil && !errors.Is(err, services.ErrEmailAlreadyRegistered) {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: services.MsgRegistered})
}

func (h *AccountHandler) VerifyEmail(c *fiber.Ctx) error {
	var req dto.VerifyEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.accounts.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: services.MsgVerified})
}

func (h *AccountHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.accounts.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: services.MsgForgotPassword})
}

func (h *AccountHandler) ValidateResetToken(c *fiber.Ctx) error {
	var req dto.ValidateResetTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.accounts.ValidateResetToken(c.UserContext(), req.Token); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: services.MsgResetTokenValid})
}

func (h *AccountHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.accounts.ResetPassword(c.UserContext(), &req); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: services.MsgPasswordReset})
}

func (h *AccountHandler) List(c *fiber.Ctx) error {
	accounts, err := h.accounts.List(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(accounts)
}

func (h *AccountHandler) Get(c *fiber.Ctx) error {
	id, ok := h.ownedID(c)
	if !ok {
		return nil
	}

	account, err := h.accounts.Get(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) ListRefreshTokens(c *fiber.Ctx) error {
	id, ok := h.ownedID(c)
	if !ok {
		return nil
	}

	tokens, err := h.sessions.ListTokens(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	now := time.Now()
	resp := make([]dto.RefreshTokenResponse, 0, len(tokens))
	for i := range tokens {
		resp = append(resp, services.ToRefreshTokenResponse(&tokens[i], now))
	}
	return c.JSON(resp)
}

func (h *AccountHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	account, err := h.accounts.Create(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) Update(c *fiber.Ctx) error {
	id, ok := h.ownedID(c)
	if !ok {
		return nil
	}
	var req dto.UpdateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	account, err := h.accounts.Update(c.UserContext(), id, &req, middleware.CurrentAccount(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(account)
}

func (h *AccountHandler) SetActive(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, services.ErrAccountNotFound)
	}
	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Active == nil {
		return badRequest(c, "Active status must be a boolean value")
	}

	account, err := h.accounts.SetActive(c.UserContext(), id, *req.Active)
	if err != nil {
		return h.fail(c, err)
	}
	msg := "Account deactivated successfully"
	if *req.Active {
		msg = "Account activated successfully"
	}
	return c.JSON(dto.SetActiveResponse{AccountResponse: *account, Message: msg})
}

func (h *AccountHandler) Delete(c *fiber.Ctx) error {
	id, ok := h.ownedID(c)
	if !ok {
		return nil
	}

	if err := h.accounts.Delete(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Account deleted successfully"})
}

// ownedID parses :id and checks that the caller owns it or is an admin. When
// it returns false the response has already been written.
func (h *AccountHandler) ownedID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = h.fail(c, services.ErrAccountNotFound)
		return uuid.Nil, false
	}
	requester := middleware.CurrentAccount(c)
	if requester == nil || (requester.ID != id && !requester.IsAdmin()) {
		_ = h.fail(c, services.ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AccountHandler) respondWithTokens(c *fiber.Ctx, pair *services.TokenPair) error {
	h.setTokenCookie(c, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	return c.JSON(dto.AuthenticateResponse{
		AccountResponse:     services.ToAccountResponse(pair.Account),
		JWTToken:            pair.AccessToken,
		JWTTokenExpires:     pair.AccessTokenExpiresAt,
		RefreshToken:        pair.RefreshToken,
		RefreshTokenExpires: pair.RefreshTokenExpiresAt,
	})
}

func (h *AccountHandler) setTokenCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AccountHandler) clearTokenCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AccountHandler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"error", err.Error(),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: "Internal server error"})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
}

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindInvalidCredentials, services.KindTokenRevoked, services.KindTokenExpired, services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindInvalidToken, services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindEmailAlreadyRegistered:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: msg})
}
