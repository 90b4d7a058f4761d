package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/internal/middleware"
	"task-manager/internal/models"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
	"task-manager/pkg/logger"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=7,nopassword"`
	Age      int    `json:"age" validate:"gte=0"`
}

func (r *signupRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
	r.Password = strings.TrimSpace(r.Password)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is returned by signup and login.
type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the new user in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		logger.AuditLogger.Warn("Bad request in register", zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidUser, err))
	}
	req.normalize()
	if err := h.deps.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error during register", zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidUser, err))
	}

	digest, err := h.deps.Passwords.Hash(req.Password)
	if err != nil {
		return respond(c, err)
	}

	ctx := c.UserContext()
	user := &models.User{Name: req.Name, Email: req.Email, Age: req.Age, Password: digest}
	if err := h.deps.Users.Create(ctx, user); err != nil {
		return respond(c, storeError(err))
	}

	token, err := h.deps.Tokens.Issue(ctx, user.ID)
	if err != nil {
		return respond(c, err)
	}

	h.deps.Notifier.Publish(notify.Event{Kind: notify.EventWelcome, Email: user.Email, Name: user.Name})
	logger.AuditLogger.Info("User registered", zap.String("user_id", user.ID))
	return c.Status(fiber.StatusCreated).JSON(authResponse{User: user, Token: token})
}

// Login issues an additional token. Unknown email and wrong password are
// reported identically.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return respond(c, apperror.Wrap(apperror.ErrInvalidCredentials, err))
	}

	ctx := c.UserContext()
	user, err := h.deps.Users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return respond(c, err)
		}
		h.deps.Passwords.VerifyMissing(strings.TrimSpace(req.Password))
		logger.SecurityLogger.Warn("Login attempt for unknown email", zap.String("email", req.Email))
		return respond(c, apperror.ErrInvalidCredentials)
	}
	if !h.deps.Passwords.Verify(strings.TrimSpace(req.Password), user.Password) {
		logger.SecurityLogger.Warn("Invalid password", zap.String("user_id", user.ID))
		return respond(c, apperror.ErrInvalidCredentials)
	}

	token, err := h.deps.Tokens.Issue(ctx, user.ID)
	if err != nil {
		return respond(c, err)
	}

	logger.AuditLogger.Info("User logged in", zap.String("user_id", user.ID))
	return c.JSON(authResponse{User: user, Token: token})
}

// Logout revokes the token the request was made with.
func (h *Handler) Logout(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.deps.Tokens.Revoke(c.UserContext(), user.ID, middleware.CurrentToken(c)); err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("User logged out", zap.String("user_id", user.ID))
	return c.SendStatus(fiber.StatusOK)
}

// LogoutAll revokes every session of the user.
func (h *Handler) LogoutAll(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.deps.Tokens.RevokeAll(c.UserContext(), user.ID); err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("User logged out of all sessions", zap.String("user_id", user.ID))
	return c.SendStatus(fiber.StatusOK)
}
