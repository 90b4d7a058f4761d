package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/internal/middleware"
	"task-manager/internal/notify"
	"task-manager/pkg/logger"
)

var userUpdateKeys = []string{"name", "email", "password", "age"}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Age      *int    `json:"age"`
}

// profile holds the rules a user must satisfy after any update.
type profile struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
	Age   int    `validate:"gte=0"`
}

func (h *Handler) GetProfile(c *fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}

// UpdateProfile applies an allow-listed partial update. The merged result is
// validated before the single write, so a rejected request changes nothing.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	body := c.Body()
	if err := checkUpdateKeys(body, userUpdateKeys...); err != nil {
		logger.AuditLogger.Warn("Rejected profile update", zap.Error(err))
		return respond(c, err)
	}
	var req updateUserRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return respond(c, apperror.Wrap(apperror.ErrInvalidUser, err))
		}
	}

	user := *middleware.CurrentUser(c)
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = normalizeEmail(*req.Email)
	}
	if req.Age != nil {
		user.Age = *req.Age
	}
	if err := h.deps.Validate.Struct(profile{Name: user.Name, Email: user.Email, Age: user.Age}); err != nil {
		return respond(c, apperror.Wrap(apperror.ErrInvalidUser, err))
	}

	if req.Password != nil {
		password := strings.TrimSpace(*req.Password)
		if err := h.deps.Validate.Var(password, "required,min=7,nopassword"); err != nil {
			return respond(c, apperror.Wrap(apperror.ErrInvalidUser, err))
		}
		digest, err := h.deps.Passwords.Hash(password)
		if err != nil {
			return respond(c, err)
		}
		user.Password = digest
	}

	if err := h.deps.Users.Update(c.UserContext(), &user); err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("Profile updated", zap.String("user_id", user.ID))
	return c.JSON(user)
}

// DeleteProfile removes the account together with its tasks and sessions.
func (h *Handler) DeleteProfile(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.deps.Users.Delete(c.UserContext(), user.ID); err != nil {
		return respond(c, storeError(err))
	}

	h.deps.Notifier.Publish(notify.Event{Kind: notify.EventCancellation, Email: user.Email, Name: user.Name})
	logger.AuditLogger.Info("User deleted", zap.String("user_id", user.ID))
	return c.JSON(user)
}
