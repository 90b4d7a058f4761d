package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"task-manager/internal/apperror"
	"task-manager/internal/avatar"
	"task-manager/internal/middleware"
	"task-manager/pkg/logger"
)

const avatarField = "avatar"

// UploadAvatar replaces the user's profile picture with the uploaded image,
// normalized to a 250x250 PNG.
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	maxBytes := h.deps.Config.AvatarMaxBytes

	file, err := c.FormFile(avatarField)
	if err != nil {
		logger.AuditLogger.Warn("Missing avatar upload", zap.String("user_id", user.ID), zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidAvatar, err))
	}
	if err := avatar.ValidateFile(file, maxBytes); err != nil {
		logger.AuditLogger.Warn("Rejected avatar upload", zap.String("user_id", user.ID), zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidAvatar, err))
	}

	f, err := file.Open()
	if err != nil {
		return respond(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return respond(c, err)
	}
	if int64(len(data)) > maxBytes {
		return respond(c, apperror.Wrap(apperror.ErrInvalidAvatar, avatar.ErrTooLarge))
	}

	img, err := avatar.Normalize(data)
	if err != nil {
		logger.AuditLogger.Warn("Rejected avatar content", zap.String("user_id", user.ID), zap.Error(err))
		return respond(c, apperror.Wrap(apperror.ErrInvalidAvatar, err))
	}
	if err := h.deps.Users.SetAvatar(c.UserContext(), user.ID, img); err != nil {
		return respond(c, storeError(err))
	}

	logger.AuditLogger.Info("Avatar uploaded", zap.String("user_id", user.ID), zap.Int("bytes", len(img)))
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) DeleteAvatar(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := h.deps.Users.SetAvatar(c.UserContext(), user.ID, nil); err != nil {
		return respond(c, storeError(err))
	}
	logger.AuditLogger.Info("Avatar removed", zap.String("user_id", user.ID))
	return c.SendStatus(fiber.StatusOK)
}

// GetAvatar serves any user's picture without authentication.
func (h *Handler) GetAvatar(c *fiber.Ctx) error {
	img, err := h.deps.Users.GetAvatar(c.UserContext(), c.Params("id"))
	if err != nil {
		return respond(c, storeError(err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(img)
}
