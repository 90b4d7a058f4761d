package config

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"task-manager/configs"
	"task-manager/internal/auth"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
)

// Dependencies is built once at startup and handed to the routes and
// middleware; nothing reads process-wide state.
type Dependencies struct {
	Config    configs.Config
	Users     repository.UserRepository
	Tasks     repository.TaskRepository
	Passwords *auth.PasswordHasher
	Tokens    *auth.TokenService
	Validate  *validator.Validate
	Notifier  notify.Publisher
}

func NewDependencies(cfg configs.Config, users repository.UserRepository, tasks repository.TaskRepository, notifier notify.Publisher) *Dependencies {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Dependencies{
		Config:    cfg,
		Users:     users,
		Tasks:     tasks,
		Passwords: auth.NewPasswordHasher(cfg.BcryptCost),
		Tokens:    auth.NewTokenService([]byte(cfg.JWTSecret), users),
		Validate:  NewValidator(),
		Notifier:  notifier,
	}
}

// NewValidator registers the "nopassword" tag, which rejects values that
// contain the word password in any letter case.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nopassword", func(fl validator.FieldLevel) bool {
		return !strings.Contains(strings.ToLower(fl.Field().String()), "password")
	})
	return v
}
