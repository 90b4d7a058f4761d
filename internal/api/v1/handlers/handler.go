package handlers

import (
	"encoding/json"
	"errors"
	"slices"

	"task-manager/internal/apperror"
	"task-manager/internal/config"
	"task-manager/internal/middleware"
	"task-manager/internal/repository"
)

// Handler serves the user, avatar and task resources.
type Handler struct {
	deps *config.Dependencies
}

func New(deps *config.Dependencies) *Handler {
	return &Handler{deps: deps}
}

var respond = middleware.RespondError

// storeError translates repository failures into the client-facing taxonomy.
func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperror.ErrNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperror.Wrap(apperror.ErrDuplicateEmail, err)
	default:
		return err
	}
}

// checkUpdateKeys rejects a PATCH body holding any key outside allowed.
func checkUpdateKeys(body []byte, allowed ...string) error {
	if len(body) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return apperror.Wrap(apperror.ErrInvalidUpdate, err)
	}
	for key := range fields {
		if !slices.Contains(allowed, key) {
			return apperror.ErrInvalidUpdate
		}
	}
	return nil
}
