package repository

import (
	"context"
	"errors"

	"task-manager/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository persists users together with their session tokens.
// Find methods never populate the avatar; use GetAvatar for that.
type UserRepository interface {
	// Create assigns ID and timestamps. Fails with ErrDuplicateEmail.
	Create(ctx context.Context, user *models.User) error
	// FindByID may leave Tokens empty when served from a cache.
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// Update writes name, email, password and age. Fails with ErrDuplicateEmail.
	Update(ctx context.Context, user *models.User) error
	// Delete removes the user, its tokens and every task it owns.
	Delete(ctx context.Context, id string) error

	// HasToken reports whether token is one of the user's live sessions. It
	// always reads the backing store, never a cache. Fails with ErrNotFound
	// when the user does not exist.
	HasToken(ctx context.Context, id, token string) (bool, error)
	AddToken(ctx context.Context, id string, token models.Token) error
	RemoveToken(ctx context.Context, id, token string) error
	ClearTokens(ctx context.Context, id string) error

	// SetAvatar stores the image; nil clears it.
	SetAvatar(ctx context.Context, id string, avatar []byte) error
	// GetAvatar fails with ErrNotFound when the user or the avatar is missing.
	GetAvatar(ctx context.Context, id string) ([]byte, error)
}

// TaskRepository persists tasks. Every lookup is keyed by id and owner
// together: a task owned by someone else is reported as ErrNotFound.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByOwner(ctx context.Context, id, owner string) (*models.Task, error)
	ListByOwner(ctx context.Context, owner string, filter TaskFilter, page Page) ([]models.Task, error)
	// UpdateByOwner writes description and completed of the task matching
	// task.ID and task.Owner.
	UpdateByOwner(ctx context.Context, task *models.Task) error
	DeleteByOwner(ctx context.Context, id, owner string) (*models.Task, error)
	DeleteAllByOwner(ctx context.Context, owner string) (int64, error)
}

type TaskFilter struct {
	Completed *bool
}

type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortUpdatedAt   SortField = "updatedAt"
	SortDescription SortField = "description"
	SortCompleted   SortField = "completed"
)

// ParseSortField accepts the public sort keys only.
func ParseSortField(s string) (SortField, bool) {
	switch f := SortField(s); f {
	case SortCreatedAt, SortUpdatedAt, SortDescription, SortCompleted:
		return f, true
	}
	return "", false
}

// Page describes pagination and ordering. Limit 0 means no limit.
type Page struct {
	Limit int64
	Skip  int64
	Sort  SortField
	Desc  bool
}

func (p Page) sortField() SortField {
	if p.Sort == "" {
		return SortCreatedAt
	}
	return p.Sort
}
