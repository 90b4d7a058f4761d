package repository

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"task-manager/internal/models"
)

// MemoryStore keeps users and tasks in process memory. It backs the
// "memory" storage driver and the API tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*memoryUser
	tasks   map[string]*models.Task
	order   []string
	nowFunc func() time.Time
}

type memoryUser struct {
	user   models.User
	avatar []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*memoryUser),
		tasks:   make(map[string]*models.Task),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }
func (s *MemoryStore) Tasks() TaskRepository { return memoryTasks{s} }

func (s *MemoryStore) now() time.Time { return s.nowFunc().UTC() }

func copyUser(u models.User) *models.User {
	u.Tokens = append([]models.Token(nil), u.Tokens...)
	return &u
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) emailTaken(email, except string) bool {
	for id, mu := range r.s.users {
		if id != except && strings.EqualFold(mu.user.Email, email) {
			return true
		}
	}
	return false
}

func (r memoryUsers) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.emailTaken(user.Email, "") {
		return ErrDuplicateEmail
	}
	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = &memoryUser{user: *copyUser(*user)}
	return nil
}

func (r memoryUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	mu, ok := r.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(mu.user), nil
}

func (r memoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, mu := range r.s.users {
		if strings.EqualFold(mu.user.Email, email) {
			return copyUser(mu.user), nil
		}
	}
	return nil, ErrNotFound
}

func (r memoryUsers) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mu, ok := r.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return ErrDuplicateEmail
	}
	mu.user.Name = user.Name
	mu.user.Email = user.Email
	mu.user.Password = user.Password
	mu.user.Age = user.Age
	mu.user.UpdatedAt = r.s.now()
	user.UpdatedAt = mu.user.UpdatedAt
	return nil
}

func (r memoryUsers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return ErrNotFound
	}
	memoryTasks(r).deleteOwned(id)
	delete(r.s.users, id)
	return nil
}

func (r memoryUsers) HasToken(_ context.Context, id, token string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	mu, ok := r.s.users[id]
	if !ok {
		return false, ErrNotFound
	}
	return mu.user.HasToken(token), nil
}

func (r memoryUsers) AddToken(_ context.Context, id string, token models.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mu, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	mu.user.Tokens = append(mu.user.Tokens, token)
	return nil
}

func (r memoryUsers) RemoveToken(_ context.Context, id, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mu, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	kept := mu.user.Tokens[:0]
	for _, t := range mu.user.Tokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	mu.user.Tokens = kept
	return nil
}

func (r memoryUsers) ClearTokens(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mu, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	mu.user.Tokens = nil
	return nil
}

func (r memoryUsers) SetAvatar(_ context.Context, id string, avatar []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	mu, ok := r.s.users[id]
	if !ok {
		return ErrNotFound
	}
	mu.avatar = append([]byte(nil), avatar...)
	if avatar == nil {
		mu.avatar = nil
	}
	return nil
}

func (r memoryUsers) GetAvatar(_ context.Context, id string) ([]byte, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	mu, ok := r.s.users[id]
	if !ok || len(mu.avatar) == 0 {
		return nil, ErrNotFound
	}
	return append([]byte(nil), mu.avatar...), nil
}

type memoryTasks struct{ s *MemoryStore }

func (r memoryTasks) Create(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[task.Owner]; !ok {
		return ErrNotFound
	}
	now := r.s.now()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now
	t := *task
	r.s.tasks[task.ID] = &t
	r.s.order = append(r.s.order, task.ID)
	return nil
}

func (r memoryTasks) owned(id, owner string) (*models.Task, bool) {
	t, ok := r.s.tasks[id]
	if !ok || t.Owner != owner {
		return nil, false
	}
	return t, true
}

func (r memoryTasks) FindByOwner(_ context.Context, id, owner string) (*models.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.owned(id, owner)
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (r memoryTasks) ListByOwner(_ context.Context, owner string, filter TaskFilter, page Page) ([]models.Task, error) {
	r.s.mu.RLock()
	tasks := make([]models.Task, 0)
	for _, id := range r.s.order {
		t, ok := r.s.tasks[id]
		if !ok || t.Owner != owner {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		tasks = append(tasks, *t)
	}
	r.s.mu.RUnlock()

	less := taskLess(page.sortField())
	sort.SliceStable(tasks, func(i, j int) bool {
		if page.Desc {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})

	if page.Skip > 0 {
		if page.Skip >= int64(len(tasks)) {
			return []models.Task{}, nil
		}
		tasks = tasks[page.Skip:]
	}
	if page.Limit > 0 && page.Limit < int64(len(tasks)) {
		tasks = tasks[:page.Limit]
	}
	return tasks, nil
}

func taskLess(field SortField) func(a, b models.Task) bool {
	switch field {
	case SortUpdatedAt:
		return func(a, b models.Task) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortDescription:
		return func(a, b models.Task) bool { return a.Description < b.Description }
	case SortCompleted:
		return func(a, b models.Task) bool { return !a.Completed && b.Completed }
	default:
		return func(a, b models.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}

func (r memoryTasks) UpdateByOwner(_ context.Context, task *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.owned(task.ID, task.Owner)
	if !ok {
		return ErrNotFound
	}
	t.Description = task.Description
	t.Completed = task.Completed
	t.UpdatedAt = r.s.now()
	task.UpdatedAt = t.UpdatedAt
	return nil
}

func (r memoryTasks) DeleteByOwner(_ context.Context, id, owner string) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.owned(id, owner)
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.s.tasks, id)
	r.pruneOrder()
	return t, nil
}

func (r memoryTasks) DeleteAllByOwner(_ context.Context, owner string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deleteOwned(owner), nil
}

// deleteOwned expects the write lock to be held.
func (r memoryTasks) deleteOwned(owner string) int64 {
	var n int64
	for id, t := range r.s.tasks {
		if t.Owner == owner {
			delete(r.s.tasks, id)
			n++
		}
	}
	if n > 0 {
		r.pruneOrder()
	}
	return n
}

// pruneOrder drops ids of deleted tasks from the insertion order. The write
// lock must be held.
func (r memoryTasks) pruneOrder() {
	r.s.order = slices.DeleteFunc(r.s.order, func(id string) bool {
		_, ok := r.s.tasks[id]
		return !ok
	})
}
