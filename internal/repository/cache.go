package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"task-manager/internal/models"
	"task-manager/pkg/logger"
)

const userCacheTTL = time.Hour

// cachedUser is the profile part of models.User. Session tokens are never
// cached: HasToken always asks the backing store.
type cachedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCachedUser(u *models.User) cachedUser {
	return cachedUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		Password:  u.Password,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (cu cachedUser) model() *models.User {
	return &models.User{
		ID:        cu.ID,
		Name:      cu.Name,
		Email:     cu.Email,
		Age:       cu.Age,
		Password:  cu.Password,
		CreatedAt: cu.CreatedAt,
		UpdatedAt: cu.UpdatedAt,
	}
}

// CachedUsers is a read-through redis cache in front of a UserRepository.
// FindByID is served from redis and returns users without their tokens;
// every write evicts the user's entry. Session checks go through HasToken,
// which bypasses the cache, so a stale entry can never revive a revoked
// token or a deleted account.
type CachedUsers struct {
	next  UserRepository
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedUsers(next UserRepository, client *redis.Client) *CachedUsers {
	return &CachedUsers{next: next, redis: client, ttl: userCacheTTL}
}

func userCacheKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// userGenKey is bumped on every eviction. FindByID watches it so a read
// that raced a write never stores the profile it read before the write.
func userGenKey(id string) string {
	return fmt.Sprintf("user:%s:gen", id)
}

func (c *CachedUsers) evict(ctx context.Context, id string) {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, userCacheKey(id))
		pipe.Incr(ctx, userGenKey(id))
		pipe.Expire(ctx, userGenKey(id), c.ttl)
		return nil
	})
	if err != nil {
		logger.ErrorLogger.Error("Error evicting cached user", zap.String("user_id", id), zap.Error(err))
	}
}

func (c *CachedUsers) Create(ctx context.Context, user *models.User) error {
	return c.next.Create(ctx, user)
}

func (c *CachedUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	key := userCacheKey(id)
	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var cu cachedUser
		if err := json.Unmarshal([]byte(cached), &cu); err == nil {
			return cu.model(), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.ErrorLogger.Error("Error reading cached user", zap.String("user_id", id), zap.Error(err))
	}

	var (
		user     *models.User
		storeErr error
	)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		user, storeErr = c.next.FindByID(ctx, id)
		if storeErr != nil {
			return nil
		}
		data, err := json.Marshal(newCachedUser(user))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetEX(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, userGenKey(id))

	switch {
	case storeErr != nil:
		return nil, storeErr
	case errors.Is(err, redis.TxFailedErr):
		logger.SystemLogger.Debug("Skipped caching user changed during read", zap.String("user_id", id))
	case err != nil:
		logger.ErrorLogger.Error("Error caching user", zap.String("user_id", id), zap.Error(err))
	}
	if user == nil {
		// redis failed before the store was read
		return c.next.FindByID(ctx, id)
	}
	return user, nil
}

func (c *CachedUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.next.FindByEmail(ctx, email)
}

func (c *CachedUsers) Update(ctx context.Context, user *models.User) error {
	defer c.evict(ctx, user.ID)
	return c.next.Update(ctx, user)
}

func (c *CachedUsers) Delete(ctx context.Context, id string) error {
	defer c.evict(ctx, id)
	return c.next.Delete(ctx, id)
}

func (c *CachedUsers) HasToken(ctx context.Context, id, token string) (bool, error) {
	return c.next.HasToken(ctx, id, token)
}

func (c *CachedUsers) AddToken(ctx context.Context, id string, token models.Token) error {
	defer c.evict(ctx, id)
	return c.next.AddToken(ctx, id, token)
}

func (c *CachedUsers) RemoveToken(ctx context.Context, id, token string) error {
	defer c.evict(ctx, id)
	return c.next.RemoveToken(ctx, id, token)
}

func (c *CachedUsers) ClearTokens(ctx context.Context, id string) error {
	defer c.evict(ctx, id)
	return c.next.ClearTokens(ctx, id)
}

func (c *CachedUsers) SetAvatar(ctx context.Context, id string, avatar []byte) error {
	return c.next.SetAvatar(ctx, id, avatar)
}

func (c *CachedUsers) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	return c.next.GetAvatar(ctx, id)
}
