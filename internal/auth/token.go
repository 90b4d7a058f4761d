package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"task-manager/internal/apperror"
	"task-manager/internal/models"
	"task-manager/internal/repository"
)

// TokenService issues and checks bearer tokens. A token is an HS256 JWT
// naming the user; it stays valid until it is removed from the user's token
// collection. There is no expiry.
type TokenService struct {
	secret []byte
	users  repository.UserRepository
	now    func() time.Time
}

func NewTokenService(secret []byte, users repository.UserRepository) *TokenService {
	return &TokenService{secret: secret, users: users, now: time.Now}
}

// Issue signs a new token for userID and appends it to the user's sessions.
// Each token carries its own jti so two logins in the same second differ.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := s.users.AddToken(ctx, userID, models.Token{Token: signed, IssuedAt: now}); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return signed, nil
}

// Parse checks the signature and returns the user id the token names.
func (s *TokenService) Parse(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", apperror.Wrap(apperror.ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", apperror.ErrInvalidToken
	}
	return claims.Subject, nil
}

// Validate resolves token to its user. It fails with ErrInvalidToken for a
// bad or revoked token and ErrUserNotFound when the user no longer exists.
// Revocation is checked against the store before the profile is loaded, so
// a cached profile never decides whether a session is live.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.Parse(token)
	if err != nil {
		return nil, err
	}
	held, err := s.users.HasToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, err
	}
	if !held {
		return nil, apperror.ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Revoke ends a single session.
func (s *TokenService) Revoke(ctx context.Context, userID, token string) error {
	return s.users.RemoveToken(ctx, userID, token)
}

// RevokeAll ends every session of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	return s.users.ClearTokens(ctx, userID)
}
