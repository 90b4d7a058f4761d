package models

import (
	"time"
)

// User is a registered account. Password holds the bcrypt digest and, like
// the session tokens, is never rendered to clients.
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	Password  string    `json:"-"`
	Tokens    []Token   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasToken reports whether token is one of the user's live sessions.
func (u *User) HasToken(token string) bool {
	for _, t := range u.Tokens {
		if t.Token == token {
			return true
		}
	}
	return false
}

type Token struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issuedAt"`
}

type Task struct {
	ID          string    `json:"_id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
