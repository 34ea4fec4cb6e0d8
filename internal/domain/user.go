package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account at the boundary layer. Authentication happens
// before requests reach the crypto core, so only identity fields live here.
// Maps to the CockroachDB users table.
type User struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
