package models

import (
	"time"

	"greendrake/rentals/internal/utils"
)

// User represents a user in the system.
type User struct {
	Base         `bson:",inline"`
	Name         string    `bson:"name" json:"name" db:"name"`
	Email        string    `bson:"email" json:"email" db:"email"`
	PasswordHash string    `bson:"password" json:"-" db:"password_hash"` // Store hash, not plaintext
	IsAdmin      bool      `bson:"is_admin" json:"is_admin" db:"is_admin"`
	Suspended    bool      `bson:"suspended" json:"suspended" db:"suspended"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at" db:"updated_at"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at" db:"created_at"`
}

// UserSummary is the public part of a user attached to other records.
type UserSummary struct {
	ID   utils.SixID `json:"id"`
	Name string      `json:"name"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name}
}

// RegisterUserInput is the accepted payload for sign-up.
type RegisterUserInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// CreateSessionInput is the accepted payload for sign-in.
type CreateSessionInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
