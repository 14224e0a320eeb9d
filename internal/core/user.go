package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrEmptyUsername = errors.New("empty username")
	ErrEmptyPassword = errors.New("empty password")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrEmptyPhone    = errors.New("empty phone")
	ErrEmptyFullName = errors.New("empty full name")

	ErrUsernameTooLong = errors.New("username too long (max 50 characters)")
)

// User is a registered account together with its XP state.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	Phone        string
	FullName     string
	BirthDate    Date
	IsAdmin      bool
	CreatedAt    time.Time
	LastLogin    time.Time
	XPState
}

// ProfileUpdate carries optional profile changes; nil fields are untouched.
type ProfileUpdate struct {
	Email        *string
	Phone        *string
	FullName     *string
	PasswordHash *string
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if len(u.Username) > 50 {
		return ErrUsernameTooLong
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if strings.TrimSpace(u.Phone) == "" {
		return ErrEmptyPhone
	}
	if strings.TrimSpace(u.FullName) == "" {
		return ErrEmptyFullName
	}
	return u.BirthDate.Validate()
}

// ValidateEmail accepts a bare RFC 5322 address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// Standing returns the user's leaderboard view.
func (u User) Standing() Standing {
	return Standing{UserID: u.ID, Username: u.Username, XP: u.XP, Level: u.Level}
}
