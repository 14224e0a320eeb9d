package core

import "errors"

// Errors shared by the stores, services and HTTP layer. Callers match them
// with errors.Is; stores wrap them with context.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("concurrent modification")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidXPAmount    = errors.New("xp amount must be positive")
)

// ErrInUse is returned when deleting a record that others still reference.
var ErrInUse = errors.New("still referenced")
