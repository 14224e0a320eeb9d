package services

import (
	"errors"
	"fmt"

	"poupanca/internal/core"
)

// Errors the HTTP layer turns into specific messages. Each wraps the core
// sentinel it refines so errors.Is keeps working on both.
var (
	ErrUsernameTaken    = fmt.Errorf("username %w", core.ErrAlreadyExists)
	ErrEmailTaken       = fmt.Errorf("email %w", core.ErrAlreadyExists)
	ErrUserNotFound     = fmt.Errorf("user %w", core.ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", core.ErrNotFound)
	ErrTxNotFound       = fmt.Errorf("transaction %w", core.ErrNotFound)
	ErrAdminRequired    = fmt.Errorf("admin privileges required: %w", core.ErrForbidden)
)

// CategoryMismatchError reports a transaction whose type disagrees with its
// category.
type CategoryMismatchError struct {
	CategoryType core.TransactionType
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("category is of type %s", e.CategoryType)
}

func (e *CategoryMismatchError) Unwrap() error { return core.ErrCategoryMismatch }

// refine swaps a bare core.ErrNotFound for the more specific target.
func refine(err, target error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %v", target, err)
	}
	return err
}
