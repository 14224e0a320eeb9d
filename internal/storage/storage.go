// Package storage defines the persistence ports shared by every engine.
package storage

import (
	"context"
	"time"

	"poupanca/internal/core"
)

// Ports for the persistence engines.
type (
	// UserDirectory stores accounts and owns the per-user XP lock.
	UserDirectory interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		UpdateProfile(ctx context.Context, id int64, p core.ProfileUpdate) (core.User, error)
		DeleteUser(ctx context.Context, id int64) error
		TouchLastLogin(ctx context.Context, id int64, at time.Time) error
		ListUserIDs(ctx context.Context) ([]int64, error)

		// UpdateXP reads the user's XP state with write intent, applies fn and
		// writes the result back guarded by the state version. A concurrent
		// writer that slipped in between surfaces as core.ErrConflict; an
		// error from fn aborts without writing.
		UpdateXP(ctx context.Context, id int64, fn func(*core.XPState) error) (core.XPState, error)

		// TopStandings returns up to n users by XP descending, then id
		// ascending. A non-positive n returns every user.
		TopStandings(ctx context.Context, n int) ([]core.Standing, error)
		// CountAbove counts users with strictly more than xp.
		CountAbove(ctx context.Context, xp int64) (int64, error)
	}

	CategoryStore interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		DeleteCategory(ctx context.Context, id int64) error
	}

	// TransactionStore scopes every read and write by owner.
	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error)
		// ListTransactions returns newest first. A non-positive Limit means
		// no limit.
		ListTransactions(ctx context.Context, userID int64, f core.TransactionFilter) ([]core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id int64) error
	}

	// ExportQueue tracks which transactions still need to reach the sheet.
	ExportQueue interface {
		PendingExports(ctx context.Context, limit int) ([]core.Transaction, error)
		MarkExported(ctx context.Context, id int64, ref string) error
	}

	Store interface {
		UserDirectory
		CategoryStore
		TransactionStore
		ExportQueue
		Ping(ctx context.Context) error
		Close() error
	}
)

// SameXP reports whether two states would persist identically.
func SameXP(a, b core.XPState) bool {
	return a.XP == b.XP && a.Level == b.Level && a.LastGrant.Equal(b.LastGrant)
}
