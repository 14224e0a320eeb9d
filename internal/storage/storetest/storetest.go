// Package storetest holds the behaviour every storage.Store must share.
// Engine packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poupanca/internal/core"
	"poupanca/internal/storage"
)

// Run exercises s. The store must start empty apart from default categories.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("update xp", func(t *testing.T) { testUpdateXP(t, newStore(t)) })
	t.Run("concurrent daily grant", func(t *testing.T) { testConcurrentGrant(t, newStore(t)) })
	t.Run("standings", func(t *testing.T) { testStandings(t, newStore(t)) })
	t.Run("categories", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("exports", func(t *testing.T) { testExports(t, newStore(t)) })
}

// NewUser builds a valid user for username.
func NewUser(username string) core.User {
	return core.User{
		Username:     username,
		PasswordHash: "hash",
		Email:        username + "@example.com",
		Phone:        "11999990000",
		FullName:     "Test " + username,
		BirthDate:    core.NewDate(1990, 1, 15),
		XPState:      core.NewXPState(),
	}
}

func mustCreate(t *testing.T, s storage.Store, username string) core.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), NewUser(username))
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "ana")
	assert.Positive(t, u.ID)
	assert.Equal(t, int64(0), u.XP)
	assert.Equal(t, 1, u.Level)
	assert.True(t, u.LastGrant.IsEmpty())

	_, err := s.CreateUser(ctx, NewUser("ana"))
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	dup := NewUser("bia")
	dup.Email = "ana@example.com"
	_, err = s.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	got, err := s.GetUserByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "1990-01-15", got.BirthDate.String())

	_, err = s.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, core.ErrNotFound)

	phone := "21888880000"
	updated, err := s.UpdateProfile(ctx, u.ID, core.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, u.Email, updated.Email)

	at := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.TouchLastLogin(ctx, u.ID, at))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.LastLogin.Equal(at))

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{u.ID}, ids)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), core.ErrNotFound)
}

func testUpdateXP(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "caio")
	today := core.NewDate(2024, 3, 10)

	st, err := s.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
		_, err := x.GrantDaily(today)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.XP)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.XP)
	assert.True(t, got.LastGrant.Equal(today))

	st, err = s.UpdateXP(ctx, u.ID, func(x *core.XPState) error { return x.AddXP(1000) })
	require.NoError(t, err)
	assert.Equal(t, int64(1050), st.XP)
	assert.Equal(t, 4, st.Level)

	boom := errors.New("boom")
	_, err = s.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
		x.XP = 0
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), got.XP)

	_, err = s.UpdateXP(ctx, 9999, func(*core.XPState) error { return nil })
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testConcurrentGrant(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "duda")
	today := core.NewDate(2024, 3, 10)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var res core.GrantResult
				_, err := s.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
					var err error
					res, err = x.GrantDaily(today)
					return err
				})
				if errors.Is(err, core.ErrConflict) {
					continue
				}
				if assert.NoError(t, err) && res.Granted {
					mu.Lock()
					granted++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.XP)
}

func testStandings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	xps := []int64{500, 300, 300, 100, 50, 10}
	ids := make([]int64, len(xps))
	for i, xp := range xps {
		u := mustCreate(t, s, "user"+string(rune('a'+i)))
		ids[i] = u.ID
		_, err := s.UpdateXP(ctx, u.ID, func(x *core.XPState) error { return x.AddXP(xp) })
		require.NoError(t, err)
	}

	top, err := s.TopStandings(ctx, core.LeaderboardSize)
	require.NoError(t, err)
	require.Len(t, top, 5)
	for i, st := range top {
		assert.Equal(t, ids[i], st.UserID)
		assert.Equal(t, xps[i], st.XP)
	}

	everyone, err := s.TopStandings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, everyone, len(xps))

	above, err := s.CountAbove(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), above)

	above, err = s.CountAbove(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(1), above)
}

func testCategories(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, len(storage.DefaultCategories()))

	c, err := s.CreateCategory(ctx, core.Category{Name: "Pets", Type: core.Expense, Icon: "🐶", Color: "#000"})
	require.NoError(t, err)
	assert.Positive(t, c.ID)

	_, err = s.CreateCategory(ctx, core.Category{Name: "Pets", Type: core.Expense})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	got, err := s.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pets", got.Name)
	assert.Equal(t, core.Expense, got.Type)

	u := mustCreate(t, s, "eva")
	_, err = s.CreateTransaction(ctx, core.Transaction{
		UserID: u.ID, CategoryID: c.ID, Description: "ração",
		Amount: core.Money{Cents: 5000}, Type: core.Expense, Date: core.NewDate(2024, 3, 1),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeleteCategory(ctx, c.ID), core.ErrInUse)

	spare, err := s.CreateCategory(ctx, core.Category{Name: "Presentes", Type: core.Expense})
	require.NoError(t, err)
	require.NoError(t, s.DeleteCategory(ctx, spare.ID))
	_, err = s.GetCategory(ctx, spare.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func categoryByType(t *testing.T, s storage.Store, typ core.TransactionType) core.Category {
	t.Helper()
	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	for _, c := range cats {
		if c.Type == typ {
			return c
		}
	}
	t.Fatalf("no %s category", typ)
	return core.Category{}
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	owner := mustCreate(t, s, "fabi")
	other := mustCreate(t, s, "gil")
	income := categoryByType(t, s, core.Income)
	expense := categoryByType(t, s, core.Expense)

	mk := func(userID int64, c core.Category, cents int64, d core.Date) core.Transaction {
		tx, err := s.CreateTransaction(ctx, core.Transaction{
			UserID: userID, CategoryID: c.ID, Description: "t", Amount: core.Money{Cents: cents},
			Type: c.Type, Date: d,
		})
		require.NoError(t, err)
		return tx
	}

	first := mk(owner.ID, income, 500000, core.NewDate(2024, 3, 1))
	mk(owner.ID, expense, 2500, core.NewDate(2024, 3, 5))
	mk(owner.ID, expense, 1500, core.NewDate(2024, 3, 20))
	mk(other.ID, expense, 999, core.NewDate(2024, 3, 5))

	require.NotNil(t, first.Category)
	assert.Equal(t, income.Name, first.Category.Name)

	all, err := s.ListTransactions(ctx, owner.ID, core.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-03-20", all[0].Date.String())
	assert.Equal(t, "2024-03-01", all[2].Date.String())

	expenses, err := s.ListTransactions(ctx, owner.ID, core.TransactionFilter{Type: core.Expense})
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	ranged, err := s.ListTransactions(ctx, owner.ID, core.TransactionFilter{
		Start: core.NewDate(2024, 3, 2), End: core.NewDate(2024, 3, 19),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, int64(2500), ranged[0].Amount.Cents)

	limited, err := s.ListTransactions(ctx, owner.ID, core.TransactionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = s.GetTransaction(ctx, other.ID, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	first.Description = "salário março"
	first.Amount = core.Money{Cents: 510000}
	updated, err := s.UpdateTransaction(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "salário março", updated.Description)
	assert.Equal(t, int64(510000), updated.Amount.Cents)

	foreign := first
	foreign.UserID = other.ID
	_, err = s.UpdateTransaction(ctx, foreign)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, other.ID, first.ID), core.ErrNotFound)
	require.NoError(t, s.DeleteTransaction(ctx, owner.ID, first.ID))
	_, err = s.GetTransaction(ctx, owner.ID, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, owner.ID))
	left, err := s.ListTransactions(ctx, owner.ID, core.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func testExports(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustCreate(t, s, "hugo")
	c := categoryByType(t, s, core.Expense)
	var ids []int64
	for i := 0; i < 3; i++ {
		tx, err := s.CreateTransaction(ctx, core.Transaction{
			UserID: u.ID, CategoryID: c.ID, Description: "café", Amount: core.Money{Cents: 700},
			Type: core.Expense, Date: core.NewDate(2024, 3, 1+i),
		})
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	pending, err := s.PendingExports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)

	require.NoError(t, s.MarkExported(ctx, ids[0], "Transações!A2"))
	pending, err = s.PendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID)
	require.NotNil(t, pending[0].Category)
	assert.False(t, pending[0].Exported)

	got, err := s.GetTransaction(ctx, u.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, got.Exported)

	// Editing an exported row keeps it exported.
	got.Description = "café coado"
	updated, err := s.UpdateTransaction(ctx, got)
	require.NoError(t, err)
	assert.True(t, updated.Exported)

	assert.ErrorIs(t, s.MarkExported(ctx, 9999, "x"), core.ErrNotFound)
}
