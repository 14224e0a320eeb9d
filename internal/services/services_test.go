package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poupanca/internal/auth"
	"poupanca/internal/core"
	"poupanca/internal/leaderboard"
	"poupanca/internal/metrics"
	"poupanca/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	xp     *XPService
	auth   *AuthService
	txs    *TransactionService
	cats   *CategoryService
	now    time.Time
	pub    *recordingPublisher
	tokens *auth.Tokens
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *recordingPublisher) PublishExport(_ context.Context, txID, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, txID)
	return p.err
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC),
		pub:   &recordingPublisher{},
	}
	clock := func() time.Time { return f.now }
	m := metrics.New()
	board := leaderboard.NewStoreBoard(f.store)
	f.tokens = auth.NewTokens("test-secret-0123456789", time.Hour)
	f.xp = NewXPService(f.store, f.store, board, m).WithClock(clock)
	f.auth = NewAuthService(f.store, f.xp, f.tokens, board, m)
	f.auth.now = clock
	f.txs = NewTransactionService(f.store, f.store, f.pub).WithClock(clock)
	f.cats = NewCategoryService(f.store, f.auth)
	return f
}

func registration(username string) Registration {
	return Registration{
		Username:  username,
		Password:  "s3cret",
		Email:     username + "@example.com",
		Phone:     "11988887777",
		FullName:  "Nome " + username,
		BirthDate: core.NewDate(1995, 4, 20),
	}
}

func (f *fixture) register(t *testing.T, username string) core.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), registration(username))
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "ana")
	assert.Equal(t, int64(0), u.XP)
	assert.Equal(t, 1, u.Level)
	assert.True(t, u.LastGrant.IsEmpty())
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	_, err := f.auth.Register(ctx, registration("ana"))
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	dup := registration("bia")
	dup.Email = "ana@example.com"
	_, err = f.auth.Register(ctx, dup)
	assert.ErrorIs(t, err, ErrEmailTaken)

	bad := registration("caio")
	bad.Email = "not-an-email"
	_, err = f.auth.Register(ctx, bad)
	assert.ErrorIs(t, err, core.ErrInvalidEmail)

	noPass := registration("duda")
	noPass.Password = ""
	_, err = f.auth.Register(ctx, noPass)
	assert.ErrorIs(t, err, core.ErrEmptyPassword)
}

func TestLoginGrantsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")

	first, err := f.auth.Login(ctx, "ana", "s3cret")
	require.NoError(t, err)
	assert.True(t, first.Grant.Granted)
	assert.Equal(t, core.DailyLoginXP, first.Grant.Amount)
	assert.Equal(t, int64(50), first.User.XP)
	assert.False(t, first.User.LastLogin.IsZero())

	id, err := f.tokens.Verify(first.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	second, err := f.auth.Login(ctx, "ana", "s3cret")
	require.NoError(t, err)
	assert.False(t, second.Grant.Granted)
	assert.Equal(t, int64(50), second.User.XP)

	f.now = f.now.Add(24 * time.Hour)
	third, err := f.auth.Login(ctx, "ana", "s3cret")
	require.NoError(t, err)
	assert.True(t, third.Grant.Granted)
	assert.Equal(t, int64(100), third.User.XP)
	assert.Equal(t, 2, third.User.Level)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ana")

	_, err := f.auth.Login(context.Background(), "ana", "wrong")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	_, err = f.auth.Login(context.Background(), "ghost", "s3cret")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)
}

func TestConcurrentDailyGrantsAwardOnce(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "ana")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.xp.DailyGrant(context.Background(), u.ID)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	got, err := f.store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.XP)
}

func TestDailyGrantUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.xp.DailyGrant(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNormalizedPersistsStaleLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")

	// Simulate a row written by an older release that never levelled up.
	_, err := f.store.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
		x.XP = 450
		return nil
	})
	require.NoError(t, err)

	got, err := f.xp.Normalized(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Level)

	stored, err := f.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Level)
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")

	_, err := f.store.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
		x.XP = 1000
		return nil
	})
	require.NoError(t, err)

	r, err := f.xp.Recalculate(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.OldLevel)
	assert.Equal(t, 4, r.NewLevel)
	assert.True(t, r.Changed())
	assert.Equal(t, int64(1600), r.NextLevelXP)

	again, err := f.xp.Recalculate(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestRecalculateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "ana")
	f.register(t, "bia")
	_, err := f.store.UpdateXP(ctx, a.ID, func(x *core.XPState) error {
		x.XP = 300
		return nil
	})
	require.NoError(t, err)

	changed, err := f.xp.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
}

func TestAwardRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "ana")
	_, err := f.xp.Award(context.Background(), u.ID, 0)
	assert.ErrorIs(t, err, core.ErrInvalidXPAmount)

	state, err := f.xp.Award(context.Background(), u.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, state.Level)
}

func TestRankings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	xps := []int64{500, 300, 300, 100, 50, 10}
	var ids []int64
	for i, xp := range xps {
		u := f.register(t, string(rune('a'+i))+"user")
		ids = append(ids, u.ID)
		_, err := f.xp.Award(ctx, u.ID, xp)
		require.NoError(t, err)
	}

	entries, err := f.xp.Rankings(ctx, ids[5])
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, 6, entries[5].Position)
	assert.True(t, entries[5].IsCurrentUser)
	assert.Equal(t, ids[1], entries[1].UserID)
	assert.Equal(t, ids[2], entries[2].UserID)
}

func TestAchievementsAndChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")

	achievements, err := f.xp.Achievements(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, achievements, 3)
	assert.Equal(t, "Primeiro Login", achievements[0].Title)
	assert.Nil(t, achievements[0].Progress)
	require.NotNil(t, achievements[1].Progress)
	assert.InDelta(t, 0.2, *achievements[1].Progress, 1e-9)
	assert.InDelta(t, 0.0, *achievements[2].Progress, 1e-9)

	challenges, err := f.xp.Challenges(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, challenges, 3)
	assert.InDelta(t, 1.0/7, challenges[2].Progress, 1e-9)
	assert.Equal(t, ChallengeInProgress, challenges[0].Status)
}

func TestProfileUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")
	f.register(t, "bia")

	email := "nova@example.com"
	pass := "outra"
	got, err := f.auth.UpdateProfile(ctx, u.ID, ProfileChanges{Email: &email, Password: &pass})
	require.NoError(t, err)
	assert.Equal(t, email, got.Email)

	_, err = f.auth.Login(ctx, "ana", "outra")
	require.NoError(t, err)

	taken := "bia@example.com"
	_, err = f.auth.UpdateProfile(ctx, u.ID, ProfileChanges{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	assert.ErrorIs(t, f.auth.DeleteAccount(ctx, u.ID, "s3cret"), core.ErrInvalidCredentials)
	require.NoError(t, f.auth.DeleteAccount(ctx, u.ID, "outra"))
	_, err = f.auth.Profile(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := AdminAccount{Username: "admin", Password: "admin-pass", Email: "admin@example.com", Phone: "0000000000"}

	created, err := f.auth.EnsureAdmin(ctx, acct)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.auth.EnsureAdmin(ctx, acct)
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := f.store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.NoError(t, f.auth.RequireAdmin(ctx, admin.ID))

	u := f.register(t, "ana")
	assert.ErrorIs(t, f.auth.RequireAdmin(ctx, u.ID), core.ErrForbidden)
}

func categoryOf(t *testing.T, f *fixture, typ core.TransactionType) core.Category {
	t.Helper()
	cs, err := f.cats.List(context.Background())
	require.NoError(t, err)
	for _, c := range cs {
		if c.Type == typ {
			return c
		}
	}
	t.Fatalf("no %s category", typ)
	return core.Category{}
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")
	other := f.register(t, "bia")
	income := categoryOf(t, f, core.Income)
	expense := categoryOf(t, f, core.Expense)

	created, err := f.txs.Create(ctx, u.ID, NewTransaction{
		Description: "Salário",
		Amount:      core.Money{Cents: 300000},
		Type:        core.Income,
		CategoryID:  income.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-12", created.Date.String())
	assert.Equal(t, []int64{created.ID}, f.pub.ids)

	_, err = f.txs.Create(ctx, u.ID, NewTransaction{
		Description: "Errado",
		Amount:      core.Money{Cents: 100},
		Type:        core.Income,
		CategoryID:  expense.ID,
	})
	var mismatch *CategoryMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, core.Expense, mismatch.CategoryType)

	_, err = f.txs.Create(ctx, u.ID, NewTransaction{
		Description: "x", Amount: core.Money{Cents: 1}, Type: "gift", CategoryID: income.ID,
	})
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = f.txs.Create(ctx, u.ID, NewTransaction{
		Description: "x", Amount: core.Money{Cents: 1}, Type: core.Expense, CategoryID: 9999,
	})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	_, err = f.txs.Get(ctx, other.ID, created.ID)
	assert.ErrorIs(t, err, ErrTxNotFound)

	newType := core.Expense
	_, err = f.txs.Update(ctx, u.ID, created.ID, TransactionChanges{Type: &newType})
	assert.ErrorAs(t, err, &mismatch)

	catID := expense.ID
	desc := "Mercado"
	updated, err := f.txs.Update(ctx, u.ID, created.ID, TransactionChanges{Type: &newType, CategoryID: &catID, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, core.Expense, updated.Type)
	assert.Equal(t, "Mercado", updated.Description)

	assert.ErrorIs(t, f.txs.Delete(ctx, other.ID, created.ID), ErrTxNotFound)
	require.NoError(t, f.txs.Delete(ctx, u.ID, created.ID))
	_, err = f.txs.Get(ctx, u.ID, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	u := f.register(t, "ana")
	c := categoryOf(t, f, core.Expense)

	_, err := f.txs.Create(context.Background(), u.ID, NewTransaction{
		Description: "Café", Amount: core.Money{Cents: 550}, Type: core.Expense, CategoryID: c.ID,
	})
	assert.NoError(t, err)
}

func TestSummaryPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")
	income := categoryOf(t, f, core.Income)
	expense := categoryOf(t, f, core.Expense)

	add := func(typ core.TransactionType, c core.Category, cents int64, d core.Date) {
		_, err := f.txs.Create(ctx, u.ID, NewTransaction{
			Description: "t", Amount: core.Money{Cents: cents}, Type: typ, CategoryID: c.ID, Date: d,
		})
		require.NoError(t, err)
	}
	// 2024-06-12 is a Wednesday; the week starts on Monday the 10th.
	add(core.Income, income, 100000, core.NewDate(2024, 5, 30))
	add(core.Expense, expense, 2000, core.NewDate(2024, 6, 3))
	add(core.Expense, expense, 500, core.NewDate(2024, 6, 11))

	all, err := f.txs.Summary(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, core.PeriodAll, all.Period)
	assert.Equal(t, int64(97500), all.Balance().Cents)
	assert.Equal(t, int64(100000), all.IncomeByCategory[income.Name].Cents)

	month, err := f.txs.Summary(ctx, u.ID, core.PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(0), month.Income.Cents)
	assert.Equal(t, int64(2500), month.Expenses.Cents)

	week, err := f.txs.Summary(ctx, u.ID, core.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, int64(500), week.Expenses.Cents)

	odd, err := f.txs.Summary(ctx, u.ID, "decade")
	require.NoError(t, err)
	assert.Equal(t, "decade", odd.Period)
	assert.Equal(t, int64(2500), odd.Expenses.Cents)
}

func TestCategoryAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ana")

	_, err := f.cats.Create(ctx, u.ID, core.Category{Name: "Pets", Type: core.Expense})
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = f.auth.EnsureAdmin(ctx, AdminAccount{Username: "root", Password: "pw", Email: "root@example.com", Phone: "1"})
	require.NoError(t, err)
	admin, err := f.store.GetUserByUsername(ctx, "root")
	require.NoError(t, err)

	c, err := f.cats.Create(ctx, admin.ID, core.Category{Name: "Pets", Type: core.Expense})
	require.NoError(t, err)

	_, err = f.txs.Create(ctx, u.ID, NewTransaction{Description: "Ração", Amount: core.Money{Cents: 9000}, Type: core.Expense, CategoryID: c.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, f.cats.Delete(ctx, admin.ID, c.ID), core.ErrInUse)
	assert.ErrorIs(t, f.cats.Delete(ctx, admin.ID, 9999), ErrCategoryNotFound)
}
