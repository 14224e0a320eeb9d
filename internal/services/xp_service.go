package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"poupanca/internal/core"
	"poupanca/internal/leaderboard"
	"poupanca/internal/metrics"
	"poupanca/internal/storage"
)

const (
	xpRetryBase     = 10 * time.Millisecond
	xpRetryAttempts = 5
)

// XPService runs every XP mutation through UserDirectory.UpdateXP, retrying
// from a fresh read when a concurrent writer wins, and keeps the
// leaderboard in step.
type XPService struct {
	users   storage.UserDirectory
	txs     storage.TransactionStore
	board   leaderboard.Board
	metrics *metrics.Metrics
	now     func() time.Time
	backoff func() retry.Backoff
}

// NewXPService builds the XP service. A nil board ranks straight from users.
func NewXPService(users storage.UserDirectory, txs storage.TransactionStore, board leaderboard.Board, m *metrics.Metrics) *XPService {
	if board == nil {
		board = leaderboard.NewStoreBoard(users)
	}
	return &XPService{
		users:   users,
		txs:     txs,
		board:   board,
		metrics: m,
		now:     time.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(xpRetryAttempts, retry.WithJitterPercent(20, retry.NewExponential(xpRetryBase)))
		},
	}
}

// WithClock replaces the clock that decides "today".
func (s *XPService) WithClock(now func() time.Time) *XPService {
	s.now = now
	return s
}

// Recalculation is the outcome of an explicit level recomputation.
type Recalculation struct {
	XP          int64
	OldLevel    int
	NewLevel    int
	NextLevelXP int64
}

func (r Recalculation) Changed() bool { return r.OldLevel != r.NewLevel }

func (s *XPService) user(ctx context.Context, id int64) (core.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return core.User{}, refine(err, ErrUserNotFound)
	}
	return u, nil
}

// update applies fn under the user's XP lock, retrying on core.ErrConflict,
// and publishes the new standing.
func (s *XPService) update(ctx context.Context, u core.User, fn func(*core.XPState) error) (core.XPState, error) {
	var (
		state     core.XPState
		levelFrom int
	)
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		state, err = s.users.UpdateXP(ctx, u.ID, func(x *core.XPState) error {
			levelFrom = x.Level
			return fn(x)
		})
		if errors.Is(err, core.ErrConflict) {
			s.metrics.XPConflict()
			slog.DebugContext(ctx, "XP update conflict, retrying", "user_id", u.ID)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return core.XPState{}, refine(err, ErrUserNotFound)
	}

	if gained := state.Level - levelFrom; gained > 0 {
		s.metrics.LevelUps(gained)
		slog.InfoContext(ctx, "User levelled up",
			"user_id", u.ID, "level", state.Level, "xp", state.XP)
	}
	u.XPState = state
	if err := s.board.Update(ctx, u.Standing()); err != nil {
		slog.WarnContext(ctx, "Failed to update leaderboard", "user_id", u.ID, "error", err)
	}
	return state, nil
}

// Normalized returns the user with its level brought up to date, persisting
// the correction when one was needed.
func (s *XPService) Normalized(ctx context.Context, id int64) (core.User, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	return s.normalize(ctx, u)
}

func (s *XPService) normalize(ctx context.Context, u core.User) (core.User, error) {
	if _, changed := core.Normalize(u.XPState); !changed {
		return u, nil
	}
	state, err := s.update(ctx, u, func(x *core.XPState) error {
		*x, _ = core.Normalize(*x)
		return nil
	})
	if err != nil {
		return core.User{}, fmt.Errorf("normalize level: %w", err)
	}
	u.XPState = state
	return u, nil
}

// DailyGrant awards the daily login bonus at most once per UTC day.
func (s *XPService) DailyGrant(ctx context.Context, id int64) (core.GrantResult, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return core.GrantResult{}, err
	}
	res, _, err := s.grant(ctx, u)
	return res, err
}

// grant applies the daily bonus and normalizes the level in the same
// locked write.
func (s *XPService) grant(ctx context.Context, u core.User) (core.GrantResult, core.XPState, error) {
	today := core.DateOf(s.now())
	var res core.GrantResult
	state, err := s.update(ctx, u, func(x *core.XPState) error {
		var err error
		if res, err = x.GrantDaily(today); err != nil {
			return err
		}
		*x, _ = core.Normalize(*x)
		res.XP, res.Level = x.XP, x.Level
		return nil
	})
	if err != nil {
		return core.GrantResult{}, core.XPState{}, fmt.Errorf("daily grant: %w", err)
	}
	s.metrics.DailyGrant(res.Granted)
	if res.Granted {
		slog.InfoContext(ctx, "Daily XP granted",
			"user_id", u.ID, "xp_amount", res.Amount, "xp", res.XP, "level", res.Level)
	}
	return res, state, nil
}

// Award credits amount XP to the user.
func (s *XPService) Award(ctx context.Context, id, amount int64) (core.XPState, error) {
	if amount <= 0 {
		return core.XPState{}, fmt.Errorf("award %d xp: %w", amount, core.ErrInvalidXPAmount)
	}
	u, err := s.user(ctx, id)
	if err != nil {
		return core.XPState{}, err
	}
	return s.update(ctx, u, func(x *core.XPState) error { return x.AddXP(amount) })
}

// Recalculate recomputes the level from the stored XP.
func (s *XPService) Recalculate(ctx context.Context, id int64) (Recalculation, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return Recalculation{}, err
	}
	var old int
	state, err := s.update(ctx, u, func(x *core.XPState) error {
		old = x.Level
		*x, _ = core.Normalize(*x)
		return nil
	})
	if err != nil {
		return Recalculation{}, fmt.Errorf("recalculate level: %w", err)
	}
	return Recalculation{
		XP:          state.XP,
		OldLevel:    old,
		NewLevel:    state.Level,
		NextLevelXP: state.NextLevelXP(),
	}, nil
}

// RecalculateAll normalizes every user and returns how many levels moved.
func (s *XPService) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	changed := 0
	for _, id := range ids {
		r, err := s.Recalculate(ctx, id)
		if err != nil {
			return changed, fmt.Errorf("user %d: %w", id, err)
		}
		if r.Changed() {
			changed++
		}
	}
	return changed, nil
}

// Rankings returns the leaderboard as seen by the requester.
func (s *XPService) Rankings(ctx context.Context, id int64) ([]core.LeaderboardEntry, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.board.Rankings(ctx, u.Standing())
	if err != nil {
		return nil, fmt.Errorf("rankings: %w", err)
	}
	return entries, nil
}
