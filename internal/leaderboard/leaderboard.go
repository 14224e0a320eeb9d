// Package leaderboard answers the rankings query from the store or from a
// Redis sorted set kept in step with every XP change.
package leaderboard

import (
	"context"
	"fmt"

	"poupanca/internal/core"
)

// Board produces rankings and is told about XP changes.
type Board interface {
	Rankings(ctx context.Context, requester core.Standing) ([]core.LeaderboardEntry, error)
	Update(ctx context.Context, s core.Standing) error
	Remove(ctx context.Context, userID int64) error
}

// Source is the part of storage.UserDirectory rankings are computed from.
type Source interface {
	TopStandings(ctx context.Context, n int) ([]core.Standing, error)
	CountAbove(ctx context.Context, xp int64) (int64, error)
}

// StoreBoard ranks straight from the database.
type StoreBoard struct {
	src Source
}

func NewStoreBoard(src Source) *StoreBoard {
	return &StoreBoard{src: src}
}

func (b *StoreBoard) Rankings(ctx context.Context, requester core.Standing) ([]core.LeaderboardEntry, error) {
	top, err := b.src.TopStandings(ctx, core.LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("top standings: %w", err)
	}
	above, err := b.src.CountAbove(ctx, requester.XP)
	if err != nil {
		return nil, fmt.Errorf("count above: %w", err)
	}
	return core.AssembleLeaderboard(top, requester, above), nil
}

func (b *StoreBoard) Update(context.Context, core.Standing) error { return nil }
func (b *StoreBoard) Remove(context.Context, int64) error         { return nil }
