package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poupanca/internal/core"
	"poupanca/internal/storage/memory"
	"poupanca/internal/storage/storetest"
)

func seed(t *testing.T, xps ...int64) (*memory.Store, []int64) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	ids := make([]int64, len(xps))
	for i, xp := range xps {
		u, err := s.CreateUser(ctx, storetest.NewUser("user"+string(rune('a'+i))))
		require.NoError(t, err)
		ids[i] = u.ID
		_, err = s.UpdateXP(ctx, u.ID, func(x *core.XPState) error { return x.AddXP(xp) })
		require.NoError(t, err)
	}
	return s, ids
}

func requester(t *testing.T, s *memory.Store, id int64) core.Standing {
	t.Helper()
	u, err := s.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Standing()
}

func TestStoreBoardAppendsRequester(t *testing.T) {
	s, ids := seed(t, 500, 300, 300, 100, 50, 10)
	board := NewStoreBoard(s)

	entries, err := board.Rankings(context.Background(), requester(t, s, ids[5]))
	require.NoError(t, err)
	require.Len(t, entries, 6)
	assert.Equal(t, 6, entries[5].Position)
	assert.True(t, entries[5].IsCurrentUser)
	assert.Equal(t, ids[0], entries[0].UserID)
	assert.Equal(t, 3, entries[0].Level)
}

func TestStoreBoardRequesterInTop(t *testing.T) {
	s, ids := seed(t, 500, 300, 300, 100, 50, 10)
	entries, err := NewStoreBoard(s).Rankings(context.Background(), requester(t, s, ids[1]))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.True(t, entries[1].IsCurrentUser)
}

func TestOrderTopBreaksTiesByID(t *testing.T) {
	top := []redis.Z{
		{Score: 500, Member: "3"},
		{Score: 300, Member: "9"},
		{Score: 300, Member: "7"},
	}
	tied := []redis.Z{
		{Score: 300, Member: "10"},
		{Score: 300, Member: "7"},
		{Score: 300, Member: "9"},
		{Score: 300, Member: "2"},
	}
	got, err := orderTop(top, tied, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 2, 7}, []int64{got[0].UserID, got[1].UserID, got[2].UserID})
}

func TestOrderTopRejectsBadMember(t *testing.T) {
	_, err := orderTop([]redis.Z{{Score: 1, Member: "abc"}}, nil, 5)
	assert.Error(t, err)
}

type failingBoard struct{ calls int }

func (f *failingBoard) Rankings(context.Context, core.Standing) ([]core.LeaderboardEntry, error) {
	f.calls++
	return nil, errors.New("store down")
}
func (f *failingBoard) Update(context.Context, core.Standing) error { return nil }
func (f *failingBoard) Remove(context.Context, int64) error         { return nil }

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBoardFallsBackWhenRedisIsDown(t *testing.T) {
	s, ids := seed(t, 500, 300, 10)
	board := NewRedisBoard(unreachableClient(t), NewStoreBoard(s), nil)

	entries, err := board.Rankings(context.Background(), requester(t, s, ids[2]))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[2].IsCurrentUser)
}

func TestRedisBoardSurfacesFallbackError(t *testing.T) {
	fb := &failingBoard{}
	board := NewRedisBoard(unreachableClient(t), fb, nil)

	_, err := board.Rankings(context.Background(), core.Standing{UserID: 1})
	assert.Error(t, err)
	assert.Equal(t, 1, fb.calls)
}

func TestRedisBoardWritesFailWithoutServer(t *testing.T) {
	board := NewRedisBoard(unreachableClient(t), &failingBoard{}, nil)
	assert.Error(t, board.Update(context.Background(), core.Standing{UserID: 1, XP: 10}))
	assert.Error(t, board.Remove(context.Background(), 1))
}
