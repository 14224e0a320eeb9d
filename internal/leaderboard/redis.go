package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"poupanca/internal/core"
)

// Key layout:
//   - sorted set <prefix>:xp holds userID -> XP
//   - hash <prefix>:info holds userID -> memberInfo JSON
const defaultPrefix = "poupanca:leaderboard"

type memberInfo struct {
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// RedisBoard serves rankings from Redis and falls back to another Board
// whenever Redis fails or has not seen the requester yet.
type RedisBoard struct {
	client   redis.UniversalClient
	fallback Board
	xpKey    string
	infoKey  string
	logger   *slog.Logger
}

func NewRedisBoard(client redis.UniversalClient, fallback Board, logger *slog.Logger) *RedisBoard {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBoard{
		client:   client,
		fallback: fallback,
		xpKey:    defaultPrefix + ":xp",
		infoKey:  defaultPrefix + ":info",
		logger:   logger,
	}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func member(id int64) string { return strconv.FormatInt(id, 10) }

func (b *RedisBoard) Update(ctx context.Context, s core.Standing) error {
	info, err := json.Marshal(memberInfo{Username: s.Username, Level: s.Level})
	if err != nil {
		return fmt.Errorf("marshal member: %w", err)
	}
	_, err = b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, b.xpKey, redis.Z{Score: float64(s.XP), Member: member(s.UserID)})
		pipe.HSet(ctx, b.infoKey, member(s.UserID), info)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard %d: %w", s.UserID, err)
	}
	return nil
}

func (b *RedisBoard) Remove(ctx context.Context, userID int64) error {
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.xpKey, member(userID))
		pipe.HDel(ctx, b.infoKey, member(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove from leaderboard %d: %w", userID, err)
	}
	return nil
}

// Rebuild replaces the cached set with every standing from src.
func (b *RedisBoard) Rebuild(ctx context.Context, src Source) (int, error) {
	all, err := src.TopStandings(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load standings: %w", err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.xpKey, b.infoKey)
		for _, s := range all {
			info, err := json.Marshal(memberInfo{Username: s.Username, Level: s.Level})
			if err != nil {
				return err
			}
			pipe.ZAdd(ctx, b.xpKey, redis.Z{Score: float64(s.XP), Member: member(s.UserID)})
			pipe.HSet(ctx, b.infoKey, member(s.UserID), info)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return len(all), nil
}

var errNotCached = errors.New("requester not cached")

func (b *RedisBoard) Rankings(ctx context.Context, requester core.Standing) ([]core.LeaderboardEntry, error) {
	entries, err := b.rankings(ctx, requester)
	if err == nil {
		return entries, nil
	}
	b.logger.WarnContext(ctx, "Redis leaderboard unavailable, using store", "error", err, "user_id", requester.UserID)
	if errors.Is(err, errNotCached) {
		if uerr := b.Update(ctx, requester); uerr != nil {
			b.logger.WarnContext(ctx, "Failed to cache requester", "error", uerr, "user_id", requester.UserID)
		}
	}
	return b.fallback.Rankings(ctx, requester)
}

func (b *RedisBoard) rankings(ctx context.Context, requester core.Standing) ([]core.LeaderboardEntry, error) {
	if err := b.client.ZScore(ctx, b.xpKey, member(requester.UserID)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotCached
		}
		return nil, err
	}

	n := core.LeaderboardSize
	top, err := b.client.ZRevRangeWithScores(ctx, b.xpKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("top range: %w", err)
	}

	// Redis orders equal scores by member bytes; pull everyone sharing the
	// cutoff score so ties resolve by numeric id.
	var tied []redis.Z
	if len(top) == n {
		cutoff := strconv.FormatFloat(top[n-1].Score, 'f', -1, 64)
		tied, err = b.client.ZRangeByScoreWithScores(ctx, b.xpKey, &redis.ZRangeBy{Min: cutoff, Max: cutoff}).Result()
		if err != nil {
			return nil, fmt.Errorf("tied range: %w", err)
		}
	}
	standings, err := orderTop(top, tied, n)
	if err != nil {
		return nil, err
	}

	if len(standings) > 0 {
		fields := make([]string, len(standings))
		for i, s := range standings {
			fields[i] = member(s.UserID)
		}
		infos, err := b.client.HMGet(ctx, b.infoKey, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("member info: %w", err)
		}
		for i, raw := range infos {
			str, ok := raw.(string)
			if !ok {
				continue
			}
			var info memberInfo
			if err := json.Unmarshal([]byte(str), &info); err != nil {
				return nil, fmt.Errorf("decode member %s: %w", fields[i], err)
			}
			standings[i].Username = info.Username
			standings[i].Level = info.Level
		}
	}

	above, err := b.client.ZCount(ctx, b.xpKey, "("+strconv.FormatInt(requester.XP, 10), "+inf").Result()
	if err != nil {
		return nil, fmt.Errorf("count above: %w", err)
	}
	return core.AssembleLeaderboard(standings, requester, above), nil
}

// orderTop merges the top range with the members tied at its cutoff score
// and returns the first n in leaderboard order.
func orderTop(top, tied []redis.Z, n int) ([]core.Standing, error) {
	seen := make(map[int64]bool, len(top)+len(tied))
	out := make([]core.Standing, 0, len(top)+len(tied))
	for _, z := range append(append([]redis.Z{}, top...), tied...) {
		raw, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T", z.Member)
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member %q: %w", raw, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, core.Standing{UserID: id, XP: int64(z.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return core.LessStanding(out[i], out[j]) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
