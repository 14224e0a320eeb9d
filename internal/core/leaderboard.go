package core

import "sort"

// LeaderboardSize is how many users the rankings list shows.
const LeaderboardSize = 5

// Standing is one user's place in the XP ordering.
type Standing struct {
	UserID   int64
	Username string
	XP       int64
	Level    int
}

// LeaderboardEntry is a row of the rankings response.
type LeaderboardEntry struct {
	Standing
	Position      int
	IsCurrentUser bool
}

// LessStanding orders by XP descending, then user id ascending.
func LessStanding(a, b Standing) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return a.UserID < b.UserID
}

// SortStandings sorts in leaderboard order.
func SortStandings(s []Standing) {
	sort.SliceStable(s, func(i, j int) bool { return LessStanding(s[i], s[j]) })
}

// AssembleLeaderboard builds the rankings from the already ordered top
// standings, the requester and the number of users with strictly more XP
// than the requester. Stores that rank in the database call this directly.
func AssembleLeaderboard(top []Standing, requester Standing, above int64) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(top)+1)
	found := false
	for i, s := range top {
		s.Level, _ = normalizedLevel(s)
		current := s.UserID == requester.UserID
		found = found || current
		entries = append(entries, LeaderboardEntry{
			Standing:      s,
			Position:      i + 1,
			IsCurrentUser: current,
		})
	}
	if !found {
		requester.Level, _ = normalizedLevel(requester)
		entries = append(entries, LeaderboardEntry{
			Standing:      requester,
			Position:      int(above) + 1,
			IsCurrentUser: true,
		})
	}
	return entries
}

// RankLeaderboard computes the rankings over the full set of users.
func RankLeaderboard(all []Standing, requesterID int64, n int) ([]LeaderboardEntry, error) {
	sorted := append([]Standing(nil), all...)
	SortStandings(sorted)

	var (
		requester Standing
		found     bool
		above     int64
	)
	for _, s := range sorted {
		if s.UserID == requesterID {
			requester, found = s, true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	for _, s := range sorted {
		if s.XP > requester.XP {
			above++
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return AssembleLeaderboard(sorted, requester, above), nil
}

func normalizedLevel(s Standing) (int, bool) {
	st, changed := Normalize(XPState{XP: s.XP, Level: s.Level})
	return st.Level, changed
}
