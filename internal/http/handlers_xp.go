package http

import (
	"fmt"
	"net/http"

	"poupanca/internal/core"
)

func (s *Server) handleUserXP(w http.ResponseWriter, r *http.Request) {
	u, err := s.xp.Normalized(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, xpView{
		XP:          u.XP,
		Level:       u.Level,
		NextLevelXP: u.NextLevelXP(),
		LastXPGrant: optDate(u.LastGrant),
	})
}

// handleDailyXP answers 200 whether or not XP was granted; a second claim
// on the same day only changes the message.
func (s *Server) handleDailyXP(w http.ResponseWriter, r *http.Request) {
	g, err := s.xp.DailyGrant(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := dailyXPView{
		Message:     msgDailyAlready,
		TotalXP:     g.XP,
		Level:       g.Level,
		NextLevelXP: core.NextLevelXP(g.Level),
	}
	if g.Granted {
		resp.Message = fmt.Sprintf(msgDailyGranted, g.Amount)
		resp.XPGranted = g.Amount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecalculateLevel(w http.ResponseWriter, r *http.Request) {
	rec, err := s.xp.Recalculate(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculationView{
		Message:      msgLevelRecalculated,
		XP:           rec.XP,
		OldLevel:     rec.OldLevel,
		NewLevel:     rec.NewLevel,
		LevelChanged: rec.Changed(),
		NextLevelXP:  rec.NextLevelXP,
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	entries, err := s.xp.Rankings(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRankingViews(entries))
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	as, err := s.xp.Achievements(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAchievementViews(as))
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	cs, err := s.xp.Challenges(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChallengeViews(cs))
}
