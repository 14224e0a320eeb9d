package http

import (
	"time"

	"poupanca/internal/core"
	"poupanca/internal/services"
)

const timestampLayout = "2006-01-02 15:04:05"

type categoryView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

func newCategoryView(c core.Category) categoryView {
	return categoryView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Type:        string(c.Type),
		Icon:        c.Icon,
		Color:       c.Color,
	}
}

type transactionView struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	Type        string        `json:"type"`
	Date        string        `json:"date"`
	CreatedAt   string        `json:"created_at"`
	UserID      int64         `json:"user_id"`
	CategoryID  int64         `json:"category_id"`
	Category    *categoryView `json:"category"`
}

func newTransactionView(t core.Transaction) transactionView {
	v := transactionView{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount.Float(),
		Type:        string(t.Type),
		Date:        t.Date.String(),
		CreatedAt:   formatTimestamp(t.CreatedAt),
		UserID:      t.UserID,
		CategoryID:  t.CategoryID,
	}
	if t.Category != nil {
		c := newCategoryView(*t.Category)
		v.Category = &c
	}
	return v
}

type financialSummaryView struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

type userView struct {
	ID               int64                 `json:"id"`
	Username         string                `json:"username"`
	Email            string                `json:"email"`
	Phone            string                `json:"phone"`
	FullName         string                `json:"full_name"`
	BirthDate        string                `json:"birth_date"`
	CreatedAt        string                `json:"created_at"`
	LastLogin        *string               `json:"last_login"`
	IsAdmin          bool                  `json:"is_admin"`
	XP               int64                 `json:"xp"`
	Level            int                   `json:"level"`
	NextLevelXP      int64                 `json:"next_level_xp"`
	LastXPGrant      *string               `json:"last_xp_grant"`
	FinancialSummary *financialSummaryView `json:"financial_summary,omitempty"`
}

// newUserView expects u to be normalized already.
func newUserView(u core.User) userView {
	v := userView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Phone:       u.Phone,
		FullName:    u.FullName,
		BirthDate:   u.BirthDate.String(),
		CreatedAt:   formatTimestamp(u.CreatedAt),
		IsAdmin:     u.IsAdmin,
		XP:          u.XP,
		Level:       u.Level,
		NextLevelXP: u.NextLevelXP(),
		LastXPGrant: optDate(u.LastGrant),
	}
	if !u.LastLogin.IsZero() {
		s := formatTimestamp(u.LastLogin)
		v.LastLogin = &s
	}
	return v
}

type xpView struct {
	XP          int64   `json:"xp"`
	Level       int     `json:"level"`
	NextLevelXP int64   `json:"next_level_xp"`
	LastXPGrant *string `json:"last_xp_grant"`
}

type loginView struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
	NextLevelXP int64  `json:"next_level_xp"`
	XPGained    bool   `json:"xp_gained,omitempty"`
	XPAmount    int64  `json:"xp_amount,omitempty"`
	XPMessage   string `json:"xp_message,omitempty"`
}

type dailyXPView struct {
	Message     string `json:"message"`
	XPGranted   int64  `json:"xp_granted,omitempty"`
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"level"`
	NextLevelXP int64  `json:"next_level_xp"`
}

type recalculationView struct {
	Message      string `json:"message"`
	XP           int64  `json:"xp"`
	OldLevel     int    `json:"old_level"`
	NewLevel     int    `json:"new_level"`
	LevelChanged bool   `json:"level_changed"`
	NextLevelXP  int64  `json:"next_level_xp"`
}

type rankingView struct {
	Username      string `json:"username"`
	Level         int    `json:"level"`
	XP            int64  `json:"xp"`
	Position      int    `json:"position"`
	IsCurrentUser bool   `json:"is_current_user"`
}

func newRankingViews(entries []core.LeaderboardEntry) []rankingView {
	out := make([]rankingView, 0, len(entries))
	for _, e := range entries {
		out = append(out, rankingView{
			Username:      e.Username,
			Level:         e.Level,
			XP:            e.XP,
			Position:      e.Position,
			IsCurrentUser: e.IsCurrentUser,
		})
	}
	return out
}

type summaryView struct {
	Period            string             `json:"period"`
	Income            float64            `json:"income"`
	Expenses          float64            `json:"expenses"`
	Balance           float64            `json:"balance"`
	IncomeByCategory  map[string]float64 `json:"income_by_category"`
	ExpenseByCategory map[string]float64 `json:"expense_by_category"`
}

func newSummaryView(s core.Summary) summaryView {
	return summaryView{
		Period:            s.Period,
		Income:            s.Income.Float(),
		Expenses:          s.Expenses.Float(),
		Balance:           s.Balance().Float(),
		IncomeByCategory:  moneyMap(s.IncomeByCategory),
		ExpenseByCategory: moneyMap(s.ExpenseByCategory),
	}
}

type achievementView struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	XPReward    int64    `json:"xp_reward"`
	AchievedAt  *string  `json:"achieved_at,omitempty"`
	Progress    *float64 `json:"progress,omitempty"`
	Icon        string   `json:"icon"`
}

func newAchievementViews(as []services.Achievement) []achievementView {
	out := make([]achievementView, 0, len(as))
	for _, a := range as {
		out = append(out, achievementView{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			XPReward:    a.XPReward,
			AchievedAt:  optDate(a.AchievedAt),
			Progress:    a.Progress,
			Icon:        a.Icon,
		})
	}
	return out
}

type challengeView struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	XPReward    int64   `json:"xp_reward"`
	Progress    float64 `json:"progress"`
	Status      string  `json:"status"`
	Icon        string  `json:"icon"`
}

func newChallengeViews(cs []services.Challenge) []challengeView {
	out := make([]challengeView, 0, len(cs))
	for _, c := range cs {
		out = append(out, challengeView(c))
	}
	return out
}

func moneyMap(m map[string]core.Money) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.Float()
	}
	return out
}

func optDate(d core.Date) *string {
	if d.IsEmpty() {
		return nil
	}
	s := d.String()
	return &s
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
