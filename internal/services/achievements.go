package services

import (
	"context"
	"fmt"

	"poupanca/internal/core"
)

// Achievement is a badge shown on the profile. Progress is nil once the
// badge is earned, AchievedAt is empty until then.
type Achievement struct {
	ID          int
	Title       string
	Description string
	XPReward    int64
	AchievedAt  core.Date
	Progress    *float64
	Icon        string
}

// Challenge is an open goal with partial progress in [0, 1].
type Challenge struct {
	ID          int
	Title       string
	Description string
	XPReward    int64
	Progress    float64
	Status      string
	Icon        string
}

const ChallengeInProgress = "in_progress"

// Achievements lists the user's badges. The content is static; progress is
// derived from the level and transaction count.
func (s *XPService) Achievements(ctx context.Context, id int64) ([]Achievement, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.ListTransactions(ctx, id, core.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	streak := float64(min(5, u.Level)) / 5
	saver := float64(min(5, len(txs))) / 10
	return []Achievement{
		{
			ID:          1,
			Title:       "Primeiro Login",
			Description: "Você fez seu primeiro login no Pac Poupança!",
			XPReward:    50,
			AchievedAt:  core.DateOf(u.CreatedAt),
			Icon:        "🏆",
		},
		{
			ID:          2,
			Title:       "Constância é Tudo",
			Description: "Faça login por 5 dias consecutivos",
			XPReward:    100,
			Progress:    &streak,
			Icon:        "📅",
		},
		{
			ID:          3,
			Title:       "Mestre das Economias",
			Description: "Registre 10 transações de economia",
			XPReward:    200,
			Progress:    &saver,
			Icon:        "💰",
		},
	}, nil
}

// Challenges lists the open challenges for the user.
func (s *XPService) Challenges(ctx context.Context, id int64) ([]Challenge, error) {
	u, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	return []Challenge{
		{
			ID:          1,
			Title:       "Economista Iniciante",
			Description: "Registre 5 transações de despesa em categorias diferentes",
			XPReward:    100,
			Progress:    0.2,
			Status:      ChallengeInProgress,
			Icon:        "📊",
		},
		{
			ID:          2,
			Title:       "Meta de Economia",
			Description: "Tenha um saldo positivo de R$ 500,00 ao final do mês",
			XPReward:    150,
			Progress:    0.3,
			Status:      ChallengeInProgress,
			Icon:        "💸",
		},
		{
			ID:          3,
			Title:       "Login Consistente",
			Description: "Faça login por 7 dias consecutivos",
			XPReward:    200,
			Progress:    min(float64(u.Level)/7, 1.0),
			Status:      ChallengeInProgress,
			Icon:        "🗓️",
		},
	}, nil
}
