package core

import "fmt"

const (
	// DailyLoginXP is awarded at most once per UTC calendar day.
	DailyLoginXP int64 = 50

	// StartingLevel is the level of a freshly registered user.
	StartingLevel = 1
)

// XPState is the part of a user that the leveling rules own.
type XPState struct {
	XP    int64
	Level int
	// LastGrant is the UTC day of the last daily login grant; empty before
	// the first one.
	LastGrant Date
}

// GrantResult reports the outcome of a daily grant attempt.
type GrantResult struct {
	Granted bool
	XP      int64
	Level   int
	Amount  int64
}

// NewXPState returns the state of a user at registration.
func NewXPState() XPState {
	return XPState{Level: StartingLevel}
}

// NextLevelXP is the XP a user at level must reach to advance.
func NextLevelXP(level int) int64 {
	l := int64(level)
	return 100 * l * l
}

// NextLevelXP is the threshold for the state's current level.
func (s XPState) NextLevelXP() int64 {
	return NextLevelXP(s.Level)
}

// AddXP credits amount and advances the level as many times as the new
// total allows.
func (s *XPState) AddXP(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("add %d xp: %w", amount, ErrInvalidXPAmount)
	}
	s.XP += amount
	s.settle()
	return nil
}

// GrantDaily applies the daily login bonus unless one was already granted
// on today or later.
func (s *XPState) GrantDaily(today Date) (GrantResult, error) {
	if s.GrantedOn(today) {
		return GrantResult{XP: s.XP, Level: s.Level}, nil
	}
	s.LastGrant = today
	if err := s.AddXP(DailyLoginXP); err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Granted: true, XP: s.XP, Level: s.Level, Amount: DailyLoginXP}, nil
}

// GrantedOn reports whether the daily bonus for today is already spent.
// A LastGrant after today (clock skew, hand edits) also counts as spent.
func (s XPState) GrantedOn(today Date) bool {
	return !s.LastGrant.IsEmpty() && !s.LastGrant.Before(today)
}

// Normalize returns s with its level brought up to date with its XP.
// changed is false when the level was already consistent.
func Normalize(s XPState) (normalized XPState, changed bool) {
	before := s.Level
	s.settle()
	return s, s.Level != before
}

func (s *XPState) settle() {
	if s.Level < StartingLevel {
		s.Level = StartingLevel
	}
	for s.XP >= NextLevelXP(s.Level) {
		s.Level++
	}
}
