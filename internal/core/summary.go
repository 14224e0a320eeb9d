package core

import "time"

// Summary periods accepted by the summary endpoint.
const (
	PeriodAll   = "all"
	PeriodMonth = "month"
	PeriodWeek  = "week"
)

// Summary aggregates a user's transactions over a period.
type Summary struct {
	Period            string
	Income            Money
	Expenses          Money
	IncomeByCategory  map[string]Money
	ExpenseByCategory map[string]Money
}

// Balance is income minus expenses; it may be negative.
func (s Summary) Balance() Money {
	return Money{Cents: s.Income.Cents - s.Expenses.Cents}
}

// PeriodStart returns the first day included in period, or an empty date for
// "all". Weeks start on Monday.
func PeriodStart(period string, now time.Time) (Date, bool) {
	today := DateOf(now)
	switch period {
	case PeriodAll, "":
		return Date{}, true
	case PeriodMonth:
		return NewDate(today.Year(), int(today.Month()), 1), true
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDays(-offset), true
	default:
		return Date{}, false
	}
}

// Summarize folds transactions into a Summary.
func Summarize(period string, txs []Transaction) Summary {
	s := Summary{
		Period:            period,
		IncomeByCategory:  map[string]Money{},
		ExpenseByCategory: map[string]Money{},
	}
	for _, t := range txs {
		name := ""
		if t.Category != nil {
			name = t.Category.Name
		}
		switch t.Type {
		case Income:
			s.Income.Cents += t.Amount.Cents
			m := s.IncomeByCategory[name]
			m.Cents += t.Amount.Cents
			s.IncomeByCategory[name] = m
		case Expense:
			s.Expenses.Cents += t.Amount.Cents
			m := s.ExpenseByCategory[name]
			m.Cents += t.Amount.Cents
			s.ExpenseByCategory[name] = m
		}
	}
	return s
}
