package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar day in UTC. The zero value means "no date".
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID          int64
		Name        string
		Description string
		Type        TransactionType
		Icon        string
		Color       string
	}

	Transaction struct {
		ID          int64
		UserID      int64
		CategoryID  int64
		Category    *Category // populated by reads, ignored by writes
		Description string
		Amount      Money
		Type        TransactionType
		Date        Date
		CreatedAt   time.Time
		// Exported is set once the row has reached the spreadsheet.
		Exported bool
	}

	// TransactionFilter narrows a transaction listing. Zero fields are ignored.
	TransactionFilter struct {
		Type       TransactionType
		CategoryID int64
		Start      Date
		End        Date
		Limit      int
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidType         = errors.New("transaction type must be income or expense")
	ErrEmptyCategory       = errors.New("empty category")
	ErrCategoryMismatch    = errors.New("category type does not match transaction type")
	ErrEmptyCategoryName   = errors.New("empty category name")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrCategoryNameTooLong = errors.New("category name too long (max 50 characters)")
	ErrEmptyDate           = errors.New("date cannot be zero")
)

// DefaultTransactionLimit is applied when a listing does not ask for a limit.
const DefaultTransactionLimit = 50

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrEmptyDate
	}
	// Check basic ranges
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// String formats the date as YYYY-MM-DD, or "" when empty.
func (d Date) String() string {
	if d.IsEmpty() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

// Before reports whether d is an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether both dates are the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategoryName
	}
	if len(c.Name) > 50 {
		return ErrCategoryNameTooLong
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.CategoryID <= 0 {
		return ErrEmptyCategory
	}
	return nil
}

// CheckCategory verifies the transaction type agrees with its category.
func (t Transaction) CheckCategory(c Category) error {
	if c.Type != t.Type {
		return ErrCategoryMismatch
	}
	return nil
}
