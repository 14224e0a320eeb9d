package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poupanca/internal/core"
	"poupanca/internal/storage"
)

// ExportPublisher hands a stored transaction to the export worker.
type ExportPublisher interface {
	PublishExport(ctx context.Context, transactionID, userID int64) error
}

// TransactionService validates and stores a user's transactions and
// schedules their export.
type TransactionService struct {
	categories storage.CategoryStore
	txs        storage.TransactionStore
	exports    ExportPublisher
	now        func() time.Time
}

// NewTransactionService accepts a nil publisher; the export worker's
// periodic sweep then picks rows up on its own.
func NewTransactionService(categories storage.CategoryStore, txs storage.TransactionStore, exports ExportPublisher) *TransactionService {
	return &TransactionService{categories: categories, txs: txs, exports: exports, now: time.Now}
}

func (s *TransactionService) WithClock(now func() time.Time) *TransactionService {
	s.now = now
	return s
}

// NewTransaction is a transaction as submitted. An empty Date means today.
type NewTransaction struct {
	Description string
	Amount      core.Money
	Type        core.TransactionType
	CategoryID  int64
	Date        core.Date
}

// TransactionChanges carries a partial update; nil means unchanged.
type TransactionChanges struct {
	Description *string
	Amount      *core.Money
	Type        *core.TransactionType
	CategoryID  *int64
	Date        *core.Date
}

func (s *TransactionService) category(ctx context.Context, id int64) (core.Category, error) {
	c, err := s.categories.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, refine(err, ErrCategoryNotFound)
	}
	return c, nil
}

// checkCategory loads the transaction's category and verifies the types
// agree.
func (s *TransactionService) checkCategory(ctx context.Context, t core.Transaction) error {
	c, err := s.category(ctx, t.CategoryID)
	if err != nil {
		return err
	}
	if err := t.CheckCategory(c); err != nil {
		return &CategoryMismatchError{CategoryType: c.Type}
	}
	return nil
}

func (s *TransactionService) Create(ctx context.Context, userID int64, in NewTransaction) (core.Transaction, error) {
	if !in.Type.IsValid() {
		return core.Transaction{}, core.ErrInvalidType
	}
	t := core.Transaction{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Type:        in.Type,
		Date:        in.Date,
	}
	if t.Date.IsEmpty() {
		t.Date = core.DateOf(s.now())
	}
	if err := s.checkCategory(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.txs.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", created.ID,
		"user_id", userID,
		"type", created.Type,
		"amount_cents", created.Amount.Cents)

	s.publishExport(ctx, created)
	return created, nil
}

func (s *TransactionService) publishExport(ctx context.Context, t core.Transaction) {
	if s.exports == nil {
		slog.DebugContext(ctx, "AMQP client not available, export left to the sweep", "transaction_id", t.ID)
		return
	}
	if err := s.exports.PublishExport(ctx, t.ID, t.UserID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"transaction_id", t.ID, "error", err)
	}
}

func (s *TransactionService) Get(ctx context.Context, userID, id int64) (core.Transaction, error) {
	t, err := s.txs.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, refine(err, ErrTxNotFound)
	}
	return t, nil
}

// List returns the user's transactions newest first. A non-positive limit
// falls back to core.DefaultTransactionLimit.
func (s *TransactionService) List(ctx context.Context, userID int64, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.Type != "" && !f.Type.IsValid() {
		return nil, core.ErrInvalidType
	}
	if f.Limit <= 0 {
		f.Limit = core.DefaultTransactionLimit
	}
	txs, err := s.txs.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *TransactionService) Update(ctx context.Context, userID, id int64, c TransactionChanges) (core.Transaction, error) {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if c.Description != nil {
		t.Description = strings.TrimSpace(*c.Description)
	}
	if c.Amount != nil {
		t.Amount = *c.Amount
	}
	if c.Type != nil {
		if !c.Type.IsValid() {
			return core.Transaction{}, core.ErrInvalidType
		}
		t.Type = *c.Type
	}
	if c.CategoryID != nil {
		t.CategoryID = *c.CategoryID
	}
	if c.Date != nil {
		t.Date = *c.Date
	}
	if c.Type != nil || c.CategoryID != nil {
		if err := s.checkCategory(ctx, t); err != nil {
			return core.Transaction{}, err
		}
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.txs.UpdateTransaction(ctx, t)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) && c.CategoryID != nil {
			return core.Transaction{}, refine(err, ErrCategoryNotFound)
		}
		return core.Transaction{}, refine(err, ErrTxNotFound)
	}
	slog.InfoContext(ctx, "Transaction updated", "transaction_id", id, "user_id", userID)
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.txs.DeleteTransaction(ctx, userID, id); err != nil {
		return refine(err, ErrTxNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "user_id", userID)
	return nil
}

// Summary totals the user's transactions over period. Unrecognised periods
// cover everything, and the period is echoed back as given.
func (s *TransactionService) Summary(ctx context.Context, userID int64, period string) (core.Summary, error) {
	if period == "" {
		period = core.PeriodAll
	}
	start, ok := core.PeriodStart(period, s.now())
	if !ok {
		start = core.Date{}
	}
	txs, err := s.txs.ListTransactions(ctx, userID, core.TransactionFilter{Start: start})
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary transactions: %w", err)
	}
	return core.Summarize(period, txs), nil
}

// CategoryService lists categories and lets admins manage them.
type CategoryService struct {
	categories storage.CategoryStore
	auth       *AuthService
}

func NewCategoryService(categories storage.CategoryStore, auth *AuthService) *CategoryService {
	return &CategoryService{categories: categories, auth: auth}
}

func (s *CategoryService) List(ctx context.Context) ([]core.Category, error) {
	cs, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

func (s *CategoryService) Create(ctx context.Context, actorID int64, c core.Category) (core.Category, error) {
	if err := s.auth.RequireAdmin(ctx, actorID); err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.categories.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "category_id", created.ID, "name", created.Name)
	return created, nil
}

// Delete removes a category; core.ErrInUse while transactions still use it.
func (s *CategoryService) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.auth.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return refine(err, ErrCategoryNotFound)
	}
	slog.InfoContext(ctx, "Category deleted", "category_id", id)
	return nil
}
