package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"poupanca/internal/core"
)

const categoryColumns = `id, name, description, type, icon, color`

func scanCategory(row scanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Type, &c.Icon, &c.Color)
	return c, err
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM transaction_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM transaction_categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO transaction_categories (name, description, type, icon, color)
		VALUES (?, ?, ?, ?, ?)`, c.Name, c.Description, c.Type, c.Icon, c.Color)
	if err != nil {
		if isUnique(err) {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrAlreadyExists)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transaction_categories WHERE id = ?`, id)
	if err != nil {
		if isForeignKey(err) {
			return fmt.Errorf("category %d: %w", id, core.ErrInUse)
		}
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

const txSelect = `SELECT t.id, t.user_id, t.category_id, t.description, t.amount_cents, t.type, t.date, t.created_at, t.exported_at IS NOT NULL,
	c.id, c.name, c.description, c.type, c.icon, c.color
	FROM transactions t JOIN transaction_categories c ON c.id = t.category_id`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		c       core.Category
		date    string
		created string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Description, &t.Amount.Cents, &t.Type, &date, &created, &t.Exported,
		&c.ID, &c.Name, &c.Description, &c.Type, &c.Icon, &c.Color); err != nil {
		return core.Transaction{}, err
	}
	var err error
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.Category = &c
	return t, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO transactions
		(user_id, category_id, description, amount_cents, type, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, t.Description, t.Amount.Cents, t.Type, t.Date.String(), t.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isForeignKey(err) {
			return core.Transaction{}, fmt.Errorf("transaction references: %w", core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	return s.GetTransaction(ctx, t.UserID, id)
}

func (s *Store) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, txSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, f core.TransactionFilter) ([]core.Transaction, error) {
	where := []string{"t.user_id = ?"}
	args := []any{userID}
	if f.Type != "" {
		where, args = append(where, "t.type = ?"), append(args, f.Type)
	}
	if f.CategoryID > 0 {
		where, args = append(where, "t.category_id = ?"), append(args, f.CategoryID)
	}
	if !f.Start.IsEmpty() {
		where, args = append(where, "t.date >= ?"), append(args, f.Start.String())
	}
	if !f.End.IsEmpty() {
		where, args = append(where, "t.date <= ?"), append(args, f.End.String())
	}
	query := txSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY t.date DESC, t.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	out, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions
		SET category_id = ?, description = ?, amount_cents = ?, type = ?, date = ?
		WHERE id = ? AND user_id = ?`,
		t.CategoryID, t.Description, t.Amount.Cents, t.Type, t.Date.String(), t.ID, t.UserID)
	if err != nil {
		if isForeignKey(err) {
			return core.Transaction{}, fmt.Errorf("category %d: %w", t.CategoryID, core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return s.GetTransaction(ctx, t.UserID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	query := txSelect + ` WHERE t.exported_at IS NULL ORDER BY t.id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	out, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	return out, nil
}

func (s *Store) MarkExported(ctx context.Context, id int64, ref string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET exported_at = ?, sheets_ref = ? WHERE id = ?`,
		s.now().UTC().Format(timeLayout), ref, id)
	if err != nil {
		return fmt.Errorf("mark exported %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}
