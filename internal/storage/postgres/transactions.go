package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"poupanca/internal/core"
)

const categoryColumns = `id, name, description, type, icon, color`

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &typ, &c.Icon, &c.Color)
	c.Type = core.TransactionType(typ)
	return c, err
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM transaction_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Category, error) {
		return scanCategory(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return out, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(s.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM transaction_categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO transaction_categories (name, description, type, icon, color)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Name, c.Description, string(c.Type), c.Icon, c.Color).Scan(&c.ID)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrAlreadyExists)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transaction_categories WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("category %d: %w", id, core.ErrInUse)
		}
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

const txSelect = `SELECT t.id, t.user_id, t.category_id, t.description, t.amount_cents, t.type, t.date, t.created_at, t.exported_at IS NOT NULL,
	c.id, c.name, c.description, c.type, c.icon, c.color
	FROM transactions t JOIN transaction_categories c ON c.id = t.category_id`

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t       core.Transaction
		c       core.Category
		typ     string
		catType string
		date    pgtype.Date
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Description, &t.Amount.Cents, &typ, &date, &t.CreatedAt, &t.Exported,
		&c.ID, &c.Name, &c.Description, &catType, &c.Icon, &c.Color); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	c.Type = core.TransactionType(catType)
	t.Date = fromDate(date)
	t.CreatedAt = t.CreatedAt.UTC()
	t.Category = &c
	return t, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Transaction, error) {
		return scanTransaction(row)
	})
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO transactions (user_id, category_id, description, amount_cents, type, date)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.UserID, t.CategoryID, t.Description, t.Amount.Cents, string(t.Type), toDate(t.Date)).Scan(&id)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return core.Transaction{}, fmt.Errorf("transaction references: %w", core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return s.GetTransaction(ctx, t.UserID, id)
}

func (s *Store) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, txSelect+` WHERE t.id = $1 AND t.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, f core.TransactionFilter) ([]core.Transaction, error) {
	args := []any{userID}
	where := []string{"t.user_id = $1"}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("t.type = $%d", string(f.Type))
	}
	if f.CategoryID > 0 {
		add("t.category_id = $%d", f.CategoryID)
	}
	if !f.Start.IsEmpty() {
		add("t.date >= $%d", toDate(f.Start))
	}
	if !f.End.IsEmpty() {
		add("t.date <= $%d", toDate(f.End))
	}
	query := txSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY t.date DESC, t.id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	out, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions
		SET category_id = $1, description = $2, amount_cents = $3, type = $4, date = $5
		WHERE id = $6 AND user_id = $7`,
		t.CategoryID, t.Description, t.Amount.Cents, string(t.Type), toDate(t.Date), t.ID, t.UserID)
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return core.Transaction{}, fmt.Errorf("category %d: %w", t.CategoryID, core.ErrNotFound)
		}
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return s.GetTransaction(ctx, t.UserID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	query := txSelect + ` WHERE t.exported_at IS NULL ORDER BY t.id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	out, err := s.queryTransactions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending exports: %w", err)
	}
	return out, nil
}

func (s *Store) MarkExported(ctx context.Context, id int64, ref string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE transactions SET exported_at = $1, sheets_ref = $2 WHERE id = $3`,
		time.Now().UTC(), ref, id)
	if err != nil {
		return fmt.Errorf("mark exported %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}
