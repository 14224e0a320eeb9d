// Package postgres is the Store for multi-instance deployments. XP updates
// lock the user row with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"poupanca/internal/core"
	"poupanca/internal/storage"
)

// pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type Store struct {
	pool pool
}

var _ storage.Store = (*Store)(nil)

// Open connects to databaseURL after applying migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(p), nil
}

func New(p pool) *Store {
	return &Store{pool: p}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func toDate(d core.Date) pgtype.Date {
	if d.IsEmpty() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time, Valid: true}
}

func fromDate(d pgtype.Date) core.Date {
	if !d.Valid {
		return core.Date{}
	}
	return core.DateOf(d.Time)
}

const userColumns = `id, username, password_hash, email, phone, full_name, birth_date, is_admin,
	created_at, last_login, xp, level, last_xp_grant`

func scanUser(row pgx.Row) (core.User, error) {
	var (
		u         core.User
		birth     pgtype.Date
		lastLogin pgtype.Timestamptz
		lastGrant pgtype.Date
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Phone, &u.FullName,
		&birth, &u.IsAdmin, &u.CreatedAt, &lastLogin, &u.XP, &u.Level, &lastGrant); err != nil {
		return core.User{}, err
	}
	u.BirthDate = fromDate(birth)
	u.CreatedAt = u.CreatedAt.UTC()
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time.UTC()
	}
	u.LastGrant = fromDate(lastGrant)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.Level < core.StartingLevel {
		u.XPState = core.NewXPState()
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO users
		(username, password_hash, email, phone, full_name, birth_date, is_admin, xp, level, last_xp_grant)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		u.Username, u.PasswordHash, u.Email, u.Phone, u.FullName, toDate(u.BirthDate), u.IsAdmin,
		u.XP, u.Level, toDate(u.LastGrant)).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return core.User{}, fmt.Errorf("user %q: %w", u.Username, core.ErrAlreadyExists)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id int64, p core.ProfileUpdate) (core.User, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.FullName != nil {
		add("full_name", *p.FullName)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}
	args = append(args, id)
	u, err := scanUser(s.pool.QueryRow(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args)), args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return core.User{}, fmt.Errorf("user %d email: %w", id, core.ErrAlreadyExists)
		}
		return core.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last login %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return ids, nil
}

func (s *Store) UpdateXP(ctx context.Context, id int64, fn func(*core.XPState) error) (core.XPState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.XPState{}, fmt.Errorf("begin xp update: %w", err)
	}

	st, err := s.updateXPTx(ctx, tx, id, fn)
	if err != nil {
		_ = tx.Rollback(ctx)
		return core.XPState{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return core.XPState{}, fmt.Errorf("commit xp %d: %w", id, err)
	}
	return st, nil
}

func (s *Store) updateXPTx(ctx context.Context, tx pgx.Tx, id int64, fn func(*core.XPState) error) (core.XPState, error) {
	var (
		st        core.XPState
		lastGrant pgtype.Date
		version   int64
	)
	err := tx.QueryRow(ctx, `SELECT xp, level, last_xp_grant, xp_version FROM users WHERE id = $1 FOR UPDATE`, id).
		Scan(&st.XP, &st.Level, &lastGrant, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.XPState{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.XPState{}, fmt.Errorf("read xp %d: %w", id, err)
	}
	st.LastGrant = fromDate(lastGrant)

	before := st
	if err := fn(&st); err != nil {
		return core.XPState{}, err
	}
	if storage.SameXP(before, st) {
		return st, nil
	}

	tag, err := tx.Exec(ctx, `UPDATE users SET xp = $1, level = $2, last_xp_grant = $3, xp_version = xp_version + 1
		WHERE id = $4 AND xp_version = $5`, st.XP, st.Level, toDate(st.LastGrant), id, version)
	if err != nil {
		return core.XPState{}, fmt.Errorf("write xp %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.XPState{}, fmt.Errorf("user %d xp: %w", id, core.ErrConflict)
	}
	return st, nil
}

func (s *Store) TopStandings(ctx context.Context, n int) ([]core.Standing, error) {
	query := `SELECT id, username, xp, level FROM users ORDER BY xp DESC, id ASC`
	var args []any
	if n > 0 {
		query += ` LIMIT $1`
		args = append(args, n)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top standings: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Standing, error) {
		var st core.Standing
		err := row.Scan(&st.UserID, &st.Username, &st.XP, &st.Level)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan standings: %w", err)
	}
	return out, nil
}

func (s *Store) CountAbove(ctx context.Context, xp int64) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE xp > $1`, xp).Scan(&n); err != nil {
		return 0, fmt.Errorf("count above %d: %w", xp, err)
	}
	return n, nil
}
