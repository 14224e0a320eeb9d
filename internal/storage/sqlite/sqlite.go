// Package sqlite is the single-file Store, the default engine.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"poupanca/internal/core"
	"poupanca/internal/storage"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// dsn opens every transaction with BEGIN IMMEDIATE so the XP read already
// holds the write lock, and waits on a busy database instead of failing.
func dsn(path string) string {
	return "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// Extended result codes are matched first; the primary code plus message is
// the fallback for connections without extended codes.
func isUnique(err error) bool {
	c := sqliteCode(err)
	if c == sqlite3.SQLITE_CONSTRAINT_UNIQUE || c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return c == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}

func isForeignKey(err error) bool {
	c := sqliteCode(err)
	if c == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return c == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "FOREIGN KEY")
}

func nullableDate(d core.Date) sql.NullString {
	if d.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullableDate(ns sql.NullString) (core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(ns.String)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

const userColumns = `id, username, password_hash, email, phone, full_name, birth_date, is_admin,
	created_at, last_login, xp, level, last_xp_grant`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (core.User, error) {
	var (
		u         core.User
		birth     string
		created   string
		lastLogin sql.NullString
		lastGrant sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.Phone, &u.FullName,
		&birth, &u.IsAdmin, &created, &lastLogin, &u.XP, &u.Level, &lastGrant); err != nil {
		return core.User{}, err
	}
	var err error
	if u.BirthDate, err = core.ParseDate(birth); err != nil {
		return core.User{}, fmt.Errorf("parse birth date: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, fmt.Errorf("parse created_at: %w", err)
	}
	if lastLogin.Valid {
		if u.LastLogin, err = parseTime(lastLogin.String); err != nil {
			return core.User{}, fmt.Errorf("parse last_login: %w", err)
		}
	}
	if u.LastGrant, err = parseNullableDate(lastGrant); err != nil {
		return core.User{}, fmt.Errorf("parse last_xp_grant: %w", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.Level < core.StartingLevel {
		u.XPState = core.NewXPState()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users
		(username, password_hash, email, phone, full_name, birth_date, is_admin, created_at, xp, level, last_xp_grant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Email, u.Phone, u.FullName, u.BirthDate.String(), u.IsAdmin,
		u.CreatedAt.UTC().Format(timeLayout), u.XP, u.Level, nullableDate(u.LastGrant))
	if err != nil {
		if isUnique(err) {
			return core.User{}, fmt.Errorf("user %q: %w", u.Username, core.ErrAlreadyExists)
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, fmt.Errorf("user id: %w", err)
	}
	slog.DebugContext(ctx, "User saved to SQLite", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
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
	if p.Email != nil {
		sets, args = append(sets, "email = ?"), append(args, *p.Email)
	}
	if p.Phone != nil {
		sets, args = append(sets, "phone = ?"), append(args, *p.Phone)
	}
	if p.FullName != nil {
		sets, args = append(sets, "full_name = ?"), append(args, *p.FullName)
	}
	if p.PasswordHash != nil {
		sets, args = append(sets, "password_hash = ?"), append(args, *p.PasswordHash)
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUnique(err) {
			return core.User{}, fmt.Errorf("user %d email: %w", id, core.ErrAlreadyExists)
		}
		return core.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("touch last login %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpdateXP(ctx context.Context, id int64, fn func(*core.XPState) error) (core.XPState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.XPState{}, fmt.Errorf("begin xp update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var (
		st        core.XPState
		lastGrant sql.NullString
		version   int64
	)
	err = tx.QueryRowContext(ctx, `SELECT xp, level, last_xp_grant, xp_version FROM users WHERE id = ?`, id).
		Scan(&st.XP, &st.Level, &lastGrant, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.XPState{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.XPState{}, fmt.Errorf("read xp %d: %w", id, err)
	}
	if st.LastGrant, err = parseNullableDate(lastGrant); err != nil {
		return core.XPState{}, fmt.Errorf("parse last_xp_grant: %w", err)
	}

	before := st
	if err := fn(&st); err != nil {
		return core.XPState{}, err
	}
	if storage.SameXP(before, st) {
		return st, nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE users SET xp = ?, level = ?, last_xp_grant = ?, xp_version = xp_version + 1
		WHERE id = ? AND xp_version = ?`, st.XP, st.Level, nullableDate(st.LastGrant), id, version)
	if err != nil {
		return core.XPState{}, fmt.Errorf("write xp %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.XPState{}, fmt.Errorf("user %d xp: %w", id, core.ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return core.XPState{}, fmt.Errorf("commit xp %d: %w", id, err)
	}
	return st, nil
}

func (s *Store) TopStandings(ctx context.Context, n int) ([]core.Standing, error) {
	if n <= 0 {
		n = -1 // SQLite reads a negative LIMIT as no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, xp, level FROM users ORDER BY xp DESC, id ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top standings: %w", err)
	}
	defer rows.Close()
	var out []core.Standing
	for rows.Next() {
		var st core.Standing
		if err := rows.Scan(&st.UserID, &st.Username, &st.XP, &st.Level); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CountAbove(ctx context.Context, xp int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE xp > ?`, xp).Scan(&n); err != nil {
		return 0, fmt.Errorf("count above %d: %w", xp, err)
	}
	return n, nil
}
