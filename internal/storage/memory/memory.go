// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"poupanca/internal/core"
	"poupanca/internal/storage"
)

type userRecord struct {
	user    core.User
	version int64
}

type txRecord struct {
	tx        core.Transaction
	sheetsRef string
}

// Store keeps everything in maps. mu guards the maps; userLocks serialises
// XP updates per user so read-apply-write never interleaves for one user.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]*userRecord
	categories map[int64]core.Category
	txs        map[int64]*txRecord
	nextUser   int64
	nextCat    int64
	nextTx     int64

	userLocks sync.Map // int64 -> *sync.Mutex

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store seeded with the default categories.
func New() *Store {
	s := &Store{
		users:      make(map[int64]*userRecord),
		categories: make(map[int64]core.Category),
		txs:        make(map[int64]*txRecord),
		now:        time.Now,
	}
	for _, c := range storage.DefaultCategories() {
		s.nextCat++
		c.ID = s.nextCat
		s.categories[c.ID] = c
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) userLock(id int64) *sync.Mutex {
	m, _ := s.userLocks.LoadOrStore(id, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.users {
		if r.user.Username == u.Username {
			return core.User{}, fmt.Errorf("username %q: %w", u.Username, core.ErrAlreadyExists)
		}
		if strings.EqualFold(r.user.Email, u.Email) {
			return core.User{}, fmt.Errorf("email %q: %w", u.Email, core.ErrAlreadyExists)
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	if u.Level < core.StartingLevel {
		u.XPState = core.NewXPState()
	}
	s.users[u.ID] = &userRecord{user: u}
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	return r.user, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.users {
		if r.user.Username == username {
			return r.user, nil
		}
	}
	return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
}

func (s *Store) UpdateProfile(_ context.Context, id int64, p core.ProfileUpdate) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if p.Email != nil {
		for otherID, o := range s.users {
			if otherID != id && strings.EqualFold(o.user.Email, *p.Email) {
				return core.User{}, fmt.Errorf("email %q: %w", *p.Email, core.ErrAlreadyExists)
			}
		}
		r.user.Email = *p.Email
	}
	if p.Phone != nil {
		r.user.Phone = *p.Phone
	}
	if p.FullName != nil {
		r.user.FullName = *p.FullName
	}
	if p.PasswordHash != nil {
		r.user.PasswordHash = *p.PasswordHash
	}
	return r.user, nil
}

// DeleteUser removes the user and cascades to their transactions.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	delete(s.users, id)
	for txID, r := range s.txs {
		if r.tx.UserID == id {
			delete(s.txs, txID)
		}
	}
	return nil
}

func (s *Store) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	r.user.LastLogin = at.UTC()
	return nil
}

func (s *Store) ListUserIDs(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) UpdateXP(_ context.Context, id int64, fn func(*core.XPState) error) (core.XPState, error) {
	lock := s.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	r, ok := s.users[id]
	var (
		state   core.XPState
		version int64
	)
	if ok {
		state, version = r.user.XPState, r.version
	}
	s.mu.RUnlock()
	if !ok {
		return core.XPState{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}

	before := state
	if err := fn(&state); err != nil {
		return core.XPState{}, err
	}
	if storage.SameXP(before, state) {
		return state, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok = s.users[id]
	if !ok {
		return core.XPState{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
	}
	if r.version != version {
		return core.XPState{}, fmt.Errorf("user %d xp: %w", id, core.ErrConflict)
	}
	r.user.XPState = state
	r.version++
	return state, nil
}

func (s *Store) TopStandings(_ context.Context, n int) ([]core.Standing, error) {
	s.mu.RLock()
	all := make([]core.Standing, 0, len(s.users))
	for _, r := range s.users {
		all = append(all, r.user.Standing())
	}
	s.mu.RUnlock()

	core.SortStandings(all)
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (s *Store) CountAbove(_ context.Context, xp int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.users {
		if r.user.XP > xp {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Name == c.Name {
			return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrAlreadyExists)
		}
	}
	s.nextCat++
	c.ID = s.nextCat
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	for _, r := range s.txs {
		if r.tx.CategoryID == id {
			return fmt.Errorf("category %d: %w", id, core.ErrInUse)
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[t.UserID]; !ok {
		return core.Transaction{}, fmt.Errorf("user %d: %w", t.UserID, core.ErrNotFound)
	}
	if _, ok := s.categories[t.CategoryID]; !ok {
		return core.Transaction{}, fmt.Errorf("category %d: %w", t.CategoryID, core.ErrNotFound)
	}
	s.nextTx++
	t.ID = s.nextTx
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	t.Category = nil
	t.Exported = false
	s.txs[t.ID] = &txRecord{tx: t}
	return s.hydrate(t), nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.txs[id]
	if !ok || r.tx.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return s.hydrate(r.tx), nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, r := range s.txs {
		t := r.tx
		if t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.CategoryID > 0 && t.CategoryID != f.CategoryID {
			continue
		}
		if !f.Start.IsEmpty() && t.Date.Before(f.Start) {
			continue
		}
		if !f.End.IsEmpty() && f.End.Before(t.Date) {
			continue
		}
		out = append(out, s.hydrate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.txs[t.ID]
	if !ok || r.tx.UserID != t.UserID {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if _, ok := s.categories[t.CategoryID]; !ok {
		return core.Transaction{}, fmt.Errorf("category %d: %w", t.CategoryID, core.ErrNotFound)
	}
	t.CreatedAt = r.tx.CreatedAt
	t.Exported = r.tx.Exported
	t.Category = nil
	r.tx = t
	return s.hydrate(t), nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.txs[id]
	if !ok || r.tx.UserID != userID {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, r := range s.txs {
		if !r.tx.Exported {
			out = append(out, s.hydrate(r.tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.txs[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	r.tx.Exported = true
	r.sheetsRef = ref
	return nil
}

// hydrate attaches the category; callers hold mu.
func (s *Store) hydrate(t core.Transaction) core.Transaction {
	if c, ok := s.categories[t.CategoryID]; ok {
		t.Category = &c
	}
	return t
}
