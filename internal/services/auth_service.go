package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poupanca/internal/auth"
	"poupanca/internal/core"
	"poupanca/internal/leaderboard"
	"poupanca/internal/metrics"
	"poupanca/internal/storage"
)

// AuthService owns accounts: registration, login with the daily grant, and
// the profile.
type AuthService struct {
	users   storage.UserDirectory
	xp      *XPService
	tokens  *auth.Tokens
	board   leaderboard.Board
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAuthService wires registration, login and profile changes to xp and board.
func NewAuthService(users storage.UserDirectory, xp *XPService, tokens *auth.Tokens, board leaderboard.Board, m *metrics.Metrics) *AuthService {
	if board == nil {
		board = leaderboard.NewStoreBoard(users)
	}
	return &AuthService{users: users, xp: xp, tokens: tokens, board: board, metrics: m, now: time.Now}
}

type Registration struct {
	Username  string
	Password  string
	Email     string
	Phone     string
	FullName  string
	BirthDate core.Date
}

// Register creates an account with a fresh XP state.
func (s *AuthService) Register(ctx context.Context, r Registration) (core.User, error) {
	if r.Password == "" {
		return core.User{}, core.ErrEmptyPassword
	}
	u := core.User{
		Username:  strings.TrimSpace(r.Username),
		Email:     strings.TrimSpace(r.Email),
		Phone:     strings.TrimSpace(r.Phone),
		FullName:  strings.TrimSpace(r.FullName),
		BirthDate: r.BirthDate,
		XPState:   core.NewXPState(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	if _, err := s.users.GetUserByUsername(ctx, u.Username); err == nil {
		return core.User{}, ErrUsernameTaken
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return core.User{}, err
	}
	u.PasswordHash = hash

	created, err := s.users.CreateUser(ctx, u)
	if errors.Is(err, core.ErrAlreadyExists) {
		// The username was free a moment ago, so this is the email unless a
		// concurrent registration took the name.
		if _, lerr := s.users.GetUserByUsername(ctx, u.Username); lerr == nil {
			return core.User{}, ErrUsernameTaken
		}
		return core.User{}, ErrEmailTaken
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.board.Update(ctx, created.Standing()); err != nil {
		slog.WarnContext(ctx, "Failed to add user to leaderboard", "user_id", created.ID, "error", err)
	}
	slog.InfoContext(ctx, "User registered", "user_id", created.ID, "username", created.Username)
	return created, nil
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	User  core.User
	Token string
	Grant core.GrantResult
}

// Login verifies the credentials, applies the daily grant and issues a
// token. Unknown users and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		s.metrics.Login(false)
		return LoginResult{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.metrics.Login(false)
		slog.InfoContext(ctx, "Login rejected", "user_id", u.ID)
		return LoginResult{}, core.ErrInvalidCredentials
	}

	grant, state, err := s.xp.grant(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	u.XPState = state

	at := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, at); err != nil {
		slog.WarnContext(ctx, "Failed to record last login", "user_id", u.ID, "error", err)
	} else {
		u.LastLogin = at
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.metrics.Login(true)
	slog.InfoContext(ctx, "Login succeeded", "user_id", u.ID, "xp_granted", grant.Granted)
	return LoginResult{User: u, Token: token, Grant: grant}, nil
}

// Profile returns the user with a normalized level.
func (s *AuthService) Profile(ctx context.Context, id int64) (core.User, error) {
	return s.xp.Normalized(ctx, id)
}

// ProfileChanges carries the editable profile fields; nil means unchanged.
type ProfileChanges struct {
	Email    *string
	Phone    *string
	FullName *string
	Password *string
}

func (s *AuthService) UpdateProfile(ctx context.Context, id int64, c ProfileChanges) (core.User, error) {
	var p core.ProfileUpdate
	if c.Email != nil {
		email := strings.TrimSpace(*c.Email)
		if err := core.ValidateEmail(email); err != nil {
			return core.User{}, err
		}
		p.Email = &email
	}
	if c.Phone != nil {
		phone := strings.TrimSpace(*c.Phone)
		if phone == "" {
			return core.User{}, core.ErrEmptyPhone
		}
		p.Phone = &phone
	}
	if c.FullName != nil {
		name := strings.TrimSpace(*c.FullName)
		if name == "" {
			return core.User{}, core.ErrEmptyFullName
		}
		p.FullName = &name
	}
	if c.Password != nil {
		if *c.Password == "" {
			return core.User{}, core.ErrEmptyPassword
		}
		hash, err := auth.HashPassword(*c.Password)
		if err != nil {
			return core.User{}, err
		}
		p.PasswordHash = &hash
	}

	u, err := s.users.UpdateProfile(ctx, id, p)
	if errors.Is(err, core.ErrAlreadyExists) {
		return core.User{}, ErrEmailTaken
	}
	if err != nil {
		return core.User{}, refine(err, ErrUserNotFound)
	}
	slog.InfoContext(ctx, "Profile updated", "user_id", id)
	return s.xp.normalize(ctx, u)
}

// DeleteAccount removes the user and their transactions after confirming
// the password.
func (s *AuthService) DeleteAccount(ctx context.Context, id int64, password string) error {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return refine(err, ErrUserNotFound)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return core.ErrInvalidCredentials
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return refine(err, ErrUserNotFound)
	}
	if err := s.board.Remove(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to remove user from leaderboard", "user_id", id, "error", err)
	}
	slog.InfoContext(ctx, "Account deleted", "user_id", id)
	return nil
}

// AdminAccount describes the administrator seeded at startup.
type AdminAccount struct {
	Username string
	Password string
	Email    string
	Phone    string
}

// EnsureAdmin creates the administrator unless the username already
// exists. It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, a AdminAccount) (bool, error) {
	if _, err := s.users.GetUserByUsername(ctx, a.Username); err == nil {
		return false, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}
	hash, err := auth.HashPassword(a.Password)
	if err != nil {
		return false, err
	}
	u := core.User{
		Username:     a.Username,
		PasswordHash: hash,
		Email:        a.Email,
		Phone:        a.Phone,
		FullName:     "Administrador",
		BirthDate:    core.NewDate(1970, 1, 1),
		IsAdmin:      true,
		XPState:      core.NewXPState(),
	}
	if err := u.Validate(); err != nil {
		return false, fmt.Errorf("admin account: %w", err)
	}
	created, err := s.users.CreateUser(ctx, u)
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	if err := s.board.Update(ctx, created.Standing()); err != nil {
		slog.WarnContext(ctx, "Failed to add admin to leaderboard", "error", err)
	}
	slog.InfoContext(ctx, "Admin account created", "user_id", created.ID, "username", created.Username)
	return true, nil
}

// RequireAdmin returns ErrAdminRequired unless id belongs to an admin.
func (s *AuthService) RequireAdmin(ctx context.Context, id int64) error {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return ErrAdminRequired
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsAdmin {
		return ErrAdminRequired
	}
	return nil
}
