package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"poupanca/internal/auth"
	"poupanca/internal/cli"
	"poupanca/internal/config"
	"poupanca/internal/leaderboard"
	"poupanca/internal/log"
	"poupanca/internal/services"
	"poupanca/internal/storage"
)

// NewRootCmd creates the root command for the admin CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poupanca-admin",
		Short: "Maintenance tasks for Pac Poupança",
		Long: `poupanca-admin applies schema migrations, recomputes levels and
manages the administrator account of the store selected by DATA_BACKEND.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			cli.LoadEnvFile()
		},
	}

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewRecalculateCmd())
	cmd.AddCommand(NewCreateAdminCmd())
	cmd.AddCommand(NewLeaderboardCmd())

	return cmd
}

// app is the store plus the services built over it.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	store  storage.Store
	board  leaderboard.Board
	xp     *services.XPService
	auth   *services.AuthService
	close  func()
}

// openApp loads the configuration and opens the store. Rankings go through
// Redis when REDIS_URL is set so the cache stays in step.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := cli.LoadConfig(nil)
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg)

	res, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = res.Cleanup() }}

	var board leaderboard.Board = leaderboard.NewStoreBoard(res.Store)
	if cfg.RedisURL != "" {
		client, err := leaderboard.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = res.Cleanup()
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		board = leaderboard.NewRedisBoard(client, board, logger.Slog())
	}

	xp := services.NewXPService(res.Store, res.Store, board, nil)
	tokens := auth.NewTokens(cfg.JWTSecretKey, cfg.JWTTTL)
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  res.Store,
		board:  board,
		xp:     xp,
		auth:   services.NewAuthService(res.Store, xp, tokens, board, nil),
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// NewRecalculateCmd creates the recalculate-levels subcommand.
func NewRecalculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate-levels",
		Short: "Recompute every user's level from their XP",
		Long: `Walk every account and settle its level against its XP, fixing rows
written by older versions that skipped multi-level promotions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			changed, err := a.xp.RecalculateAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("recalculate levels: %w", err)
			}
			cmd.Printf("Levels recalculated: %d changed\n", changed)
			return nil
		},
	}
}

// NewCreateAdminCmd creates the create-admin subcommand.
func NewCreateAdminCmd() *cobra.Command {
	var acct services.AdminAccount
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the administrator account if missing",
		Long: `Create an administrator account. Flags left empty fall back to the
ADMIN_* environment variables. An existing username is left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if acct.Username == "" {
				acct.Username = a.cfg.AdminUsername
			}
			if acct.Password == "" {
				acct.Password = a.cfg.AdminPassword
			}
			if acct.Email == "" {
				acct.Email = a.cfg.AdminEmail
			}
			if acct.Phone == "" {
				acct.Phone = a.cfg.AdminPhone
			}
			if acct.Username == "" || acct.Password == "" {
				return fmt.Errorf("username and password are required")
			}

			created, err := a.auth.EnsureAdmin(cmd.Context(), acct)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			if created {
				cmd.Printf("Admin %q created\n", acct.Username)
			} else {
				cmd.Printf("Admin %q already exists\n", acct.Username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&acct.Username, "username", "", "admin username")
	cmd.Flags().StringVar(&acct.Password, "password", "", "admin password")
	cmd.Flags().StringVar(&acct.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&acct.Phone, "phone", "", "admin phone")
	return cmd
}

// NewLeaderboardCmd creates the leaderboard subcommand.
func NewLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Manage the Redis leaderboard cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Reload the Redis sorted set from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			rb, ok := a.board.(*leaderboard.RedisBoard)
			if !ok {
				return fmt.Errorf("REDIS_URL is not set")
			}
			n, err := rb.Rebuild(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			cmd.Printf("Leaderboard rebuilt with %d users\n", n)
			return nil
		},
	})
	return cmd
}
