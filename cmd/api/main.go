package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"library-backend/internal/config"
	"library-backend/internal/database"
	"library-backend/internal/logging"
	"library-backend/internal/password"
	"library-backend/internal/services"
	"library-backend/internal/token"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library lending API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newPromoteCmd(),
	)
	return root
}

// app bundles everything the subcommands share.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.DB

	users   *services.UserService
	catalog *services.CatalogService
	lending *services.LendingService
	auth    *services.AuthService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := database.Open(openCtx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.TokenTTL)
	if err != nil {
		db.Close()
		return nil, err
	}

	users := services.NewUserService(db)
	catalog := services.NewCatalogService(db, cfg.LendingReserve)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		users:   users,
		catalog: catalog,
		lending: services.NewLendingService(db, catalog, users, cfg.LoanPeriod),
		auth:    services.NewAuthService(users, password.NewHasher(cfg.BcryptCost), tokens, cfg.AdminAccessKey),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

