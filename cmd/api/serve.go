package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"library-backend/internal/database"
	"library-backend/internal/handlers"
)

func newServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrateFirst {
				if err := database.Migrate(a.cfg.DatabaseDriver, a.cfg.DatabaseURL, database.Up); err != nil {
					return err
				}
				a.logger.Info("migrations applied")
			}

			router := handlers.NewRouter(handlers.Services{
				Auth:    a.auth,
				Users:   a.users,
				Catalog: a.catalog,
				Lending: a.lending,
			}, a.db, handlers.RouterConfig{CORSOrigin: a.cfg.CORSOrigin}, a.logger)

			srv := &http.Server{
				Addr:              a.cfg.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server starting", "addr", srv.Addr, "driver", a.cfg.DatabaseDriver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before serving")
	return cmd
}
