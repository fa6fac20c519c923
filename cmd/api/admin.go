package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"library-backend/internal/importer"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-books <file.csv>",
		Short: "Add catalog copies from a title,author,count CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, parseErr := importer.Parse(f)
			if parseErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), parseErr)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := importer.Import(cmd.Context(), a.catalog, entries)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows, %d failed\n", res.Imported, res.Failed)
			if err != nil {
				return err
			}
			if parseErr != nil {
				return errors.New("some rows could not be parsed")
			}
			return nil
		},
	}
}

// newPromoteCmd grants admin from the operator's shell, for installs where
// no HTTP client holds the bootstrap key.
func newPromoteCmd() *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant (or with --revoke, remove) admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.users.FindByEmail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			user, err = a.users.SetAdmin(cmd.Context(), user.ID, !revoke)
			if err != nil {
				return err
			}

			a.logger.Info("admin flag updated", "user_id", user.ID, "is_admin", user.IsAdmin)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is_admin=%t\n", user.Username, user.IsAdmin)
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove admin rights instead of granting them")
	return cmd
}
