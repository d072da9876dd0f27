package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/dbcopy"
)

func CopyDBCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "copydb",
		Short: "Copy users and files from a SQLite database into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return errors.New("--to is required")
			}

			src, err := db.Init("sqlite", from)
			if err != nil {
				return fmt.Errorf("failed to open source: %w", err)
			}
			defer db.Close(src)

			dst, err := db.Init("pgx", to)
			if err != nil {
				return fmt.Errorf("failed to open destination: %w", err)
			}
			defer db.Close(dst)

			err = db.RunMigrations(cmd.Context(), dst.DB, "pgx")
			if err != nil {
				return err
			}

			counts, err := dbcopy.Copy(cmd.Context(), src, dst)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "copied %d users and %d files\n", counts.Users, counts.Files)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", config.DefaultSQLiteDSN, "source SQLite DSN")
	cmd.Flags().StringVar(&to, "to", "", "destination PostgreSQL URL")
	return cmd
}
