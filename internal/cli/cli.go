// Package cli holds the operator commands shared by the server console and mikuctl.
package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/service"
	"github.com/Specifix5/mikushare/internal/validation"
)

type Services struct {
	Users *service.UserService
	Sweep *service.SweepService
}

// AdminCommands returns the user and file management commands.
func AdminCommands(s Services) []*cobra.Command {
	return []*cobra.Command{
		genKeyCmd(s),
		getKeyCmd(s),
		listUsersCmd(s),
		delFilesCmd(s),
		delUserCmd(s),
		sweepCmd(s),
	}
}

func genKeyCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "genkey <user> [ttl] [key]",
		Short: "Create a user and print its API key",
		Long: "Create a user. ttl is a lifetime such as 7d, 12h or 1d12h; use 0 for a key that never expires.\n" +
			"key is used verbatim instead of a generated one.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var ttl time.Duration
			if len(args) > 1 {
				var err error
				ttl, err = parseLifetime(args[1])
				if err != nil {
					return err
				}
			}

			var key string
			if len(args) > 2 {
				key = args[2]
			}

			user, err := s.Users.Create(cmd.Context(), name, key, ttl)
			if err != nil {
				if errors.Is(err, repository.ErrDuplicateUser) {
					return fmt.Errorf("user %s or that key already exists", name)
				}
				return fmt.Errorf("failed to create user %s: %w", name, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated key for %s: %s\n", user.Name, user.APIKey)
			if user.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires %s (%s)\n", user.ExpiresAt.Format(time.RFC3339), humanize.Time(*user.ExpiresAt))
			}
			return nil
		},
	}
}

func getKeyCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "getkey <user>",
		Short: "Show the API key of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := s.Users.ByName(cmd.Context(), args[0])
			if err != nil {
				return userError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key for %s: %s\n", user.Name, user.APIKey)
			return nil
		},
	}
}

func listUsersCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "listusers",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := s.Users.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d users\n", len(users))
			for _, u := range users {
				expiry := "never expires"
				if u.ExpiresAt != nil {
					expiry = "expires " + humanize.Time(*u.ExpiresAt)
				}
				fmt.Fprintf(out, "#%d: %s (created %s, %s)\n", u.ID, u.Name, humanize.Time(u.CreatedAt), expiry)
			}
			return nil
		},
	}
}

func delFilesCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "delfiles <user>",
		Short: "Delete every file a user uploaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := s.Users.DeleteFiles(cmd.Context(), args[0])
			if err != nil {
				return userError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d files of %s\n", removed, args[0])
			return nil
		},
	}
}

func delUserCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "deluser <user>",
		Short: "Delete a user and their files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := s.Users.Delete(cmd.Context(), args[0])
			if err != nil {
				return userError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s and %d files\n", args[0], removed)
			return nil
		},
	}
}

func sweepCmd(s Services) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired files and users now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := s.Sweep.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d files (%d blobs already missing) and %d users, %d failures\n",
				sum.FilesDeleted, sum.BlobsMissing, sum.UsersDeleted, sum.Failures)
			return nil
		},
	}
}

func userError(name string, err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("user %s not found", name)
	case errors.Is(err, service.ErrProtectedUser):
		return fmt.Errorf("user %s cannot be deleted", name)
	default:
		return fmt.Errorf("user %s: %w", name, err)
	}
}

// parseLifetime accepts 0 or "never" for keys without expiry.
func parseLifetime(s string) (time.Duration, error) {
	switch s {
	case "0", "never", "-":
		return 0, nil
	}
	return validation.ParseDays(s)
}
