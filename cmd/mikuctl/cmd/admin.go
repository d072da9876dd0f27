package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Specifix5/mikushare/internal/cli"
)

// AdminCmd exposes the console commands from the shell. Flag parsing is left
// to the inner command tree, which is built once the app is open.
func AdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "admin <command> [args]",
		Short:              "Manage users and files (genkey, getkey, listusers, delfiles, deluser, sweep)",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			root := &cobra.Command{
				Use:          "mikuctl admin",
				SilenceUsage: true,
			}
			root.AddCommand(cli.AdminCommands(cli.Services{Users: a.UserService, Sweep: a.SweepService})...)
			root.SetOut(cmd.OutOrStdout())
			root.SetErr(cmd.ErrOrStderr())
			root.SetArgs(args)
			return root.ExecuteContext(cmd.Context())
		},
	}
}
