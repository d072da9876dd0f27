package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Specifix5/mikushare/internal/legacy"
	"github.com/Specifix5/mikushare/internal/model"
)

func ImportLegacyCmd() *cobra.Command {
	var keysFile string
	var skipUploads bool

	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Import a legacy keys file and bare upload files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Importer == nil {
				return errors.New("legacy import needs STORAGE_DRIVER=local")
			}

			_, err = a.UserService.EnsureUser(cmd.Context(), model.AnonymousUser)
			if err != nil {
				return fmt.Errorf("failed to create anonymous user: %w", err)
			}

			if keysFile == "" {
				keysFile = a.Cfg.LegacyKeysFile
			}

			out := cmd.OutOrStdout()

			res, err := a.Importer.ImportKeysFile(cmd.Context(), afero.NewOsFs(), keysFile)
			if err != nil {
				return err
			}
			printResult(cmd, "keys", res)

			if skipUploads {
				return nil
			}

			res, err = a.Importer.ImportUploads(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd, "uploads", res)
			fmt.Fprintln(out, "done")
			return nil
		},
	}

	cmd.Flags().StringVar(&keysFile, "keys", "", "path to the legacy keys file (default LEGACY_KEYS_FILE)")
	cmd.Flags().BoolVar(&skipUploads, "skip-uploads", false, "only import keys")
	return cmd
}

func printResult(cmd *cobra.Command, what string, res legacy.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d imported, %d skipped, %d failed\n", what, res.Imported, res.Skipped, res.Failed)
}
