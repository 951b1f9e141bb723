package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/conjur-go/internal/errors"
)

func NewPolicyCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage Conjur policies",
	}

	cmd.AddCommand(newPolicyLoadCommand(app))

	return cmd
}

func newPolicyLoadCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <policy> <file>",
		Short: "Load a policy document into a policy branch",
		Long: `Load a YAML policy document into the named policy branch and print the
server's response. Use - as the file to read the document from stdin.

Examples:
  conjur policy load root policy.yml
  cat apps.yml | conjur policy load apps -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, file := args[0], args[1]

			var document io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return dserrors.SimplifyError(fmt.Errorf("failed to open policy file: %w", err))
				}
				defer func() { _ = f.Close() }()
				document = f
			}

			p, err := app.conjurProvider()
			if err != nil {
				return err
			}

			app.logger().Debug("Loading policy %s from %s", name, file)
			resp, err := p.Client().Policy(name).Load(cmd.Context(), document)
			if err != nil {
				return dserrors.SimplifyError(err)
			}
			defer func() { _ = resp.Close() }()

			if _, err := io.Copy(cmd.OutOrStdout(), resp); err != nil {
				return fmt.Errorf("failed to read policy response: %w", err)
			}
			app.logger().Info("Loaded policy %s", name)
			return nil
		},
	}

	return cmd
}
