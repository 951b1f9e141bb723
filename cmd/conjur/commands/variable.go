package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/internal/secure"
	"github.com/systmms/conjur-go/pkg/provider"
)

func NewVariableCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variable",
		Short: "Read and write Conjur variables",
	}

	cmd.AddCommand(
		newVariableGetCommand(app),
		newVariableSetCommand(app),
	)

	return cmd
}

func newVariableGetCommand(app *App) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the current value of a variable",
		Long: `Fetch a variable's value and print it to stdout with no trailing
newline, making it suitable for scripting.

Examples:
  conjur variable get prod/db/password
  export DB_PASSWORD=$(conjur variable get prod/db/password)
  conjur variable get prod/db/password --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.conjurProvider()
			if err != nil {
				return err
			}

			ref := provider.Reference{Provider: p.Name(), Key: args[0]}
			secret, err := p.Resolve(cmd.Context(), ref)
			if err != nil {
				return dserrors.SimplifyError(err)
			}

			if !jsonOutput {
				_, err := fmt.Fprint(cmd.OutOrStdout(), secret.Value)
				return err
			}

			output := map[string]interface{}{
				"variable": args[0],
				"id":       secret.Metadata["id"],
				"value":    secret.Value,
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(output); err != nil {
				return fmt.Errorf("failed to encode JSON: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with the resource id")

	return cmd
}

func newVariableSetCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a new value for a variable, read from stdin",
		Long: `Read a new value from standard input and store it as the variable's
current secret. The value is sent exactly as read, so use printf rather
than echo to avoid a trailing newline.

Examples:
  printf '%s' "$NEW_PASSWORD" | conjur variable set prod/db/password
  conjur variable set prod/tls/key < server.key`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				secure.Wipe(value)
				return fmt.Errorf("failed to read value: %w", err)
			}
			if len(value) == 0 {
				return dserrors.UserError{
					Message:    "No value given on standard input",
					Suggestion: "Pipe the new value in, for example: printf '%s' \"$VALUE\" | conjur variable set " + args[0],
				}
			}

			p, err := app.conjurProvider()
			if err != nil {
				secure.Wipe(value)
				return err
			}

			size := len(value)
			if err := p.Client().Variable(args[0]).AddSecret(cmd.Context(), value); err != nil {
				return dserrors.SimplifyError(err)
			}
			app.logger().Info("Stored a new value for %s (%d bytes)", args[0], size)
			return nil
		},
	}

	return cmd
}
