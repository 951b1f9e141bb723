package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/conjur-go/internal/config"
	dserrors "github.com/systmms/conjur-go/internal/errors"
)

func NewLoginCommand(app *App) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a password for an API key and keep it in the OS keyring",
		Long: `Log in to Conjur with a password read from standard input.

The API key Conjur returns is stored in the operating system keyring under
the appliance URL and login name. Later commands use it whenever
CONJUR_AUTHN_API_KEY is not set.

Examples:
  # Log in as the login configured in conjur.yaml
  printf '%s' "$PASSWORD" | conjur login

  # Log in as another user
  conjur login --username alice < password.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := app.loadDefinition()
			if err != nil {
				return err
			}
			if username == "" {
				username = def.Login
			}
			if username == "" {
				return dserrors.UserError{
					Message:    "Login name is required",
					Suggestion: "Use --username <name>, set login in conjur.yaml, or export " + config.EnvLogin,
				}
			}

			password, err := readSecretLine(cmd.InOrStdin(), "password")
			if err != nil {
				return err
			}
			app.logger().AddSecret(password)

			// The exchange needs no stored credentials.
			anonymous := *def
			anonymous.Login = ""
			anonymous.APIKey = ""
			p, err := app.newProvider(&anonymous)
			if err != nil {
				return err
			}

			app.logger().Debug("Logging in to %s as %s", def.ApplianceURL, username)
			apiKey, err := p.Client().LogIn(cmd.Context(), username, password)
			if err != nil {
				return dserrors.ConjurError("login", err)
			}
			app.logger().AddSecret(apiKey)

			if app.Credentials == nil {
				return dserrors.UserError{Message: "No credential store is available to keep the API key"}
			}
			if err := app.Credentials.Set(def.ApplianceURL, username, []byte(apiKey)); err != nil {
				return dserrors.UserError{
					Message:    "Failed to store the API key",
					Details:    err.Error(),
					Suggestion: "Make sure an OS keyring is available, or export " + config.EnvAPIKey + " instead",
					Err:        err,
				}
			}

			app.logger().Info("Logged in to %s as %s", def.ApplianceURL, username)
			if def.Login != username {
				app.logger().Warn("Set login: %s in conjur.yaml or export %s=%s so later commands use this key", username, config.EnvLogin, username)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Login name (defaults to login in conjur.yaml)")

	return cmd
}
