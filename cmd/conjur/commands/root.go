package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/conjur-go/internal/logging"
)

// NewRootCommand builds the conjur command tree around app.
func NewRootCommand(app *App, version string) *cobra.Command {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "conjur",
		Short: "Conjur secrets client",
		Long: `conjur reads and writes secrets in a CyberArk Conjur appliance.

Connection settings come from conjur.yaml and CONJUR_* environment
variables. API keys obtained with 'conjur login' are kept in the OS keyring.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.Config.Path = configFile
			app.Config.Logger = logging.NewWithWriter(cmd.ErrOrStderr(), debug, noColor)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.LogMetrics()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "conjur.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		NewLoginCommand(app),
		NewVariableCommand(app),
		NewListCommand(app),
		NewCountCommand(app),
		NewPolicyCommand(app),
		NewCertsCommand(app),
	)

	return rootCmd
}
