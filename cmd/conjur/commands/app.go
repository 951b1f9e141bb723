package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/conjur-go/internal/config"
	"github.com/systmms/conjur-go/internal/credentials"
	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/internal/logging"
	"github.com/systmms/conjur-go/internal/metrics"
	"github.com/systmms/conjur-go/internal/providers"
	"github.com/systmms/conjur-go/internal/secure"
	"github.com/systmms/conjur-go/pkg/conjur"
)

// App carries what every command needs. Config.Path and Config.Logger are
// filled in by the root command before any command runs.
type App struct {
	Config      *config.Config
	Credentials credentials.Store

	// Metrics observes every client the commands build. Optional.
	Metrics *metrics.Collector

	// Gatherer is read by LogMetrics. Optional.
	Gatherer prometheus.Gatherer

	// Verifier is used by certs check. Nil means the system trust store.
	Verifier *conjur.ChainVerifier
}

func (a *App) logger() *logging.Logger {
	if a.Config.Logger == nil {
		a.Config.Logger = logging.New(false, true)
	}
	return a.Config.Logger
}

// loadDefinition loads the configuration and returns a copy of it that the
// caller may change.
func (a *App) loadDefinition() (*config.Definition, error) {
	a.logger()
	if err := a.Config.Load(); err != nil {
		return nil, err
	}
	def := *a.Config.Definition
	return &def, nil
}

// conjurProvider builds the Conjur provider for the loaded configuration.
// The API key comes from the environment, or else from the credential
// store.
func (a *App) conjurProvider() (*providers.ConjurProvider, error) {
	def, err := a.loadDefinition()
	if err != nil {
		return nil, err
	}
	if def.APIKey == "" && def.Login != "" {
		def.APIKey = a.storedAPIKey(def.ApplianceURL, def.Login)
	}
	return a.newProvider(def)
}

func (a *App) newProvider(def *config.Definition) (*providers.ConjurProvider, error) {
	var observer conjur.Observer
	if a.Metrics != nil {
		observer = a.Metrics
	}

	registry := providers.NewRegistry(a.logger(), observer)
	p, err := registry.CreateProvider(providers.ConjurProviderType, providers.ProviderConfig{
		Type:   providers.ConjurProviderType,
		Config: providers.ConjurSettings(def),
	})
	if err != nil {
		return nil, err
	}
	return p.(*providers.ConjurProvider), nil
}

func (a *App) storedAPIKey(applianceURL, login string) string {
	if a.Credentials == nil {
		return ""
	}
	key, err := a.Credentials.Get(applianceURL, login)
	switch {
	case err == nil:
		apiKey := string(key)
		secure.Wipe(key)
		a.logger().AddSecret(apiKey)
		a.logger().Debug("Using API key stored in the keyring for %s", login)
		return apiKey
	case errors.Is(err, credentials.ErrNotFound):
		a.logger().Debug("No API key stored for %s", login)
	default:
		a.logger().Warn("Could not read the keyring: %v", err)
	}
	return ""
}

// LogMetrics writes the gathered client metrics as debug lines.
func (a *App) LogMetrics() {
	if a.Gatherer == nil || !a.logger().DebugEnabled() {
		return
	}
	lines, err := metrics.Summary(a.Gatherer)
	if err != nil {
		a.logger().Debug("Metrics unavailable: %v", err)
		return
	}
	for _, line := range lines {
		a.logger().Debug("metric %s", line)
	}
}

// readSecretLine reads the first line of r without its line ending.
func readSecretLine(r io.Reader, what string) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", dserrors.UserError{
			Message:    fmt.Sprintf("No %s given on standard input", what),
			Suggestion: fmt.Sprintf("Pipe the %s in, for example: printf '%%s' \"$VALUE\" | conjur ...", what),
		}
	}
	return line, nil
}
