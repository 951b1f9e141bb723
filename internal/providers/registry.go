package providers

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/systmms/conjur-go/internal/config"
	"github.com/systmms/conjur-go/internal/logging"
	"github.com/systmms/conjur-go/pkg/conjur"
	"github.com/systmms/conjur-go/pkg/provider"
)

// ProviderConfig selects a provider type and carries its settings.
type ProviderConfig struct {
	Type   string
	Config map[string]interface{}
}

// Registry manages provider creation and registration
type Registry struct {
	factories map[string]ProviderFactory
	logger    *logging.Logger
	observer  conjur.Observer
}

// ProviderFactory creates a provider instance from configuration
type ProviderFactory func(name string, config map[string]interface{}) (provider.Provider, error)

// NewRegistry creates a new provider registry with built-in providers.
// Providers it builds log to logger and report client events to observer;
// either may be nil.
func NewRegistry(logger *logging.Logger, observer conjur.Observer) *Registry {
	registry := &Registry{
		factories: make(map[string]ProviderFactory),
		logger:    logger,
		observer:  observer,
	}

	registry.RegisterFactory(ConjurProviderType, registry.newConjurProvider)

	return registry
}

// RegisterFactory registers a provider factory for a given type
func (r *Registry) RegisterFactory(providerType string, factory ProviderFactory) {
	r.factories[providerType] = factory
}

// CreateProvider creates a provider instance from configuration
func (r *Registry) CreateProvider(name string, cfg ProviderConfig) (provider.Provider, error) {
	factory, exists := r.factories[cfg.Type]
	if !exists {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	return factory(name, cfg.Config)
}

// GetSupportedTypes returns the supported provider types in sorted order
func (r *Registry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for providerType := range r.factories {
		types = append(types, providerType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a provider type is supported
func (r *Registry) IsSupported(providerType string) bool {
	_, exists := r.factories[providerType]
	return exists
}

// ConjurSettings turns a loaded definition into the settings map the
// Conjur factory accepts.
func ConjurSettings(def *config.Definition) map[string]interface{} {
	settings := map[string]interface{}{
		"appliance_url": def.ApplianceURL,
		"account":       def.Account,
	}
	optional := map[string]string{
		"authn_url": def.AuthnURL,
		"login":     def.Login,
		"cert_file": def.CertFile,
		"api_key":   def.APIKey,
	}
	for key, value := range optional {
		if value != "" {
			settings[key] = value
		}
	}
	if def.TimeoutMs > 0 {
		settings["timeout_ms"] = def.TimeoutMs
	}
	return settings
}

// newConjurProvider builds a Conjur client from settings. The keys match
// conjur.yaml, plus "api_key" and "acting_as". Credentials are installed
// only when both login and api_key are present.
func (r *Registry) newConjurProvider(name string, settings map[string]interface{}) (provider.Provider, error) {
	def, err := decodeDefinition(settings)
	if err != nil {
		return nil, err
	}

	opts, err := def.ClientOptions()
	if err != nil {
		return nil, err
	}
	if r.logger != nil {
		opts.Logger = r.logger
	}
	opts.Observer = r.observer

	client, err := conjur.NewClient(opts)
	if err != nil {
		return nil, err
	}

	apiKey, _ := settings["api_key"].(string)
	if def.Login != "" && apiKey != "" {
		if err := client.SetAPIKey(def.Login, []byte(apiKey)); err != nil {
			return nil, fmt.Errorf("conjur provider %s: %w", name, err)
		}
	}
	if role, ok := settings["acting_as"].(string); ok && role != "" {
		client = client.ActingAs(role)
	}

	return NewConjurProvider(name, client, r.logger), nil
}

func decodeDefinition(settings map[string]interface{}) (*config.Definition, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conjur settings: %w", err)
	}
	var def config.Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid conjur settings: %w", err)
	}
	if err := def.Complete(); err != nil {
		return nil, err
	}
	return &def, nil
}
