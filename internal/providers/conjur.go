package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/conjur-go/internal/logging"
	"github.com/systmms/conjur-go/internal/secure"
	"github.com/systmms/conjur-go/pkg/conjur"
	"github.com/systmms/conjur-go/pkg/provider"
)

// ConjurProviderType is the registry type of the Conjur provider.
const ConjurProviderType = "conjur"

// ConjurProvider implements the provider.Provider interface for Conjur
// variables.
type ConjurProvider struct {
	name   string
	client *conjur.Client
	logger *logging.Logger
}

// NewConjurProvider creates a provider reading variables through client.
func NewConjurProvider(name string, client *conjur.Client, logger *logging.Logger) *ConjurProvider {
	if logger == nil {
		logger = logging.New(false, false)
	}
	return &ConjurProvider{
		name:   name,
		client: client,
		logger: logger,
	}
}

// Name returns the provider name.
func (p *ConjurProvider) Name() string {
	return p.name
}

// Client returns the underlying Conjur client.
func (p *ConjurProvider) Client() *conjur.Client {
	return p.client
}

// Capabilities returns the provider capabilities.
func (p *ConjurProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsVersioning: false,
		SupportsMetadata:   true,
		SupportsBinary:     true,
		RequiresAuth:       true,
		AuthMethods:        []string{"api_key", "password"},
	}
}

// Validate checks that the configured credentials can obtain a token.
func (p *ConjurProvider) Validate(ctx context.Context) error {
	if err := p.client.Authenticate(ctx); err != nil {
		return toProviderError(p.name, "", err)
	}
	return nil
}

// Resolve reads the current value of the variable named by ref.Key.
func (p *ConjurProvider) Resolve(ctx context.Context, ref provider.Reference) (provider.SecretValue, error) {
	if err := ctx.Err(); err != nil {
		return provider.SecretValue{}, fmt.Errorf("resolve %s: %w", ref.Key, err)
	}
	if ref.Version != "" {
		return provider.SecretValue{}, fmt.Errorf("%s: variable versions are not supported (requested %s of %s)", p.name, ref.Version, ref.Key)
	}

	variable := p.client.Variable(ref.Key)
	p.logger.Debug("Fetching secret %s from Conjur", ref.Key)

	value, err := variable.Value(ctx)
	if err != nil {
		return provider.SecretValue{}, toProviderError(p.name, ref.Key, err)
	}
	defer secure.Wipe(value)

	return provider.SecretValue{
		Value:     string(value),
		UpdatedAt: time.Now(),
		Metadata:  map[string]string{"id": variable.ID().String()},
	}, nil
}

// Describe reports whether the variable exists by searching the variable
// listing for its exact id. The value is not read.
func (p *ConjurProvider) Describe(ctx context.Context, ref provider.Reference) (provider.Metadata, error) {
	want := p.client.Variable(ref.Key).ID()

	it := p.client.ListVariables(conjur.ListOptions{Search: ref.Key})
	for id, err := range it.All(ctx) {
		if err != nil {
			return provider.Metadata{}, toProviderError(p.name, ref.Key, err)
		}
		if id == want {
			return provider.Metadata{
				Exists: true,
				Type:   conjur.KindVariable.String(),
				Tags:   map[string]string{"id": id.String()},
			}, nil
		}
	}
	return provider.Metadata{Exists: false}, nil
}
