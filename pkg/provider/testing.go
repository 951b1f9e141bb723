package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ContractTest defines a standard test suite that all providers must pass
type ContractTest struct {
	// CreateProvider creates a new instance of the provider to test
	CreateProvider func(t *testing.T) Provider

	// SetupTestSecret creates a test secret in the provider and returns the
	// key to use for retrieval, the stored value and a cleanup function.
	SetupTestSecret func(t *testing.T, p Provider) (key, value string, cleanup func())

	// Skip certain tests if the provider doesn't support them
	SkipValidation bool
	SkipMetadata   bool
}

// RunContractTests runs the standard provider contract test suite
func RunContractTests(t *testing.T, contract ContractTest) {
	t.Run("Contract", func(t *testing.T) {
		t.Run("Name", func(t *testing.T) {
			testProviderName(t, contract)
		})

		t.Run("Capabilities", func(t *testing.T) {
			testProviderCapabilities(t, contract)
		})

		if !contract.SkipValidation {
			t.Run("Validate", func(t *testing.T) {
				testProviderValidate(t, contract)
			})
		}

		t.Run("Resolve", func(t *testing.T) {
			testProviderResolve(t, contract)
		})

		t.Run("ResolveNotFound", func(t *testing.T) {
			testProviderResolveNotFound(t, contract)
		})

		if !contract.SkipMetadata {
			t.Run("Describe", func(t *testing.T) {
				testProviderDescribe(t, contract)
			})
			t.Run("DescribeMissing", func(t *testing.T) {
				testProviderDescribeMissing(t, contract)
			})
		}

		t.Run("ContextCancellation", func(t *testing.T) {
			testProviderContextCancellation(t, contract)
		})
	})
}

func testProviderName(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	name := p.Name()
	if name == "" {
		t.Error("Provider.Name() returned empty string")
	}

	// Verify name is consistent
	if name2 := p.Name(); name != name2 {
		t.Errorf("Provider.Name() not consistent: %q != %q", name, name2)
	}
}

func testProviderCapabilities(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	caps := p.Capabilities()
	caps2 := p.Capabilities()
	if caps.SupportsVersioning != caps2.SupportsVersioning ||
		caps.SupportsMetadata != caps2.SupportsMetadata ||
		caps.RequiresAuth != caps2.RequiresAuth {
		t.Error("Provider.Capabilities() not consistent between calls")
	}

	if caps.RequiresAuth && len(caps.AuthMethods) == 0 {
		t.Error("Provider requires auth but specifies no auth methods")
	}
}

func testProviderValidate(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	done := make(chan error, 1)
	go func() {
		done <- p.Validate(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Provider.Validate() failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Provider.Validate() timed out after 5 seconds")
	}
}

func testProviderResolve(t *testing.T, contract ContractTest) {
	if contract.SetupTestSecret == nil {
		t.Skip("SetupTestSecret not provided, skipping resolve test")
	}

	p := contract.CreateProvider(t)
	key, value, cleanup := contract.SetupTestSecret(t, p)
	defer cleanup()

	secret, err := p.Resolve(context.Background(), Reference{Provider: p.Name(), Key: key})
	if err != nil {
		t.Fatalf("Provider.Resolve() failed: %v", err)
	}
	if secret.Value != value {
		t.Errorf("Provider.Resolve() = %q, want %q", secret.Value, value)
	}
}

func testProviderResolveNotFound(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	ref := Reference{
		Provider: p.Name(),
		Key:      "this-secret-definitely-does-not-exist-" + time.Now().Format("20060102150405"),
	}

	secret, err := p.Resolve(context.Background(), ref)
	if err == nil {
		t.Fatalf("Provider.Resolve() should fail for non-existent key, got value: %q", secret.Value)
	}

	var notFoundErr NotFoundError
	if !errors.As(err, &notFoundErr) {
		t.Errorf("Provider.Resolve() returned %T, want NotFoundError: %v", err, err)
	}
}

func testProviderDescribe(t *testing.T, contract ContractTest) {
	if contract.SetupTestSecret == nil {
		t.Skip("SetupTestSecret not provided, skipping describe test")
	}

	p := contract.CreateProvider(t)
	key, _, cleanup := contract.SetupTestSecret(t, p)
	defer cleanup()

	metadata, err := p.Describe(context.Background(), Reference{Provider: p.Name(), Key: key})
	if err != nil {
		if !p.Capabilities().SupportsMetadata {
			t.Skip("Provider doesn't support metadata")
		}
		t.Fatalf("Provider.Describe() failed: %v", err)
	}
	if !metadata.Exists {
		t.Error("Provider.Describe() returned Exists=false for existing secret")
	}
}

func testProviderDescribeMissing(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	metadata, err := p.Describe(context.Background(), Reference{Provider: p.Name(), Key: "missing-" + time.Now().Format("150405")})
	if err != nil {
		t.Fatalf("Provider.Describe() failed for missing secret: %v", err)
	}
	if metadata.Exists {
		t.Error("Provider.Describe() returned Exists=true for missing secret")
	}
}

func testProviderContextCancellation(t *testing.T, contract ContractTest) {
	p := contract.CreateProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Resolve(ctx, Reference{Provider: p.Name(), Key: "any-key"})
	if err == nil {
		t.Fatal("Provider.Resolve() should fail with cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Provider.Resolve() with cancelled context returned %v, want context.Canceled", err)
	}
}
