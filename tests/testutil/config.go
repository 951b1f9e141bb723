// Package testutil provides test utilities and helpers for conjur-go tests.
//
// This package contains shared test infrastructure including configuration
// builders, a capturing logger and assertions about secret redaction.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/systmms/conjur-go/internal/config"
)

// TestConfigBuilder provides a fluent API for writing conjur.yaml files.
//
// Example usage:
//
//	path := NewTestConfig(t).
//	    WithApplianceURL(srv.URL()).
//	    WithAccount("myorg").
//	    WithLogin("host/app").
//	    Write()
type TestConfigBuilder struct {
	def     config.Definition
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a new TestConfigBuilder writing into a temporary
// directory that the testing framework removes.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		tempDir: t.TempDir(),
		t:       t,
	}
}

// WithApplianceURL sets appliance_url.
func (b *TestConfigBuilder) WithApplianceURL(url string) *TestConfigBuilder {
	b.def.ApplianceURL = url
	return b
}

// WithAccount sets account.
func (b *TestConfigBuilder) WithAccount(account string) *TestConfigBuilder {
	b.def.Account = account
	return b
}

// WithLogin sets login.
func (b *TestConfigBuilder) WithLogin(login string) *TestConfigBuilder {
	b.def.Login = login
	return b
}

// WithCertFile sets cert_file.
func (b *TestConfigBuilder) WithCertFile(path string) *TestConfigBuilder {
	b.def.CertFile = path
	return b
}

// WithTimeout sets timeout_ms.
func (b *TestConfigBuilder) WithTimeout(ms int) *TestConfigBuilder {
	b.def.TimeoutMs = ms
	return b
}

// Build returns a copy of the definition built so far.
func (b *TestConfigBuilder) Build() *config.Definition {
	def := b.def
	return &def
}

// Write writes conjur.yaml and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	data, err := yaml.Marshal(&b.def)
	if err != nil {
		b.t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(b.tempDir, "conjur.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		b.t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// WriteTestConfig writes YAML content to a temporary conjur.yaml and returns
// its path.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "conjur.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
