package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/internal/logging"
	"github.com/systmms/conjur-go/pkg/conjur"
)

// Environment variables that override the configuration file.
const (
	EnvApplianceURL = "CONJUR_APPLIANCE_URL"
	EnvAuthnURL     = "CONJUR_AUTHN_URL"
	EnvAccount      = "CONJUR_ACCOUNT"
	EnvLogin        = "CONJUR_AUTHN_LOGIN"
	EnvAPIKey       = "CONJUR_AUTHN_API_KEY"
	EnvCertFile     = "CONJUR_CERT_FILE"
)

// DefaultTimeoutMs is used when timeout_ms is unset.
const DefaultTimeoutMs = 30000

//go:embed schema.json
var schemaJSON string

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition

	// Getenv looks up overrides. Defaults to os.Getenv.
	Getenv func(string) string
}

// Definition represents the conjur.yaml structure after environment
// overrides are applied.
type Definition struct {
	ApplianceURL string `yaml:"appliance_url"`
	AuthnURL     string `yaml:"authn_url,omitempty"`
	Account      string `yaml:"account"`
	Login        string `yaml:"login,omitempty"`
	CertFile     string `yaml:"cert_file,omitempty"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`

	// APIKey only ever comes from the environment.
	APIKey string `yaml:"-"`
}

// Load reads conjur.yaml, validates it, and applies environment overrides.
// A missing file is fine as long as the environment supplies the
// appliance URL and account.
func (c *Config) Load() error {
	var def Definition

	data, err := os.ReadFile(c.Path)
	switch {
	case err == nil:
		if err := validateDocument(data); err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &def); err != nil {
			return dserrors.ConfigError{
				Message:    "invalid YAML syntax in configuration file",
				Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
			}
		}
	case os.IsNotExist(err):
		c.debug("No configuration file at %s, using environment only", c.Path)
	default:
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	c.applyEnv(&def)

	if err := def.Complete(); err != nil {
		return err
	}

	c.Definition = &def
	if c.Logger != nil && def.APIKey != "" {
		c.Logger.AddSecret(def.APIKey)
	}
	return nil
}

func (c *Config) applyEnv(def *Definition) {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	overrides := []struct {
		env   string
		field *string
	}{
		{EnvApplianceURL, &def.ApplianceURL},
		{EnvAuthnURL, &def.AuthnURL},
		{EnvAccount, &def.Account},
		{EnvLogin, &def.Login},
		{EnvAPIKey, &def.APIKey},
		{EnvCertFile, &def.CertFile},
	}
	for _, o := range overrides {
		if v := getenv(o.env); v != "" {
			*o.field = v
			if o.env != EnvAPIKey {
				c.debug("Using %s from environment", o.env)
			}
		}
	}
}

// Complete checks the required fields and fills in defaults. Load calls
// it; callers that build a Definition by hand must too.
func (d *Definition) Complete() error {
	if d.ApplianceURL == "" {
		return dserrors.ConfigError{
			Field:      "appliance_url",
			Message:    "Conjur appliance URL is not configured",
			Suggestion: fmt.Sprintf("Set appliance_url in conjur.yaml or export %s", EnvApplianceURL),
		}
	}
	if d.Account == "" {
		return dserrors.ConfigError{
			Field:      "account",
			Message:    "Conjur account is not configured",
			Suggestion: fmt.Sprintf("Set account in conjur.yaml or export %s", EnvAccount),
		}
	}
	d.ApplianceURL = strings.TrimSuffix(d.ApplianceURL, "/")
	if d.AuthnURL == "" {
		d.AuthnURL = d.ApplianceURL + "/authn"
	}
	return nil
}

// validateDocument checks the raw file against the embedded JSON schema.
func validateDocument(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal data for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "configuration does not match the schema:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Allowed keys are appliance_url, authn_url, account, login, cert_file and timeout_ms",
		}
	}
	return nil
}

// Timeout returns the per-request timeout
func (d *Definition) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// ExtraRoots loads the certificates named by cert_file. It returns nil when
// no file is configured.
func (d *Definition) ExtraRoots() (*conjur.RootSet, error) {
	if d.CertFile == "" {
		return nil, nil
	}
	roots := conjur.NewRootSet()
	n, err := roots.ImportPEM(d.CertFile)
	if err != nil {
		return nil, dserrors.ConfigError{
			Field:      "cert_file",
			Value:      d.CertFile,
			Message:    err.Error(),
			Suggestion: "Point cert_file at a PEM bundle containing the Conjur CA certificate",
		}
	}
	if n == 0 {
		return nil, dserrors.ConfigError{
			Field:      "cert_file",
			Value:      d.CertFile,
			Message:    "no certificates found",
			Suggestion: "The file must contain at least one BEGIN CERTIFICATE block",
		}
	}
	return roots, nil
}

// ClientOptions builds client options for the definition.
func (d *Definition) ClientOptions() (conjur.Options, error) {
	roots, err := d.ExtraRoots()
	if err != nil {
		return conjur.Options{}, err
	}
	return conjur.Options{
		ApplianceURL: d.ApplianceURL,
		AuthnURL:     d.AuthnURL,
		Account:      d.Account,
		Timeout:      d.Timeout(),
		ExtraRoots:   roots,
	}, nil
}

func (c *Config) debug(format string, args ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(format, args...)
	}
}
