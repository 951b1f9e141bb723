package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertSecretRedacted verifies that a secret value does not appear in a string.
//
// This is a specialized assertion for security testing. It checks that the
// secret value is not present in the output, and that the [REDACTED] marker
// is present instead.
//
// Example usage:
//
//	output := logger.GetOutput()
//	AssertSecretRedacted(t, output, "password123")
//
// Parameters:
//   - t: Testing context
//   - output: The string to check (log output, error message, etc.)
//   - secretValue: The secret that should be redacted
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	// Secret value must not appear
	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)

	// [REDACTED] marker should appear
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when secret is used")
}

// AssertNoSecretLeak verifies that multiple secret values are redacted in output.
//
// This is useful for testing that all secrets in a configuration are properly
// redacted in logs or error messages.
//
// Example usage:
//
//	secrets := []string{"password123", "api-key-456", "token-789"}
//	AssertNoSecretLeak(t, logOutput, secrets)
//
// Parameters:
//   - t: Testing context
//   - output: The string to check
//   - secrets: List of secret values that should all be redacted
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		assert.NotContains(t, output, secret,
			"Secret %q should be redacted, but appears in output", secret)
	}

	// Verify [REDACTED] appears at least once
	assert.Contains(t, output, "[REDACTED]",
		"Expected at least one [REDACTED] marker in output")
}

// AssertErrorContains verifies that an error occurred and contains a substring.
//
// This is a convenience wrapper for error assertion with message checking.
//
// Example usage:
//
//	err := someOperation()
//	AssertErrorContains(t, err, "connection failed")
//
// Parameters:
//   - t: Testing context
//   - err: The error to check
//   - substr: Substring that should appear in the error message
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	assert.Error(t, err, "Expected an error to occur")
	if err != nil {
		assert.Contains(t, err.Error(), substr,
			"Error message should contain %q", substr)
	}
}

// AssertLinesContain verifies that specific lines are present in multi-line output.
//
// This is useful for testing command output or log files line-by-line.
//
// Example usage:
//
//	output := "line1\nline2\nline3"
//	AssertLinesContain(t, output, []string{"line1", "line3"})
//
// Parameters:
//   - t: Testing context
//   - output: Multi-line string
//   - expectedLines: Lines that should be present (partial match)
func AssertLinesContain(t *testing.T, output string, expectedLines []string) {
	t.Helper()

	lines := strings.Split(output, "\n")

	for _, expected := range expectedLines {
		found := false
		for _, line := range lines {
			if strings.Contains(line, expected) {
				found = true
				break
			}
		}

		assert.True(t, found,
			"Expected to find line containing %q in output", expected)
	}
}
