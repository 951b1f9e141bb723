package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/conjur-go/internal/config"
	"github.com/systmms/conjur-go/internal/metrics"
	"github.com/systmms/conjur-go/tests/fakes"
	"github.com/systmms/conjur-go/tests/testutil"
)

const (
	testAccount = "myorg"
	testLogin   = "host/app"
	testAPIKey  = "1wgv7h2pw1vta2a7dnzk370ger03nnakkq33sex2a1jmbbnz3h8cJ"
)

type testEnv struct {
	srv        *fakes.FakeConjurServer
	store      *fakes.FakeCredentialStore
	app        *App
	configPath string
	env        map[string]string
}

// newTestEnv starts a fake Conjur with the test login and writes a
// conjur.yaml pointing at it. The API key is not stored anywhere yet.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	srv := fakes.NewFakeConjurServer(testAccount).WithAPIKey(testLogin, testAPIKey)
	t.Cleanup(srv.Close)

	te := &testEnv{
		srv:   srv,
		store: fakes.NewFakeCredentialStore(),
		env:   map[string]string{},
	}
	te.configPath = testutil.NewTestConfig(t).
		WithApplianceURL(srv.URL()).
		WithAccount(testAccount).
		WithLogin(testLogin).
		Write()

	registry := prometheus.NewRegistry()
	te.app = &App{
		Config: &config.Config{
			Getenv: func(key string) string { return te.env[key] },
		},
		Credentials: te.store,
		Metrics:     metrics.New(registry),
		Gatherer:    registry,
	}
	return te
}

// withStoredKey stores the test API key as 'conjur login' would.
func (te *testEnv) withStoredKey() *testEnv {
	te.store.WithAPIKey(te.srv.URL(), testLogin, testAPIKey)
	return te
}

// run executes the root command with args, using the env's config file.
func (te *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand(te.app, "test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", te.configPath, "--no-color"}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
