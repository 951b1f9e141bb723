package conjur_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/conjur-go/pkg/conjur"
	"github.com/systmms/conjur-go/tests/fakes"
)

func zeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func TestVariableValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		variable string
		wantPath string
	}{
		{name: "simple", variable: "password", wantPath: "/secrets/test-account/variable/password"},
		{name: "slashes", variable: "prod/db/password", wantPath: "/secrets/test-account/variable/prod%2Fdb%2Fpassword"},
		{name: "spaces", variable: "my secret", wantPath: "/secrets/test-account/variable/my%20secret"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := fakes.NewFakeConjurServer(testAccount).WithSecret(tt.variable, "value-of-"+tt.name)
			defer srv.Close()

			client := newTestClient(t, srv)
			v := client.Variable(tt.variable)
			assert.Equal(t, tt.variable, v.Name())
			assert.Equal(t, testAccount+":variable:"+tt.variable, v.ID().String())

			value, err := v.Value(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "value-of-"+tt.name, string(value))

			reads := srv.RequestsTo("/secrets/")
			require.Len(t, reads, 1)
			assert.Equal(t, tt.wantPath, reads[0].EscapedPath)
		})
	}
}

func TestVariableAddSecret(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer(testAccount)
	defer srv.Close()

	client := newTestClient(t, srv)

	value := []byte("s3cr3t-value")
	require.NoError(t, client.Variable("db/password").AddSecret(context.Background(), value))

	assert.True(t, zeroed(value), "buffer must be zeroed after a successful write")
	assert.Len(t, value, len("s3cr3t-value"))

	stored, ok := srv.Secret("db/password")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t-value", string(stored))

	writes := srv.RequestsTo("/secrets/")
	require.Len(t, writes, 1)
	assert.Equal(t, http.MethodPost, writes[0].Method)
	assert.Equal(t, "/secrets/test-account/variable/db%2Fpassword", writes[0].EscapedPath)
	assert.Equal(t, "text/plain", writes[0].Header.Get("Content-Type"))
	assert.Equal(t, int64(12), writes[0].ContentLength)
}

func TestVariableAddSecretZeroesOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		client func(t *testing.T) *conjur.Client
		want   error
	}{
		{
			name: "no_authenticator",
			client: func(t *testing.T) *conjur.Client {
				client, err := conjur.NewClient(conjur.Options{ApplianceURL: "http://127.0.0.1:1", Account: testAccount})
				require.NoError(t, err)
				return client
			},
			want: conjur.ErrNoAuthenticator,
		},
		{
			name: "authentication_failure",
			client: func(t *testing.T) *conjur.Client {
				srv := fakes.NewFakeConjurServer(testAccount)
				t.Cleanup(srv.Close)
				client, err := conjur.NewClient(conjur.Options{ApplianceURL: srv.URL(), Account: testAccount})
				require.NoError(t, err)
				require.NoError(t, client.SetAPIKey("nobody", []byte("key")))
				return client
			},
			want: conjur.ErrAuthentication,
		},
		{
			name: "transport_failure",
			client: func(t *testing.T) *conjur.Client {
				srv := fakes.NewFakeConjurServer(testAccount)
				client := newTestClient(t, srv)
				require.NoError(t, client.Authenticate(context.Background()))
				srv.Close()
				return client
			},
			want: conjur.ErrTransport,
		},
		{
			name: "server_rejects",
			client: func(t *testing.T) *conjur.Client {
				srv := fakes.NewFakeConjurServer("other-account")
				t.Cleanup(srv.Close)
				srv.WithAPIKey("admin", "admin-api-key")
				client, err := conjur.NewClient(conjur.Options{ApplianceURL: srv.URL(), Account: testAccount})
				require.NoError(t, err)
				require.NoError(t, client.SetAPIKey("admin", []byte("admin-api-key")))
				return client
			},
			want: conjur.ErrTransport,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := tt.client(t)
			value := []byte("do-not-leak")

			err := client.Variable("x").AddSecret(context.Background(), value)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, zeroed(value), "buffer must be zeroed after a failed write")
		})
	}
}

type panickingAuthenticator struct{}

func (panickingAuthenticator) GetToken(context.Context) (conjur.Token, error) {
	panic("authenticator exploded")
}

func TestVariableAddSecretZeroesOnPanic(t *testing.T) {
	t.Parallel()

	client, err := conjur.NewClient(conjur.Options{ApplianceURL: "http://127.0.0.1:1", Account: testAccount})
	require.NoError(t, err)
	client.SetAuthenticator(panickingAuthenticator{})

	value := []byte("do-not-leak")
	assert.Panics(t, func() {
		_ = client.Variable("x").AddSecret(context.Background(), value)
	})
	assert.True(t, zeroed(value), "buffer must be zeroed when a panic unwinds the write")
}

func TestVariableAddSecretEmpty(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer(testAccount)
	defer srv.Close()

	client := newTestClient(t, srv)
	require.NoError(t, client.Variable("empty").AddSecret(context.Background(), []byte{}))

	stored, ok := srv.Secret("empty")
	require.True(t, ok)
	assert.Empty(t, stored)
}

func TestVariableAddSecretString(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer(testAccount)
	defer srv.Close()

	client := newTestClient(t, srv)
	require.NoError(t, client.Variable("api/token").AddSecretString(context.Background(), "from-string"))

	stored, ok := srv.Secret("api/token")
	require.True(t, ok)
	assert.Equal(t, "from-string", string(stored))
}

func TestVariableRoundTrip(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer(testAccount)
	defer srv.Close()

	client := newTestClient(t, srv)
	v := client.Variable("app/key")

	require.NoError(t, v.AddSecret(context.Background(), []byte("first")))
	require.NoError(t, v.AddSecret(context.Background(), []byte("second")))

	value, err := v.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", string(value))

	assert.Equal(t, []string{testAccount + ":variable:app/key"}, collect(t, client.ListVariables(conjur.ListOptions{})))
}
