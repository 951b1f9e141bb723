package conjur

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/conjur-go/tests/fakes"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAuthenticator(t *testing.T, srv *fakes.FakeConjurServer, login, apiKey string) (*APIKeyAuthenticator, *fakeClock) {
	t.Helper()

	credential, err := NewCredential(login, []byte(apiKey))
	require.NoError(t, err)

	clock := newFakeClock()
	a := NewAPIKeyAuthenticator(srv.URL()+"/authn", credential, srv.Server.Client())
	a.now = clock.Now
	return a, clock
}

func TestAPIKeyAuthenticatorCachesWithinTTL(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	defer srv.Close()

	a, clock := newTestAuthenticator(t, srv, "admin", "api-key")
	ctx := context.Background()

	first, err := a.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", first.Value)

	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Second)
		tok, err := a.GetToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, tok)
	}

	assert.Equal(t, 1, srv.AuthenticateCalls())
	assert.False(t, a.Expired())
}

func TestAPIKeyAuthenticatorSingleFlight(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	srv.SetAuthnDelay(50 * time.Millisecond)
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")

	const numGoroutines = 50
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	tokens := make(chan Token, numGoroutines)
	errs := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			tok, err := a.GetToken(context.Background())
			if err != nil {
				errs <- err
				return
			}
			tokens <- tok
		}()
	}
	wg.Wait()
	close(tokens)
	close(errs)

	for err := range errs {
		t.Errorf("GetToken() error = %v", err)
	}
	for tok := range tokens {
		assert.Equal(t, "token-1", tok.Value)
	}
	assert.Equal(t, 1, srv.AuthenticateCalls(), "concurrent callers must share one fetch")
}

func TestAPIKeyAuthenticatorSingleFlightFailure(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	srv.SetAuthnStatus(http.StatusUnauthorized)
	srv.SetAuthnDelay(50 * time.Millisecond)
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	errs := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := a.GetToken(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrAuthentication)
	}
	assert.Equal(t, 1, srv.AuthenticateCalls(), "waiters must receive the in-flight failure")
	assert.True(t, a.Expired(), "a failed fetch must leave the cache empty")

	srv.SetAuthnStatus(0)
	srv.SetAuthnDelay(0)
	tok, err := a.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.Value)
	assert.Equal(t, 2, srv.AuthenticateCalls())
}

func TestAPIKeyAuthenticatorWaiterCancellation(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	srv.SetAuthnDelay(100 * time.Millisecond)
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := a.GetToken(ctx)
		first <- err
	}()

	second := make(chan Token, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok, err := a.GetToken(context.Background())
		assert.NoError(t, err)
		second <- tok
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-first, context.Canceled)
	assert.Equal(t, "token-1", (<-second).Value, "other waiters still receive the token")
	assert.Equal(t, 1, srv.AuthenticateCalls())

	_, err := a.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.AuthenticateCalls())
}

func TestAPIKeyAuthenticatorRefreshesAfterTTL(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	defer srv.Close()

	a, clock := newTestAuthenticator(t, srv, "admin", "api-key")
	ctx := context.Background()

	first, err := a.GetToken(ctx)
	require.NoError(t, err)

	clock.Advance(DefaultTokenTTL - time.Second)
	tok, err := a.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, tok)
	assert.Equal(t, 1, srv.AuthenticateCalls())

	// The deadline is measured from issuance, not from the last read.
	clock.Advance(time.Second)
	assert.True(t, a.Expired())

	second, err := a.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.AuthenticateCalls())
	assert.Equal(t, "token-2", second.Value)
	assert.True(t, second.IssuedAt.After(first.IssuedAt))

	_, err = a.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.AuthenticateCalls())
}

func TestAPIKeyAuthenticatorFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(*fakes.FakeConjurServer)
		apiKey   string
		wantKind error
		wantCode int
	}{
		{
			name:     "wrong_api_key",
			apiKey:   "wrong",
			wantKind: ErrAuthentication,
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "server_error",
			setup: func(f *fakes.FakeConjurServer) {
				f.SetAuthnStatus(http.StatusInternalServerError)
			},
			apiKey:   "api-key",
			wantKind: ErrAuthentication,
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
			defer srv.Close()
			if tt.setup != nil {
				tt.setup(srv)
			}

			a, _ := newTestAuthenticator(t, srv, "admin", tt.apiKey)

			_, err := a.GetToken(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.StatusCode)
			assert.Equal(t, "authenticate", apiErr.Op)

			// Nothing was cached, so the next call fetches again.
			assert.True(t, a.Expired())
			_, err = a.GetToken(context.Background())
			require.Error(t, err)
			assert.Equal(t, 2, srv.AuthenticateCalls())
		})
	}
}

func TestAPIKeyAuthenticatorTransportFailure(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")
	srv.Close()

	_, err := a.GetToken(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.True(t, a.Expired())
}

func TestAPIKeyAuthenticatorRecoversAfterFailure(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	srv.SetAuthnStatus(http.StatusServiceUnavailable)
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")

	_, err := a.GetToken(context.Background())
	require.Error(t, err)

	srv.SetAuthnStatus(0)
	tok, err := a.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok.Value)
}

func TestAPIKeyAuthenticatorRequestShape(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("host/jenkins", "host-api-key")
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "host/jenkins", "host-api-key")

	_, err := a.GetToken(context.Background())
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/authn/users/host%2Fjenkins/authenticate", reqs[0].EscapedPath)
	assert.Equal(t, "host-api-key", string(reqs[0].Body))
}

func TestAPIKeyAuthenticatorInvalidate(t *testing.T) {
	t.Parallel()

	srv := fakes.NewFakeConjurServer("test-account").WithAPIKey("admin", "api-key")
	defer srv.Close()

	a, _ := newTestAuthenticator(t, srv, "admin", "api-key")
	assert.True(t, a.Expired())

	_, err := a.GetToken(context.Background())
	require.NoError(t, err)
	assert.False(t, a.Expired())

	a.Invalidate()
	assert.True(t, a.Expired())

	tok, err := a.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok.Value)
}

func TestTokenHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  string
	}{
		{value: "tok123", want: `Token token="dG9rMTIz"`},
		{value: "token", want: `Token token="dG9rZW4="`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Token{Value: tt.value}.Header())
		})
	}
}

func TestTokenAndCredentialRedaction(t *testing.T) {
	t.Parallel()

	tok := Token{Value: "very-secret-token"}
	assert.NotContains(t, fmt.Sprintf("%v %s %#v", tok, tok, tok), "very-secret-token")

	apiKey := []byte("very-secret-key")
	credential, err := NewCredential("admin", apiKey)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len("very-secret-key")), apiKey, "api key slice must be wiped")
	assert.Equal(t, "admin:[REDACTED]", fmt.Sprint(credential))
}

func TestNewCredentialValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCredential("", []byte("key"))
	assert.Error(t, err)

	_, err = NewCredential("admin", nil)
	assert.Error(t, err)
}
