package conjur

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/systmms/conjur-go/internal/secure"
)

// DefaultTokenTTL is how long an access token is reused before a new one is
// requested. Conjur tokens live for eight minutes; the margin covers clock
// skew and request latency.
const DefaultTokenTTL = 7*time.Minute + 30*time.Second

// Authenticator supplies access tokens for authenticated requests.
// Implementations must be safe for concurrent use.
type Authenticator interface {
	GetToken(ctx context.Context) (Token, error)
}

// Token is a Conjur access token in verbatim form, as returned by the
// authenticate endpoint.
type Token struct {
	Value    string
	IssuedAt time.Time
}

// Header returns the Authorization header value carrying the token.
func (t Token) Header() string {
	return `Token token="` + base64.StdEncoding.EncodeToString([]byte(t.Value)) + `"`
}

// String implements the Stringer interface, always returning a redacted value
func (t Token) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (t Token) GoString() string {
	return "[REDACTED]"
}

// Credential is a login name and its API key. The key is held in an
// encrypted enclave and is never logged.
type Credential struct {
	Username string
	secret   *secure.SecureBuffer
}

// NewCredential copies apiKey into protected memory and wipes the slice.
func NewCredential(username string, apiKey []byte) (Credential, error) {
	if username == "" {
		return Credential{}, fmt.Errorf("credential username is empty")
	}
	buf, err := secure.NewSecureBuffer(apiKey)
	if err != nil {
		return Credential{}, fmt.Errorf("credential for %s: %w", username, err)
	}
	return Credential{Username: username, secret: buf}, nil
}

// String implements the Stringer interface without exposing the API key
func (c Credential) String() string {
	return c.Username + ":[REDACTED]"
}

// APIKeyAuthenticator exchanges an API key for access tokens and caches the
// most recent token until its deadline.
//
// Callers arriving while a fetch is in flight join it and receive its
// result, token or error, so a burst of callers at an expired token produces
// exactly one authenticate request.
type APIKeyAuthenticator struct {
	url        string
	credential Credential
	httpClient *http.Client
	logger     Logger
	observer   Observer
	ttl        time.Duration
	now        func() time.Time

	flight singleflight.Group

	mu       sync.Mutex
	token    *Token
	deadline time.Time
}

// NewAPIKeyAuthenticator creates an authenticator for the given authn base
// URL, for example "https://conjur.example.com/authn". The username may
// contain slashes ("host/jenkins"); it is escaped into a single path segment.
func NewAPIKeyAuthenticator(authnURL string, credential Credential, httpClient *http.Client) *APIKeyAuthenticator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &APIKeyAuthenticator{
		url: strings.TrimSuffix(authnURL, "/") + "/users/" +
			url.PathEscape(credential.Username) + "/authenticate",
		credential: credential,
		httpClient: httpClient,
		logger:     nopLogger{},
		observer:   nopObserver{},
		ttl:        DefaultTokenTTL,
		now:        time.Now,
	}
}

// GetToken returns the cached token while it is valid, otherwise joins or
// starts the single in-flight authenticate request. A failed request is
// reported to every caller waiting on it and leaves the cache empty, so the
// next call tries again.
//
// The request itself is not bound to ctx: a caller that gives up stops
// waiting, while the others still receive the result.
func (a *APIKeyAuthenticator) GetToken(ctx context.Context) (Token, error) {
	if token, ok := a.cached(); ok {
		return token, nil
	}
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	ch := a.flight.DoChan("token", func() (interface{}, error) {
		if token, ok := a.cached(); ok {
			return token, nil
		}
		return a.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

func (a *APIKeyAuthenticator) cached() (Token, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != nil && a.now().Before(a.deadline) {
		return *a.token, true
	}
	return Token{}, false
}

// refresh performs one authenticate request and fills the cache slot.
func (a *APIKeyAuthenticator) refresh(ctx context.Context) (Token, error) {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()

	token, err := a.fetch(ctx)
	if err != nil {
		a.observer.TokenFetched(false)
		return Token{}, err
	}
	a.observer.TokenFetched(true)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = &token
	a.deadline = token.IssuedAt.Add(a.ttl)
	return token, nil
}

// Expired reports whether the next GetToken call will hit the network.
func (a *APIKeyAuthenticator) Expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token == nil || !a.now().Before(a.deadline)
}

// Invalidate drops the cached token.
func (a *APIKeyAuthenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = nil
	a.deadline = time.Time{}
}

func (a *APIKeyAuthenticator) fetch(ctx context.Context) (Token, error) {
	a.logger.Debug("Requesting Conjur access token for %s", a.credential.Username)

	if a.credential.secret == nil {
		return Token{}, &APIError{Op: "authenticate", Kind: ErrAuthentication, Message: "credential has no API key"}
	}
	locked, err := a.credential.secret.Open()
	if err != nil {
		return Token{}, &APIError{Op: "authenticate", Kind: ErrAuthentication, Err: err}
	}
	defer locked.Destroy()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(locked.Bytes()))
	if err != nil {
		return Token{}, &APIError{Op: "authenticate", Kind: ErrTransport, Err: err}
	}

	start := a.now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.observer.RequestCompleted("authenticate", 0, a.now().Sub(start))
		return Token{}, &APIError{Op: "authenticate", Kind: transportKind(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	a.observer.RequestCompleted("authenticate", resp.StatusCode, a.now().Sub(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, &APIError{Op: "authenticate", Kind: ErrTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, &APIError{
			Op:         "authenticate",
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Kind:       ErrAuthentication,
		}
	}

	return Token{Value: string(body), IssuedAt: a.now()}, nil
}
