package conjur

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every request made by a Client.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4096
)

// Logger receives debug output. *logging.Logger satisfies it.
type Logger interface {
	Debug(format string, args ...interface{})
}

// Observer receives client telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	TokenFetched(ok bool)
	RequestCompleted(op string, statusCode int, elapsed time.Duration)
	PageFetched(kind string, size int)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}

type nopObserver struct{}

func (nopObserver) TokenFetched(bool)                           {}
func (nopObserver) RequestCompleted(string, int, time.Duration) {}
func (nopObserver) PageFetched(string, int)                     {}

// Options configures a Client.
type Options struct {
	// ApplianceURL is the Conjur base URL, for example "https://conjur.example.com".
	ApplianceURL string

	// AuthnURL is the authenticator base URL. Defaults to ApplianceURL + "/authn".
	AuthnURL string

	// Account is the Conjur organization account.
	Account string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// ExtraRoots are trusted in addition to the system roots when verifying
	// the server certificate.
	ExtraRoots *RootSet

	// Verifier overrides the chain verifier used with ExtraRoots.
	Verifier *ChainVerifier

	// HTTPClient replaces the client built from Timeout and ExtraRoots.
	HTTPClient *http.Client

	Logger   Logger
	Observer Observer
}

// Client talks to one Conjur account.
//
// A Client may be shared between goroutines once its authenticator is set.
// SetAuthenticator, SetAPIKey and LogIn are not safe to call concurrently
// with requests.
type Client struct {
	baseURL       string
	authnURL      string
	account       string
	actingAs      string
	httpClient    *http.Client
	authenticator Authenticator
	logger        Logger
	observer      Observer
}

// NewClient creates a Client from opts.
func NewClient(opts Options) (*Client, error) {
	if opts.ApplianceURL == "" {
		return nil, fmt.Errorf("conjur appliance URL is required")
	}
	if opts.Account == "" {
		return nil, fmt.Errorf("conjur account is required")
	}

	baseURL := strings.TrimSuffix(opts.ApplianceURL, "/")
	authnURL := strings.TrimSuffix(opts.AuthnURL, "/")
	if authnURL == "" {
		authnURL = baseURL + "/authn"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.ExtraRoots.Len() > 0 {
			verifier := opts.Verifier
			if verifier == nil {
				verifier = &ChainVerifier{}
			}
			transport.DialTLSContext = verifier.DialTLSContext(opts.ExtraRoots)
		}
		httpClient = &http.Client{Transport: transport, Timeout: timeout}
	}

	c := &Client{
		baseURL:    baseURL,
		authnURL:   authnURL,
		account:    opts.Account,
		httpClient: httpClient,
		logger:     opts.Logger,
		observer:   opts.Observer,
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c, nil
}

// Account returns the Conjur account name.
func (c *Client) Account() string {
	return c.account
}

// Authenticator returns the current authenticator, or nil.
func (c *Client) Authenticator() Authenticator {
	return c.authenticator
}

// SetAuthenticator replaces the authenticator. nil disables authenticated requests.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.authenticator = a
}

// SetAPIKey installs an APIKeyAuthenticator for username. apiKey is wiped.
func (c *Client) SetAPIKey(username string, apiKey []byte) error {
	credential, err := NewCredential(username, apiKey)
	if err != nil {
		return err
	}
	c.authenticator = c.newAPIKeyAuthenticator(credential)
	return nil
}

func (c *Client) newAPIKeyAuthenticator(credential Credential) *APIKeyAuthenticator {
	a := NewAPIKeyAuthenticator(c.authnURL, credential, c.httpClient)
	a.logger = c.logger
	a.observer = c.observer
	return a
}

// ActingAs returns a copy of the client whose resource listings are scoped
// to role. The copy shares the authenticator and HTTP client.
func (c *Client) ActingAs(role string) *Client {
	clone := *c
	clone.actingAs = role
	return &clone
}

// LogIn exchanges a password for the user's API key, installs an
// APIKeyAuthenticator for it and returns the key.
func (c *Client) LogIn(ctx context.Context, username, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authnURL+"/users/login", nil)
	if err != nil {
		return "", &APIError{Op: "login", Kind: ErrTransport, Err: err}
	}
	req.SetBasicAuth(username, password)

	c.logger.Debug("Logging in to Conjur as %s", username)
	resp, err := c.do("login", req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
			apiErr.Kind = ErrAuthentication
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Op: "login", Kind: ErrTransport, Err: err}
	}
	apiKey := string(body)

	if err := c.SetAPIKey(username, body); err != nil {
		return "", &APIError{Op: "login", Kind: ErrAuthentication, Err: err}
	}
	return apiKey, nil
}

// Authenticate obtains a token without issuing any other request. It is
// used to check that credentials work.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.authenticator == nil {
		return ErrNoAuthenticator
	}
	_, err := c.authenticator.GetToken(ctx)
	return err
}

// AuthenticatedRequest builds a request for path, relative to the appliance
// URL, carrying a current access token.
func (c *Client) AuthenticatedRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.authenticator == nil {
		return nil, ErrNoAuthenticator
	}
	token, err := c.authenticator.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token.Header())
	return req, nil
}

// do sends req and turns transport errors and non-2xx answers into
// *APIError. On success the caller owns resp.Body.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.RequestCompleted(op, 0, time.Since(start))
		return nil, &APIError{Op: op, Kind: transportKind(err), Err: err}
	}
	c.observer.RequestCompleted(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Kind:       ErrTransport,
		}
	}
	return resp, nil
}

func errorMessage(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}
