package conjur

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/systmms/conjur-go/internal/secure"
)

// Variable is a named secret stored in Conjur.
type Variable struct {
	client *Client
	name   string
	path   string
}

// Variable returns a handle for the variable called name. No request is made.
func (c *Client) Variable(name string) *Variable {
	return &Variable{
		client: c,
		name:   name,
		path:   KindVariable.resourcePath(c.account, name),
	}
}

// Name returns the variable name.
func (v *Variable) Name() string {
	return v.name
}

// ID returns the fully qualified identifier of the variable.
func (v *Variable) ID() ResourceID {
	return ResourceID{Account: v.client.account, Kind: KindVariable.String(), Name: v.name}
}

// Value fetches the current secret value. The caller owns the returned
// slice and should wipe it when done.
func (v *Variable) Value(ctx context.Context) ([]byte, error) {
	req, err := v.client.AuthenticatedRequest(ctx, http.MethodGet, v.path, nil)
	if err != nil {
		return nil, err
	}
	v.client.logger.Debug("Reading Conjur variable %s", v.name)

	resp, err := v.client.do("read", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	value, err := io.ReadAll(resp.Body)
	if err != nil {
		secure.Wipe(value)
		return nil, &APIError{Op: "read", Kind: ErrTransport, Err: err}
	}
	return value, nil
}

// AddSecret stores value as the variable's new secret. The request body is
// streamed straight from value with its exact length, and value is
// overwritten with zeros before AddSecret returns, whether it succeeds,
// fails or panics.
func (v *Variable) AddSecret(ctx context.Context, value []byte) error {
	defer secure.Wipe(value)

	req, err := v.client.AuthenticatedRequest(ctx, http.MethodPost, v.path, bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(value))
	req.Header.Set("Content-Type", "text/plain")
	v.client.logger.Debug("Writing Conjur variable %s (%d bytes)", v.name, len(value))

	resp, err := v.client.do("write", req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// AddSecretString stores value as the variable's new secret. The bytes
// handed to the transport are wiped, but the string itself is immutable
// and stays in memory until collected; prefer AddSecret for secrets that
// must not linger.
func (v *Variable) AddSecretString(ctx context.Context, value string) error {
	return v.AddSecret(ctx, []byte(value))
}
