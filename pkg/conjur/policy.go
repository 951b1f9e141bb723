package conjur

import (
	"context"
	"io"
	"net/http"
)

// Policy is a named policy branch.
type Policy struct {
	client *Client
	name   string
	path   string
}

// Policy returns a handle for the policy branch called name.
func (c *Client) Policy(name string) *Policy {
	return &Policy{
		client: c,
		name:   name,
		path:   KindPolicy.resourcePath(c.account, name),
	}
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.name
}

// Load streams document to the server and returns the response body, which
// the caller must close.
func (p *Policy) Load(ctx context.Context, document io.Reader) (io.ReadCloser, error) {
	req, err := p.client.AuthenticatedRequest(ctx, http.MethodPost, p.path, document)
	if err != nil {
		return nil, err
	}
	p.client.logger.Debug("Loading Conjur policy %s", p.name)

	resp, err := p.client.do("load", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
