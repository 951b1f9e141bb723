package conjur

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PageSize is the number of resources requested per page.
const PageSize = 1000

// ResourceKind identifies a category of Conjur resource and knows how the
// API addresses resources of that kind.
type ResourceKind struct {
	name string
}

var (
	KindVariable   = ResourceKind{"variable"}
	KindPolicy     = ResourceKind{"policy"}
	KindUser       = ResourceKind{"user"}
	KindHost       = ResourceKind{"host"}
	KindGroup      = ResourceKind{"group"}
	KindLayer      = ResourceKind{"layer"}
	KindWebservice = ResourceKind{"webservice"}
)

var resourceKinds = []ResourceKind{
	KindVariable, KindPolicy, KindUser, KindHost, KindGroup, KindLayer, KindWebservice,
}

// ParseResourceKind returns the kind called name.
func ParseResourceKind(name string) (ResourceKind, error) {
	for _, kind := range resourceKinds {
		if kind.name == name {
			return kind, nil
		}
	}
	return ResourceKind{}, fmt.Errorf("unknown resource kind %q", name)
}

func (k ResourceKind) String() string {
	return k.name
}

// listPath is the collection path used for listing and counting.
func (k ResourceKind) listPath(account string) string {
	return "resources/" + url.PathEscape(account) + "/" + k.name
}

// resourcePath is where a single resource of this kind is read or written.
// Variables carry values under secrets/, policies are loaded under
// policies/, everything else is addressed under resources/.
func (k ResourceKind) resourcePath(account, name string) string {
	var prefix string
	switch k {
	case KindVariable:
		prefix = "secrets"
	case KindPolicy:
		prefix = "policies"
	default:
		prefix = "resources"
	}
	return prefix + "/" + url.PathEscape(account) + "/" + k.name + "/" + url.PathEscape(name)
}

// ResourceID is the fully qualified "account:kind:name" identifier.
type ResourceID struct {
	Account string
	Kind    string
	Name    string
}

// ParseResourceID splits id into its three parts. The name may itself
// contain colons.
func ParseResourceID(id string) (ResourceID, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ResourceID{}, fmt.Errorf("invalid resource id %q: want account:kind:name", id)
	}
	return ResourceID{Account: parts[0], Kind: parts[1], Name: parts[2]}, nil
}

func (id ResourceID) String() string {
	return id.Account + ":" + id.Kind + ":" + id.Name
}

// ListOptions narrows a resource listing.
type ListOptions struct {
	// Search is passed verbatim as the server-side search filter.
	Search string

	// ActingAs re-scopes the query to another role. Defaults to the
	// client's ActingAs role.
	ActingAs string
}

// ResourceIterator walks a resource listing one page at a time. It is not
// safe for concurrent use and cannot be rewound; call ListResources again
// for a fresh walk. Abandoning an iterator mid-way needs no cleanup.
//
//	it := client.ListResources(conjur.KindVariable, conjur.ListOptions{})
//	for it.Next(ctx) {
//	    fmt.Println(it.ID())
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type ResourceIterator struct {
	client *Client
	kind   ResourceKind
	opts   ListOptions

	offset  int
	page    []ResourceID
	pos     int
	current ResourceID
	err     error
	done    bool
}

// ListResources returns an iterator over all resources of kind visible to
// the client. No request is made until the first call to Next.
func (c *Client) ListResources(kind ResourceKind, opts ListOptions) *ResourceIterator {
	if opts.ActingAs == "" {
		opts.ActingAs = c.actingAs
	}
	return &ResourceIterator{client: c, kind: kind, opts: opts}
}

// ListVariables lists variables.
func (c *Client) ListVariables(opts ListOptions) *ResourceIterator {
	return c.ListResources(KindVariable, opts)
}

// Next advances to the next resource, fetching the following page when the
// current one is used up. It returns false once a page comes back empty or
// a fetch fails; Err tells the two apart. A short page does not end the
// walk.
func (it *ResourceIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	for it.pos >= len(it.page) {
		page, err := it.client.fetchPage(ctx, it.kind, it.opts, it.offset)
		if err != nil {
			it.err = err
			it.finish()
			return false
		}
		it.offset += PageSize
		if len(page) == 0 {
			it.finish()
			return false
		}
		it.page = page
		it.pos = 0
	}
	it.current = it.page[it.pos]
	it.pos++
	return true
}

// ID returns the resource Next advanced to.
func (it *ResourceIterator) ID() ResourceID {
	return it.current
}

// Err returns the error that stopped the iteration, if any.
func (it *ResourceIterator) Err() error {
	return it.err
}

// All adapts the iterator to a range-over-func sequence. A failed fetch is
// yielded once as the final element.
func (it *ResourceIterator) All(ctx context.Context) iter.Seq2[ResourceID, error] {
	return func(yield func(ResourceID, error) bool) {
		for it.Next(ctx) {
			if !yield(it.ID(), nil) {
				return
			}
		}
		if it.err != nil {
			yield(ResourceID{}, it.err)
		}
	}
}

func (it *ResourceIterator) finish() {
	it.done = true
	it.page = nil
	it.pos = 0
	it.current = ResourceID{}
}

type resourceEntry struct {
	ID string `json:"id"`
}

func (c *Client) fetchPage(ctx context.Context, kind ResourceKind, opts ListOptions, offset int) ([]ResourceID, error) {
	// Parameters are written in a fixed order rather than through
	// url.Values, which would sort them.
	query := "offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(PageSize)
	if opts.Search != "" {
		query += "&search=" + url.QueryEscape(opts.Search)
	}
	if opts.ActingAs != "" {
		query += "&acting_as=" + url.QueryEscape(opts.ActingAs)
	}

	req, err := c.AuthenticatedRequest(ctx, http.MethodGet, kind.listPath(c.account)+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Listing %s resources at offset %d", kind, offset)

	resp, err := c.do("list", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var entries []resourceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &APIError{Op: "list", Kind: ErrDeserialization, Err: fmt.Errorf("page at offset %d: %w", offset, err)}
	}

	ids := make([]ResourceID, 0, len(entries))
	for _, entry := range entries {
		id, err := ParseResourceID(entry.ID)
		if err != nil {
			return nil, &APIError{Op: "list", Kind: ErrDeserialization, Err: fmt.Errorf("page at offset %d: %w", offset, err)}
		}
		ids = append(ids, id)
	}
	c.observer.PageFetched(kind.String(), len(ids))
	return ids, nil
}

// CountResources returns how many resources of kind match search without
// walking the listing.
func (c *Client) CountResources(ctx context.Context, kind ResourceKind, search string) (uint32, error) {
	query := "count=true&search=" + url.QueryEscape(search)
	if c.actingAs != "" {
		query += "&acting_as=" + url.QueryEscape(c.actingAs)
	}

	req, err := c.AuthenticatedRequest(ctx, http.MethodGet, kind.listPath(c.account)+"?"+query, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.do("count", req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result struct {
		Count uint32 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, &APIError{Op: "count", Kind: ErrDeserialization, Err: err}
	}
	return result.Count, nil
}

// CountVariables counts variables matching search.
func (c *Client) CountVariables(ctx context.Context, search string) (uint32, error) {
	return c.CountResources(ctx, KindVariable, search)
}
