package fakes

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RecordedRequest is a request as seen by FakeConjurServer.
type RecordedRequest struct {
	Method        string
	EscapedPath   string
	RawQuery      string
	Header        http.Header
	ContentLength int64
	Body          []byte
}

// FakeConjurServer is an in-memory Conjur API served over httptest.
//
// It implements the authn, secrets, resources and policies endpoints well
// enough for client tests, and records every request it receives.
//
// Example usage:
//
//	srv := fakes.NewFakeConjurServer("myorg").
//	    WithAPIKey("admin", "api-key").
//	    WithSecret("db/password", "s3cret")
//	defer srv.Close()
type FakeConjurServer struct {
	Server  *httptest.Server
	Account string

	// TokenFor returns the token issued by the n-th (1-based) successful
	// authenticate call. Defaults to "token-<n>".
	TokenFor func(n int) string

	mu            sync.Mutex
	authnDelay    time.Duration
	authnStatus   int
	apiKeys       map[string]string
	passwords     map[string]string
	secrets       map[string][]byte
	resources     map[string][]string
	roleResources map[string]map[string][]string
	pageBodies    map[int]string
	policies      map[string][]byte
	tokens        map[string]bool
	requests      []RecordedRequest
	authnCalls    int
	issued        int
}

// NewFakeConjurServer starts a plain HTTP fake for account.
func NewFakeConjurServer(account string) *FakeConjurServer {
	f := newFakeConjurServer(account)
	f.Server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	return f
}

// NewFakeConjurTLSServer starts a TLS fake for account. Its self-signed
// certificate is available from Server.Certificate().
func NewFakeConjurTLSServer(account string) *FakeConjurServer {
	f := newFakeConjurServer(account)
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serveHTTP))
	return f
}

func newFakeConjurServer(account string) *FakeConjurServer {
	return &FakeConjurServer{
		Account:       account,
		apiKeys:       make(map[string]string),
		passwords:     make(map[string]string),
		secrets:       make(map[string][]byte),
		resources:     make(map[string][]string),
		roleResources: make(map[string]map[string][]string),
		pageBodies:    make(map[int]string),
		policies:      make(map[string][]byte),
		tokens:        make(map[string]bool),
	}
}

// URL returns the server base URL.
func (f *FakeConjurServer) URL() string {
	return f.Server.URL
}

// Close shuts the server down.
func (f *FakeConjurServer) Close() {
	f.Server.Close()
}

// WithAPIKey registers login with apiKey.
func (f *FakeConjurServer) WithAPIKey(login, apiKey string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys[login] = apiKey
	return f
}

// SetAuthnDelay makes every later authenticate call sleep for d.
func (f *FakeConjurServer) SetAuthnDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authnDelay = d
}

// SetAuthnStatus makes authenticate answer with code instead of a token.
// Zero restores normal behavior.
func (f *FakeConjurServer) SetAuthnStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authnStatus = code
}

// WithPassword registers a password for login. LogIn returns the login's API key.
func (f *FakeConjurServer) WithPassword(login, password string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[login] = password
	return f
}

// WithSecret stores a variable value and lists the variable as a resource.
func (f *FakeConjurServer) WithSecret(name, value string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.secrets[name]; !ok {
		f.resources["variable"] = append(f.resources["variable"], f.Account+":variable:"+name)
	}
	f.secrets[name] = []byte(value)
	return f
}

// WithResources appends resource ids of kind to the listing.
func (f *FakeConjurServer) WithResources(kind string, ids ...string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[kind] = append(f.resources[kind], ids...)
	return f
}

// WithRoleResources sets what role sees when listing kind with acting_as.
func (f *FakeConjurServer) WithRoleResources(role, kind string, ids ...string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleResources[role] == nil {
		f.roleResources[role] = make(map[string][]string)
	}
	f.roleResources[role][kind] = append(f.roleResources[role][kind], ids...)
	return f
}

// WithPageBody makes the listing page at offset return body verbatim.
func (f *FakeConjurServer) WithPageBody(offset int, body string) *FakeConjurServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageBodies[offset] = body
	return f
}

// Secret returns the stored value of a variable.
func (f *FakeConjurServer) Secret(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.secrets[name]
	return v, ok
}

// Policy returns the last document loaded into a policy branch.
func (f *FakeConjurServer) Policy(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.policies[name]
	return v, ok
}

// AuthenticateCalls returns how many authenticate requests arrived.
func (f *FakeConjurServer) AuthenticateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authnCalls
}

// Requests returns every recorded request in arrival order.
func (f *FakeConjurServer) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestsTo returns recorded requests whose escaped path starts with prefix.
func (f *FakeConjurServer) RequestsTo(prefix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range f.Requests() {
		if strings.HasPrefix(r.EscapedPath, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeConjurServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method:        r.Method,
		EscapedPath:   r.URL.EscapedPath(),
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header.Clone(),
		ContentLength: r.ContentLength,
		Body:          body,
	})
	f.mu.Unlock()

	segments := splitPath(r.URL.EscapedPath())
	switch {
	case len(segments) == 3 && segments[0] == "authn" && segments[1] == "users" && segments[2] == "login":
		f.handleLogin(w, r)
	case len(segments) == 4 && segments[0] == "authn" && segments[1] == "users" && segments[3] == "authenticate":
		f.handleAuthenticate(w, segments[2], body)
	case len(segments) == 4 && segments[0] == "secrets" && segments[2] == "variable":
		if !f.authorized(w, r) || !f.accountMatches(w, segments[1]) {
			return
		}
		f.handleSecret(w, r, segments[3], body)
	case len(segments) == 3 && segments[0] == "resources":
		if !f.authorized(w, r) || !f.accountMatches(w, segments[1]) {
			return
		}
		f.handleResources(w, r, segments[2])
	case len(segments) == 4 && segments[0] == "policies" && segments[2] == "policy":
		if !f.authorized(w, r) || !f.accountMatches(w, segments[1]) {
			return
		}
		f.handlePolicy(w, r, segments[3], body)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeConjurServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	login, password, ok := r.BasicAuth()
	f.mu.Lock()
	want, known := f.passwords[login]
	apiKey := f.apiKeys[login]
	f.mu.Unlock()
	if !ok || !known || password != want {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	_, _ = io.WriteString(w, apiKey)
}

func (f *FakeConjurServer) handleAuthenticate(w http.ResponseWriter, login string, body []byte) {
	f.mu.Lock()
	delay := f.authnDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.authnCalls++

	if f.authnStatus != 0 {
		w.WriteHeader(f.authnStatus)
		return
	}
	want, ok := f.apiKeys[login]
	if !ok || want != string(body) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.issued++
	token := fmt.Sprintf("token-%d", f.issued)
	if f.TokenFor != nil {
		token = f.TokenFor(f.issued)
	}
	f.tokens[token] = true
	_, _ = io.WriteString(w, token)
}

func (f *FakeConjurServer) handleSecret(w http.ResponseWriter, r *http.Request, name string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		value, ok := f.secrets[name]
		if !ok {
			http.Error(w, "variable not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write(value)
	case http.MethodPost:
		if _, ok := f.secrets[name]; !ok {
			f.resources["variable"] = append(f.resources["variable"], f.Account+":variable:"+name)
		}
		f.secrets[name] = body
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeConjurServer) handleResources(w http.ResponseWriter, r *http.Request, kind string) {
	q := r.URL.Query()

	f.mu.Lock()
	ids := f.resources[kind]
	if role := q.Get("acting_as"); role != "" {
		ids = f.roleResources[role][kind]
	}
	var matched []string
	for _, id := range ids {
		if search := q.Get("search"); search == "" || strings.Contains(id, search) {
			matched = append(matched, id)
		}
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	rawPage, overridden := f.pageBodies[offset]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if q.Get("count") == "true" {
		_ = json.NewEncoder(w).Encode(map[string]int{"count": len(matched)})
		return
	}
	if overridden {
		_, _ = io.WriteString(w, rawPage)
		return
	}

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = len(matched)
	}
	page := []map[string]string{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		page = append(page, map[string]string{"id": matched[i]})
	}
	_ = json.NewEncoder(w).Encode(page)
}

func (f *FakeConjurServer) handlePolicy(w http.ResponseWriter, r *http.Request, name string, body []byte) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f.mu.Lock()
	f.policies[name] = body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"created_roles": map[string]interface{}{},
		"version":       1,
	})
}

func (f *FakeConjurServer) authorized(w http.ResponseWriter, r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix, suffix = `Token token="`, `"`
	if strings.HasPrefix(header, prefix) && strings.HasSuffix(header, suffix) && len(header) > len(prefix)+len(suffix) {
		raw, err := base64.StdEncoding.DecodeString(header[len(prefix) : len(header)-len(suffix)])
		if err == nil {
			f.mu.Lock()
			ok := f.tokens[string(raw)]
			f.mu.Unlock()
			if ok {
				return true
			}
		}
	}
	w.WriteHeader(http.StatusUnauthorized)
	return false
}

func (f *FakeConjurServer) accountMatches(w http.ResponseWriter, account string) bool {
	if account != f.Account {
		http.Error(w, "unknown account", http.StatusNotFound)
		return false
	}
	return true
}

// splitPath splits an escaped path into unescaped segments.
func splitPath(escaped string) []string {
	parts := strings.Split(strings.Trim(escaped, "/"), "/")
	for i, p := range parts {
		if u, err := url.PathUnescape(p); err == nil {
			parts[i] = u
		}
	}
	return parts
}
