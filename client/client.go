package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/foomo/snippetserver/pkg/handler"
	"github.com/foomo/snippetserver/pkg/utils"
	"github.com/foomo/snippetserver/requests"
	"github.com/foomo/snippetserver/responses"
	"github.com/foomo/snippetserver/snippet"
)

// Client a snippet server client
type Client struct {
	t transport
}

// NewHTTPClient constructs a new client to talk to the snippet server at
// server, e.g. "http://127.0.0.1:8080/snippetserver"
func NewHTTPClient(server string, opts ...Option) (*Client, error) {
	if !utils.IsValidURL(server) {
		return nil, errors.New("invalid server url: " + server)
	}
	o := &options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(o)
	}
	return &Client{
		t: NewHTTPTransport(server, o.httpClient),
	}, nil
}

const (
	DefaultConnectionPoolSize = 25
	DefaultWaitTimeout        = 10 * time.Second
)

// NewSocketClient constructs a new client talking the socket protocol to
// server, e.g. "127.0.0.1:8081"
func NewSocketClient(server string, opts ...Option) (*Client, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		return nil, errors.New("invalid server address: " + server)
	}
	o := &options{
		dialTimeout:        5 * time.Second,
		connectionPoolSize: DefaultConnectionPoolSize,
		waitTimeout:        DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.connectionPoolSize < 1 {
		return nil, errors.New("connection pool size must be positive")
	}
	return &Client{
		t: newSocketTransport(server, o.connectionPoolSize, o.dialTimeout, o.waitTimeout),
	}, nil
}

type (
	options struct {
		httpClient         *http.Client
		dialTimeout        time.Duration
		connectionPoolSize int
		waitTimeout        time.Duration
	}
	Option func(*options)
)

func WithHTTPClient(v *http.Client) Option {
	return func(o *options) {
		o.httpClient = v
	}
}

func WithDialTimeout(v time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = v
	}
}

// WithConnectionPoolSize limits the open socket connections
func WithConnectionPoolSize(v int) Option {
	return func(o *options) {
		o.connectionPoolSize = v
	}
}

// WithWaitTimeout bounds the wait for a free socket connection, zero waits forever
func WithWaitTimeout(v time.Duration) Option {
	return func(o *options) {
		o.waitTimeout = v
	}
}

// IsNotFound is true for replies about unknown snippet ids
func IsNotFound(err error) bool {
	var remoteErr *responses.Error
	return errors.As(err, &remoteErr) && remoteErr.Code == responses.CodeNotFound
}

// List all snippets in insertion order
func (c *Client) List(ctx context.Context) (snippets []snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteList, &requests.List{}, &snippets)
	return
}

// Get a snippet, use IsNotFound to check for unknown ids
func (c *Client) Get(ctx context.Context, id string) (s snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteGet, &requests.Get{ID: id}, &s)
	return
}

// Create a snippet
func (c *Client) Create(ctx context.Context, in snippet.Input) (s snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteCreate, &requests.Create{Snippet: in}, &s)
	return
}

// Update a snippet
func (c *Client) Update(ctx context.Context, id string, patch snippet.Patch) error {
	return c.t.call(ctx, handler.RouteUpdate, &requests.Update{ID: id, Patch: patch}, nil)
}

// Delete a snippet
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.t.call(ctx, handler.RouteDelete, &requests.Delete{ID: id}, nil)
}

// Duplicate a snippet
func (c *Client) Duplicate(ctx context.Context, id string) (s snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteDuplicate, &requests.Duplicate{ID: id}, &s)
	return
}

// Search snippets by name, description and tags
func (c *Client) Search(ctx context.Context, query string) (snippets []snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteSearch, &requests.Search{Query: query}, &snippets)
	return
}

// Completions returns the snippets for a document language
func (c *Client) Completions(ctx context.Context, language string) (snippets []snippet.Snippet, err error) {
	err = c.t.call(ctx, handler.RouteCompletions, &requests.Completions{Language: language}, &snippets)
	return
}

// Folders returns the snippets grouped by folder
func (c *Client) Folders(ctx context.Context) (folders []snippet.Folder, err error) {
	err = c.t.call(ctx, handler.RouteFolders, &requests.Folders{}, &folders)
	return
}

// Import adds the serialized snippets in data and returns how many were added
func (c *Client) Import(ctx context.Context, format string, data []byte) (int, error) {
	response := &responses.Import{}
	err := c.t.call(ctx, handler.RouteImport, &requests.Import{Format: format, Data: string(data)}, response)
	return response.Imported, err
}

// Export serializes all snippets
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	response := &responses.Export{}
	if err := c.t.call(ctx, handler.RouteExport, &requests.Export{Format: format}, response); err != nil {
		return nil, err
	}
	return []byte(response.Data), nil
}

// ShutDown closes open connections, socket calls fail afterwards
func (c *Client) ShutDown() {
	c.t.shutdown()
}
