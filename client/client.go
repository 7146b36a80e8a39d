package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client is a stateless protocol client for the backend's job-queue HTTP
// API: submit a graph, fetch the node schema catalog, poll a job's outputs,
// download a produced artifact.  Every request is single-shot with
// Connection: close; there is no connection reuse and no pipelining.
type Client struct {
	host     string
	port     int
	clientID string
	httpc    *http.Client
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger attaches a structured logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client, e.g. to set timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// New creates a client for a backend at host:port.  Each client carries a
// unique id that tags its submissions for the session.
func New(host string, port int, opts ...Option) *Client {
	c := &Client{
		host:     host,
		port:     port,
		clientID: uuid.New().String(),
		httpc:    &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the unique id tagging this client's submissions.
func (c *Client) ClientID() string { return c.clientID }

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

func (c *Client) url(pathAndQuery string) string {
	return fmt.Sprintf("http://%s%s", c.addr(), pathAndQuery)
}
