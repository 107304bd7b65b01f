package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Brickmii/team-table/pkg/resilience"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 30 * time.Second
)

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry replaces the request retry policy.
func WithRetry(policy resilience.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client wraps the mcp-go client with per-request timeouts, a shared retry
// policy, and tool discovery caching. It is the Go entry point for external
// processes driving a team-table server over stdio or streamable HTTP.
// Transient transport failures are retried here so that the server side can
// stay retry-free.
type Client struct {
	mcpClient client.MCPClient
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient creates a new Client with the given MCP client implementation.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	wrapped := &Client{
		mcpClient: c,
		timeout:   defaultTimeout,
		retry: resilience.DefaultRetryConfig().
			WithInitialDelay(200 * time.Millisecond).
			WithIsRecoverable(transientTransport),
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(wrapped)
	}
	return wrapped
}

// transientTransport treats every request failure as retryable except an
// aborted or expired context, which would only expire again.
func transientTransport(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// NewClientWithStdio creates an MCP client that spawns command and connects
// via its stdin/stdout.
func NewClientWithStdio(command string, args []string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, err
	}
	if err := stdioClient.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(stdioClient); err != nil {
		return nil, err
	}
	return NewClient(stdioClient, opts...), nil
}

// NewClientWithStreamableHTTP creates an MCP client that connects to a
// streamable HTTP endpoint.
func NewClientWithStreamableHTTP(url string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, err
	}
	if err := httpClient.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(httpClient); err != nil {
		return nil, err
	}
	return NewClient(httpClient, opts...), nil
}

func initialize(c client.MCPClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "team-table-client",
		Version: "0.1.0",
	}
	_, err := c.Initialize(ctx, initRequest)
	return err
}

// ListTools retrieves the list of tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	req := mcp.ListToolsRequest{}
	resp, err := c.listToolsWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return c.callToolWithRetry(ctx, req)
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) listToolsWithRetry(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	var res *mcp.ListToolsResult
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		out, err := c.mcpClient.ListTools(reqCtx, req)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) callToolWithRetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var res *mcp.CallToolResult
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		out, err := c.mcpClient.CallTool(reqCtx, req)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
