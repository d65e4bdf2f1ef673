package redpipe

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/pior/redpipe/resp"
)

// serverPool wraps a pool with its server address.
type serverPool struct {
	addr           string
	pool           *connPool
	circuitBreaker CircuitBreaker // nil if not configured
}

// Client pipelines command batches over pooled connections, routing each
// batch to a server by its key.
type Client struct {
	servers  Servers
	selector ServerSelector
	config   Config

	// Multi-pool management
	mu    sync.RWMutex
	pools map[string]*serverPool

	// Health check management
	stopHealthCheck chan struct{}
}

// NewClient creates a client for the given servers.
// For a single server, use: NewClient(NewStaticServers("host:port"), config)
func NewClient(servers Servers, config Config) (*Client, error) {
	if len(servers.List()) == 0 {
		return nil, ErrNoServers
	}
	if config.MaxSize <= 0 {
		return nil, fmt.Errorf("redpipe: MaxSize must be > 0")
	}

	selector := config.Selector
	if selector == nil {
		selector = DefaultServerSelector
	}
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{}
	}

	client := &Client{
		servers:         servers,
		selector:        selector,
		config:          config,
		pools:           make(map[string]*serverPool),
		stopHealthCheck: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Pipeline sends batch to the server selected for key and waits for its
// replies.
func (c *Client) Pipeline(ctx context.Context, key string, batch *resp.CommandBatch) (*resp.ReplyBatch, error) {
	sp, err := c.getPoolForKey(key)
	if err != nil {
		return nil, err
	}

	if sp.circuitBreaker != nil {
		return sp.circuitBreaker.Execute(func() (*resp.ReplyBatch, error) {
			return c.execBatch(ctx, sp, batch)
		})
	}
	return c.execBatch(ctx, sp, batch)
}

// Do sends a single command, routed by its first argument after the
// command name (the key for most commands), and returns its reply.
func (c *Client) Do(ctx context.Context, args ...string) (*resp.Reply, error) {
	if len(args) == 0 {
		return nil, &resp.EncodingError{Message: "empty command"}
	}
	key := args[0]
	if len(args) > 1 {
		key = args[1]
	}

	batch := resp.NewCommandBatch()
	if err := batch.Add(args...); err != nil {
		return nil, err
	}
	replies, err := c.Pipeline(ctx, key, batch)
	if err != nil {
		return nil, err
	}
	return replies.Reply(0), nil
}

// execBatch runs one batch over a pooled connection. A dead connection is
// destroyed rather than released so the pool replaces it.
func (c *Client) execBatch(ctx context.Context, sp *serverPool, batch *resp.CommandBatch) (*resp.ReplyBatch, error) {
	resource, err := sp.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}

	conn := resource.Value()
	replies, err := conn.Pipeline(ctx, batch)
	if conn.IsClosed() {
		resource.Destroy()
	} else {
		resource.Release()
	}
	return replies, err
}

// selectServerForKey picks the server address for a given key.
func (c *Client) selectServerForKey(key string) (string, error) {
	addrs := c.servers.List()
	if len(addrs) == 0 {
		return "", ErrNoServers
	}
	return addrs[c.selector(key, len(addrs))], nil
}

// getPoolForKey returns the pool for the server that should handle this
// key, creating it lazily.
func (c *Client) getPoolForKey(key string) (*serverPool, error) {
	addr, err := c.selectServerForKey(key)
	if err != nil {
		return nil, err
	}
	return c.getOrCreatePool(addr)
}

func (c *Client) getOrCreatePool(addr string) (*serverPool, error) {
	// Fast path: read lock
	c.mu.RLock()
	sp, exists := c.pools[addr]
	c.mu.RUnlock()
	if exists {
		return sp, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if sp, exists := c.pools[addr]; exists {
		return sp, nil
	}

	constructor := func(ctx context.Context) (*Connection, error) {
		if c.config.constructor != nil {
			return c.config.constructor(addr)
		}
		return Dial(ctx, addr, c.config)
	}

	pool, err := newConnPool(constructor, c.config.MaxSize)
	if err != nil {
		return nil, err
	}

	sp = &serverPool{addr: addr, pool: pool}
	if c.config.NewCircuitBreaker != nil {
		sp.circuitBreaker = c.config.NewCircuitBreaker(addr)
	}
	c.pools[addr] = sp
	return sp, nil
}

// healthCheckLoop periodically checks idle connections for liveness and
// lifecycle limits.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkAllPools()
		}
	}
}

func (c *Client) checkAllPools() {
	c.mu.RLock()
	pools := make([]*serverPool, 0, len(c.pools))
	for _, sp := range c.pools {
		pools = append(pools, sp)
	}
	c.mu.RUnlock()

	for _, sp := range pools {
		c.checkPoolConnections(sp.pool)
	}
}

// checkPoolConnections destroys idle connections that are stale, expired
// or unresponsive.
func (c *Client) checkPoolConnections(pool *connPool) {
	now := time.Now()

	for _, res := range pool.acquireAllIdle() {
		if c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime {
			res.Destroy()
			continue
		}

		if c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime {
			res.Destroy()
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := res.Value().Ping(ctx)
		cancel()
		if err != nil {
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}

// Ping checks every configured server concurrently. The returned error
// combines the failures of all unreachable servers.
func (c *Client) Ping(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var combined error

	for _, addr := range c.servers.List() {
		addr := addr
		g.Go(func() error {
			sp, err := c.getOrCreatePool(addr)
			if err == nil {
				batch := resp.NewCommandBatch()
				if err = batch.Add("PING"); err == nil {
					_, err = c.execBatch(ctx, sp, batch)
				}
			}
			if err != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", addr, err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return combined
}

// Close stops health checking and destroys every pooled connection.
func (c *Client) Close() {
	if c.config.HealthCheckInterval > 0 {
		close(c.stopHealthCheck)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sp := range c.pools {
		sp.pool.close()
	}
}

// ServerPoolStats contains stats for a single server pool.
type ServerPoolStats struct {
	Addr      string
	PoolStats PoolStats
}

// AllPoolStats returns stats for every server pool created so far.
func (c *Client) AllPoolStats() []ServerPoolStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, sp := range c.pools {
		stats = append(stats, ServerPoolStats{
			Addr:      sp.addr,
			PoolStats: sp.pool.stats(),
		})
	}
	return stats
}
