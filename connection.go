package redpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pior/redpipe/resp"
)

const readChunkSize = 4096

// Connection runs the pipelined protocol over a single net.Conn.
//
// Any number of goroutines may send batches concurrently; each blocks
// until its replies are dispatched or its context ends. One internal
// goroutine owns the receive path: it reads socket bytes into a growable
// buffer, feeds the engine, and keeps whatever the engine did not
// consume.
type Connection struct {
	conn     net.Conn
	engine   *engine
	table    *callTable
	log      *zap.Logger
	verbose  bool
	writeMu  sync.Mutex
	closed   atomic.Bool
	lastUsed atomic.Int64
	done     chan struct{}
}

// NewConnection wraps an established net.Conn and starts the receive
// loop. The caller hands over ownership of conn; closing the Connection
// closes it.
func NewConnection(conn net.Conn, config Config) *Connection {
	c := &Connection{
		conn:    conn,
		table:   newCallTable(),
		log:     config.logger(),
		verbose: config.Verbose,
		done:    make(chan struct{}),
	}
	c.engine = newEngine(c.table, c.log, c.verbose)
	c.touch()
	go c.readLoop()
	return c
}

// Dial connects to addr and returns a running Connection.
func Dial(ctx context.Context, addr string, config Config) (*Connection, error) {
	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConnection(conn, config), nil
}

// Pipeline sends batch and blocks until all of its replies arrive, the
// context ends, or the connection dies. Replies are delivered in batch
// order. On a reply-count mismatch the returned error is a
// *ResponseMismatchError and the decoded replies are still returned.
func (c *Connection) Pipeline(ctx context.Context, batch *resp.CommandBatch) (*resp.ReplyBatch, error) {
	bufs, err := batch.Buffers()
	if err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	id := c.table.register()
	if c.verbose {
		c.log.Debug("sending command batch", zap.Int("commands", batch.Len()))
	}

	// Queue push and socket write form one critical section. The entry
	// must be queued before the bytes can reach the wire, and no other
	// sender may write in between: queue order is the only correlation
	// key, so wire order must equal push order.
	c.writeMu.Lock()
	if !c.engine.registerBatch(id, batch.Len()) {
		c.writeMu.Unlock()
		c.table.remove(id)
		return nil, ErrConnectionClosed
	}
	_, werr := bufs.WriteTo(c.conn)
	c.writeMu.Unlock()
	if werr != nil {
		// The reader will tear everything down; make sure this call
		// does not wait for it.
		_ = c.table.fail(id, fmt.Errorf("redpipe: write: %w", werr))
		c.closeConn()
		replies, err := c.table.wait(ctx, id)
		return replies, err
	}

	replies, err := c.table.wait(ctx, id)
	c.touch()
	return replies, err
}

// Do sends a single command and returns its reply. A reply of type error
// from the server is returned as the Reply, not as a Go error.
func (c *Connection) Do(ctx context.Context, args ...string) (*resp.Reply, error) {
	batch := resp.NewCommandBatch()
	if err := batch.Add(args...); err != nil {
		return nil, err
	}
	replies, err := c.Pipeline(ctx, batch)
	if err != nil {
		return nil, err
	}
	return replies.Reply(0), nil
}

// Ping checks connection liveness with a PING round trip.
func (c *Connection) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, "PING")
	if err != nil {
		return err
	}
	if reply.IsError() {
		return fmt.Errorf("redpipe: ping: %s", reply.Str)
	}
	return nil
}

// readLoop is the single owner of the receive path.
func (c *Connection) readLoop() {
	defer close(c.done)

	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			used, ferr := c.engine.feed(buf)
			buf = buf[:copy(buf, buf[used:])]

			switch {
			case ferr == nil, errors.Is(ferr, ErrNotEnoughData):
				// Wait for more bytes.
			case errors.Is(ferr, ErrTryOtherProtocol):
				// On a dedicated client connection there is no other
				// protocol handler to offer the bytes to.
				c.teardown(ErrTryOtherProtocol)
				return
			default:
				c.teardown(ferr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = ErrConnectionClosed
			}
			c.teardown(err)
			return
		}
	}
}

// teardown closes the socket and fails every pending call with cause.
// Runs on the receive goroutine, which owns the engine's parse state.
func (c *Connection) teardown(cause error) {
	c.closeConn()
	if !errors.Is(cause, ErrConnectionClosed) {
		c.log.Warn("tearing down connection", zap.Error(cause))
		// Waiters see why the connection died, classified as a close.
		cause = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}
	c.engine.teardown(cause)
}

func (c *Connection) closeConn() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// Close shuts the connection down. Pending calls fail with
// ErrConnectionClosed. Blocks until the receive loop has finished
// failing them.
func (c *Connection) Close() error {
	c.closeConn()
	<-c.done
	return nil
}

// IsClosed reports whether the connection has been closed or torn down.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// LastUsed returns when a call last completed on this connection.
func (c *Connection) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

// Stats returns a snapshot of the connection's engine counters.
func (c *Connection) Stats() EngineStats {
	return c.engine.stats.snapshot()
}

func (c *Connection) touch() {
	c.lastUsed.Store(time.Now().UnixNano())
}
