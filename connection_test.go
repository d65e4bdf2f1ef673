package redpipe

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pior/redpipe/resp"
)

func dialTest(t *testing.T, addr string) *Connection {
	t.Helper()
	conn, err := Dial(context.Background(), addr, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectionPipeline(t *testing.T) {
	// Two commands pipelined, both replies in one chunk.
	addr := createListener(t, respondAfter(2, "+OK\r\n$5\r\nvalue\r\n"))
	conn := dialTest(t, addr)

	batch := resp.NewCommandBatch()
	require.NoError(t, batch.Add("SET", "key", "value"))
	require.NoError(t, batch.Add("GET", "key"))

	replies, err := conn.Pipeline(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 2, replies.Len())
	require.Equal(t, "OK", replies.Reply(0).Str)
	require.Equal(t, []byte("value"), replies.Reply(1).Data)

	stats := conn.Stats()
	require.EqualValues(t, 1, stats.BatchesSent)
	require.EqualValues(t, 1, stats.BatchesOK)
}

func TestConnectionPipelineFragmentedReplies(t *testing.T) {
	// The reply stream arrives in three fragments, one of them splitting
	// a bulk string down the middle.
	addr := createListener(t, respondAfter(2,
		"+OK\r\n$5\r\nva",
		"lu",
		"e\r\n",
	))
	conn := dialTest(t, addr)

	batch := resp.NewCommandBatch()
	require.NoError(t, batch.Add("SET", "key", "value"))
	require.NoError(t, batch.Add("GET", "key"))

	replies, err := conn.Pipeline(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 2, replies.Len())
	require.Equal(t, []byte("value"), replies.Reply(1).Data)
}

func TestConnectionDo(t *testing.T) {
	addr := createListener(t, respondAfter(1, "$3\r\nbar\r\n"))
	conn := dialTest(t, addr)

	reply, err := conn.Do(context.Background(), "GET", "foo")
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), reply.Data)
}

func TestConnectionDoServerError(t *testing.T) {
	// A server error reply is data, not a transport failure.
	addr := createListener(t, respondAfter(1, "-ERR wrong number of arguments\r\n"))
	conn := dialTest(t, addr)

	reply, err := conn.Do(context.Background(), "GET")
	require.NoError(t, err)
	require.True(t, reply.IsError())
	require.Contains(t, reply.Str, "wrong number")
}

func TestConnectionPing(t *testing.T) {
	addr := createListener(t, respondAfter(1, "+PONG\r\n"))
	conn := dialTest(t, addr)
	require.NoError(t, conn.Ping(context.Background()))
}

func TestConnectionRejectsEmptyBatch(t *testing.T) {
	addr := createListener(t, nil)
	conn := dialTest(t, addr)

	_, err := conn.Pipeline(context.Background(), resp.NewCommandBatch())
	var encErr *resp.EncodingError
	require.ErrorAs(t, err, &encErr)
	require.Zero(t, conn.Stats().BatchesSent, "nothing queued, nothing sent")
}

func TestConnectionPeerClosesEarly(t *testing.T) {
	// The batch expects 3 replies but the peer sends 2 and closes: the
	// caller must be failed with a connection-closed classification.
	addr := createListener(t, respondAfter(3, "+A\r\n+B\r\n"))
	conn := dialTest(t, addr)

	batch := resp.NewCommandBatch()
	require.NoError(t, batch.Add("GET", "a"))
	require.NoError(t, batch.Add("GET", "b"))
	require.NoError(t, batch.Add("GET", "c"))

	_, err := conn.Pipeline(context.Background(), batch)
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.True(t, conn.IsClosed())
}

func TestConnectionContextCancellation(t *testing.T) {
	// The server never answers; the caller's context decides its fate.
	addr := createListener(t, func(c net.Conn) {
		time.Sleep(time.Second)
	})
	conn := dialTest(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := conn.Do(ctx, "GET", "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The connection itself is still healthy.
	require.False(t, conn.IsClosed())
}

func TestConnectionUnsolicitedBytes(t *testing.T) {
	// The peer talks first, with nothing pipelined: not this protocol.
	addr := createListener(t, func(c net.Conn) {
		_, _ = c.Write([]byte("+HELLO\r\n"))
		time.Sleep(100 * time.Millisecond)
	})
	conn := dialTest(t, addr)

	require.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)

	_, err := conn.Do(context.Background(), "GET", "x")
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnectionMalformedStream(t *testing.T) {
	addr := createListener(t, respondAfter(1, "?this is not resp\r\n"))
	conn := dialTest(t, addr)

	_, err := conn.Do(context.Background(), "GET", "x")
	var parseErr *resp.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
}

func TestConnectionConcurrentFanIn(t *testing.T) {
	// Many goroutines pipeline on one connection; replies echo the
	// request ordinal so any misalignment is caught immediately.
	const callers = 50

	addr := createListener(t, func(c net.Conn) {
		reader := newEchoReader(c)
		for {
			if err := reader.echoOne(); err != nil {
				return
			}
		}
	})
	conn := dialTest(t, addr)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			want := fmt.Sprintf("value-%d", i)
			reply, err := conn.Do(ctx, "ECHO", want)
			if err != nil {
				return err
			}
			if got := string(reply.Data); got != want {
				return fmt.Errorf("got %q, want %q", got, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats := conn.Stats()
	require.EqualValues(t, callers, stats.BatchesSent)
	require.EqualValues(t, callers, stats.BatchesOK)
}

// slowWriteConn stalls every write, widening any window between queueing
// a batch and putting its bytes on the wire.
type slowWriteConn struct {
	net.Conn
}

func (c *slowWriteConn) Write(b []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return c.Conn.Write(b)
}

func TestConnectionContendedSendersKeepWireOrder(t *testing.T) {
	// Queue order is the only correlation key, so the order batches hit
	// the wire must equal the order their entries were queued even when
	// many senders contend for the socket. A sender that queues its
	// entry and is then overtaken on the write would silently receive
	// its successor's replies: the counts match, so nothing else would
	// catch it. The echoed payloads do.
	const callers = 30

	addr := createListener(t, func(c net.Conn) {
		reader := newEchoReader(c)
		for {
			if err := reader.echoOne(); err != nil {
				return
			}
		}
	})

	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn := NewConnection(&slowWriteConn{Conn: raw}, Config{})
	t.Cleanup(func() { conn.Close() })

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			want := fmt.Sprintf("payload-%d", i)
			reply, err := conn.Do(ctx, "ECHO", want)
			if err != nil {
				return err
			}
			if got := string(reply.Data); got != want {
				return fmt.Errorf("reply misdelivered: got %q, want %q", got, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestConnectionCloseFailsPendingCalls(t *testing.T) {
	addr := createListener(t, func(c net.Conn) {
		time.Sleep(time.Second)
	})
	conn := dialTest(t, addr)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Do(context.Background(), "GET", "x")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, conn.Close())
	require.ErrorIs(t, <-done, ErrConnectionClosed)
}
