package redpipe

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	// Give the server time to start
	time.Sleep(10 * time.Millisecond)

	return listener.Addr().String()
}

// respondAfter reads the given number of commands, then writes the
// scripted chunks verbatim with a short pause between them. A chunk may
// hold several protocol replies, or a fragment of one, so tests control
// how the reply stream is split across reads.
func respondAfter(commands int, chunks ...string) func(conn net.Conn) {
	return func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		for i := 0; i < commands; i++ {
			if err := discardCommand(reader); err != nil {
				return
			}
		}
		for i, chunk := range chunks {
			if i > 0 {
				time.Sleep(5 * time.Millisecond)
			}
			if _, err := conn.Write([]byte(chunk)); err != nil {
				return
			}
		}
	}
}

// discardCommand reads and drops one serialized command array.
func discardCommand(reader *bufio.Reader) error {
	_, err := readCommand(reader)
	return err
}

// readCommand reads one serialized command array and returns its
// arguments.
func readCommand(reader *bufio.Reader) ([]string, error) {
	header, err := reader.ReadString('\n') // *<n>\r\n
	if err != nil {
		return nil, err
	}
	n := 0
	for _, c := range header[1 : len(header)-2] {
		n = n*10 + int(c-'0')
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		// $<len>\r\n followed by <data>\r\n
		if _, err := reader.ReadString('\n'); err != nil {
			return nil, err
		}
		data, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		args = append(args, data[:len(data)-2])
	}
	return args, nil
}

// echoReader answers each incoming command with a bulk string holding
// its last argument, so interleaving bugs show up as mismatched values.
type echoReader struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newEchoReader(conn net.Conn) *echoReader {
	return &echoReader{conn: conn, reader: bufio.NewReader(conn)}
}

func (e *echoReader) echoOne() error {
	args, err := readCommand(e.reader)
	if err != nil {
		return err
	}
	last := ""
	if len(args) > 0 {
		last = args[len(args)-1]
	}
	_, err = fmt.Fprintf(e.conn, "$%d\r\n%s\r\n", len(last), last)
	return err
}

func newTestEngine() (*engine, *callTable) {
	table := newCallTable()
	return newEngine(table, zap.NewNop(), false), table
}
