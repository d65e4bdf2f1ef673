package resp

import (
	"net"
	"strconv"

	"github.com/pior/redpipe/blockio"
)

// CommandBatch is an ordered group of commands pipelined on one
// connection. Each command is serialized the moment it is added, through a
// block writer into zero-copy blocks, so Buffers can hand the bytes to the
// socket without a further copy.
//
// Len is the number of commands and therefore the number of replies the
// batch expects back. A CommandBatch is not safe for concurrent use.
type CommandBatch struct {
	chain  *blockio.Chain
	writer *blockio.Writer
	count  int
	sealed bool
}

// NewCommandBatch returns an empty batch.
func NewCommandBatch() *CommandBatch {
	chain := blockio.NewChain()
	return &CommandBatch{
		chain:  chain,
		writer: blockio.NewWriter(chain),
	}
}

// Add appends one command, given as its name followed by arguments, and
// serializes it immediately. A command with no parts at all is an
// encoding error.
func (b *CommandBatch) Add(args ...string) error {
	if b.sealed {
		return &EncodingError{Message: "batch already serialized"}
	}
	if len(args) == 0 {
		return &EncodingError{Message: "empty command"}
	}

	// *<n>\r\n then each argument as $<len>\r\n<arg>\r\n
	w := b.writer
	if err := w.WriteByte(byte(TypeArray)); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(len(args))); err != nil {
		return err
	}
	if _, err := w.WriteString(CRLF); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteByte(byte(TypeBulk)); err != nil {
			return err
		}
		if _, err := w.WriteString(strconv.Itoa(len(arg))); err != nil {
			return err
		}
		if _, err := w.WriteString(CRLF); err != nil {
			return err
		}
		if _, err := w.WriteString(arg); err != nil {
			return err
		}
		if _, err := w.WriteString(CRLF); err != nil {
			return err
		}
	}

	b.count++
	return nil
}

// Len returns the number of commands added so far, which equals the
// number of replies the batch expects.
func (b *CommandBatch) Len() int {
	return b.count
}

// Buffers seals the batch and returns its wire encoding as net.Buffers
// for a vectored write. An empty batch is an encoding error; nothing from
// an empty batch may reach the queue or the wire.
func (b *CommandBatch) Buffers() (net.Buffers, error) {
	if b.count == 0 {
		return nil, &EncodingError{Message: "empty batch"}
	}
	if !b.sealed {
		b.sealed = true
		// Hand the unused tail of the current block back to the chain.
		_ = b.writer.Close()
	}
	return b.chain.Buffers(), nil
}

// Bytes returns the batch's wire encoding as one contiguous slice.
// Convenient for tests; the send path uses Buffers.
func (b *CommandBatch) Bytes() ([]byte, error) {
	if _, err := b.Buffers(); err != nil {
		return nil, err
	}
	return b.chain.Bytes(), nil
}

// Release returns the batch's blocks to the shared pool. The batch and
// any buffers obtained from it must not be used afterwards.
func (b *CommandBatch) Release() {
	b.sealed = true
	_ = b.writer.Close()
	b.chain.Release()
}
