package blockio

import (
	"net"
	"sync"
)

// DefaultBlockSize is the block size used by NewChain.
const DefaultBlockSize = 4096

// Blocks of the default size are pooled across chains.
var blockPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultBlockSize)
		return &b
	},
}

// Chain is a Provider backed by a list of fixed-size blocks. Written data
// is exposed as net.Buffers so it can reach the socket with a single
// vectored write, without being copied into a contiguous buffer first.
//
// A Chain is not safe for concurrent use.
type Chain struct {
	blockSize int
	blocks    [][]byte
	produced  int64
	pooled    bool
}

// NewChain returns a Chain producing blocks of DefaultBlockSize.
func NewChain() *Chain {
	return &Chain{blockSize: DefaultBlockSize, pooled: true}
}

// NewChainSize returns a Chain producing blocks of the given size.
// Sizes other than DefaultBlockSize are allocated directly instead of
// drawing from the shared pool.
func NewChainSize(blockSize int) *Chain {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Chain{blockSize: blockSize, pooled: blockSize == DefaultBlockSize}
}

// NextBlock hands out a fresh block. The block counts toward ByteCount in
// full until ReturnUnused trims it.
func (c *Chain) NextBlock() ([]byte, error) {
	var block []byte
	if c.pooled {
		block = (*blockPool.Get().(*[]byte))[:c.blockSize]
	} else {
		block = make([]byte, c.blockSize)
	}
	c.blocks = append(c.blocks, block)
	c.produced += int64(len(block))
	return block, nil
}

// ReturnUnused trims the last n bytes off the most recently supplied block.
func (c *Chain) ReturnUnused(n int) {
	if n <= 0 || len(c.blocks) == 0 {
		return
	}
	last := len(c.blocks) - 1
	if n > len(c.blocks[last]) {
		n = len(c.blocks[last])
	}
	c.blocks[last] = c.blocks[last][:len(c.blocks[last])-n]
	c.produced -= int64(n)
}

// ByteCount reports bytes supplied minus returned tails.
func (c *Chain) ByteCount() int64 {
	return c.produced
}

// Len reports the written length in bytes.
func (c *Chain) Len() int {
	return int(c.produced)
}

// Buffers returns the written data as net.Buffers. The chain retains
// ownership of the underlying memory; do not use the result after Release.
func (c *Chain) Buffers() net.Buffers {
	bufs := make(net.Buffers, 0, len(c.blocks))
	for _, b := range c.blocks {
		if len(b) > 0 {
			bufs = append(bufs, b)
		}
	}
	return bufs
}

// Bytes flattens the written data into a single slice. Intended for tests
// and small payloads; the hot path should use Buffers.
func (c *Chain) Bytes() []byte {
	out := make([]byte, 0, c.produced)
	for _, b := range c.blocks {
		out = append(out, b...)
	}
	return out
}

// Release puts pooled blocks back and resets the chain for reuse.
func (c *Chain) Release() {
	if c.pooled {
		for i := range c.blocks {
			b := c.blocks[i][:c.blockSize]
			blockPool.Put(&b)
		}
	}
	c.blocks = nil
	c.produced = 0
}

var _ Provider = (*Chain)(nil)
