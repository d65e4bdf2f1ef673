package blockio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedProvider hands out caller-defined blocks and records calls.
type scriptedProvider struct {
	blocks   [][]byte
	next     int
	returned []int
	produced int64
}

func (p *scriptedProvider) NextBlock() ([]byte, error) {
	if p.next >= len(p.blocks) {
		return nil, ErrBlocksExhausted
	}
	block := p.blocks[p.next]
	p.next++
	p.produced += int64(len(block))
	return block, nil
}

func (p *scriptedProvider) ReturnUnused(n int) {
	p.returned = append(p.returned, n)
	p.produced -= int64(n)
}

func (p *scriptedProvider) ByteCount() int64 {
	return p.produced
}

func TestWriterSpansBlocks(t *testing.T) {
	// Blocks of size 4 and 8; writing 10 bytes must pull exactly two
	// blocks and give back the 2-byte tail of the second one on Close.
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 4), make([]byte, 8)}}
	w := NewWriter(provider)

	n, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, 2, provider.next)

	require.NoError(t, w.Close())
	require.Equal(t, []int{2}, provider.returned)
	require.EqualValues(t, 10, provider.ByteCount())

	require.Equal(t, "0123", string(provider.blocks[0]))
	require.Equal(t, "456789", string(provider.blocks[1][:6]))
}

func TestWriterWriteByte(t *testing.T) {
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 2), make([]byte, 2)}}
	w := NewWriter(provider)

	for _, c := range []byte("abc") {
		require.NoError(t, w.WriteByte(c))
	}
	require.Error(t, func() error {
		// fourth byte fits, fifth exhausts the provider
		if err := w.WriteByte('d'); err != nil {
			return err
		}
		return w.WriteByte('e')
	}())
	require.NoError(t, w.Close())
	require.Equal(t, "ab", string(provider.blocks[0]))
	require.Equal(t, "cd", string(provider.blocks[1]))
}

func TestWriterExhaustedMidWrite(t *testing.T) {
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 4)}}
	w := NewWriter(provider)

	n, err := w.Write([]byte("0123456789"))
	require.ErrorIs(t, err, ErrBlocksExhausted)
	require.Equal(t, 4, n)

	// No open window after a failed refill, so Close has no tail to return.
	require.NoError(t, w.Close())
	require.Empty(t, provider.returned)
}

func TestWriterSeekReportsOffset(t *testing.T) {
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 8)}}
	w := NewWriter(provider)

	off, err := w.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 0, off)

	_, err = w.WriteString("hello")
	require.NoError(t, err)

	off, err = w.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 5, off)
}

func TestWriterSeekRejectsOtherModes(t *testing.T) {
	w := NewWriter(&scriptedProvider{})

	for _, seek := range []struct {
		offset int64
		whence int
	}{
		{1, io.SeekCurrent},
		{0, io.SeekStart},
		{0, io.SeekEnd},
		{-3, io.SeekCurrent},
	} {
		_, err := w.Seek(seek.offset, seek.whence)
		require.ErrorIs(t, err, ErrUnsupportedSeek)
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 8)}}
	w := NewWriter(provider)

	_, err := w.WriteString("abc")
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Equal(t, []int{5}, provider.returned, "tail returned exactly once")
}

func TestWriterFlushIsNoOp(t *testing.T) {
	provider := &scriptedProvider{blocks: [][]byte{make([]byte, 8)}}
	w := NewWriter(provider)
	_, err := w.WriteString("abc")
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.Equal(t, 1, provider.next)
	require.Empty(t, provider.returned)
}

func TestWriterIntoChain(t *testing.T) {
	chain := NewChainSize(8)
	w := NewWriter(chain)

	payload := bytes.Repeat([]byte("redis"), 10)
	n, err := w.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, w.Close())

	require.Equal(t, payload, chain.Bytes())
	require.Equal(t, len(payload), chain.Len())
}
