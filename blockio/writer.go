package blockio

import (
	"errors"
	"io"
)

var (
	// ErrBlocksExhausted is returned when a Provider cannot supply another
	// block. The write fails; bytes already written remain valid.
	ErrBlocksExhausted = errors.New("blockio: block provider exhausted")

	// ErrUnsupportedSeek is returned for any Seek other than
	// Seek(0, io.SeekCurrent).
	ErrUnsupportedSeek = errors.New("blockio: only Seek(0, io.SeekCurrent) is supported")
)

// Provider supplies writable memory blocks and reclaims unwritten tails.
type Provider interface {
	// NextBlock returns the next writable block. Blocks must be non-empty.
	NextBlock() ([]byte, error)

	// ReturnUnused gives back the last n bytes of the most recently
	// supplied block, which were never written.
	ReturnUnused(n int)

	// ByteCount reports the total bytes supplied so far, minus any
	// returned tails.
	ByteCount() int64
}

// Writer adapts a Provider to byte-oriented writing. It holds at most one
// checked-out block (the current write window) at a time.
//
// Close returns the unused tail of any open window to the Provider. Callers
// must Close (or defer Close) once writing is done; until then the
// Provider's byte count includes the unwritten tail.
type Writer struct {
	provider Provider
	window   []byte
	pos      int
}

// NewWriter returns a Writer drawing blocks from p. The Writer starts with
// no window; the first write requests one.
func NewWriter(p Provider) *Writer {
	return &Writer{provider: p}
}

// WriteByte writes a single byte, requesting a new block from the Provider
// when the current window is full or absent.
func (w *Writer) WriteByte(c byte) error {
	if w.pos == len(w.window) {
		block, err := w.provider.NextBlock()
		if err != nil {
			w.window = nil
			w.pos = 0
			return err
		}
		w.window = block
		w.pos = 0
	}
	w.window[w.pos] = c
	w.pos++
	return nil
}

// Write writes p, spanning as many blocks as needed. On a Provider failure
// it reports how many bytes made it into provider memory.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if w.pos == len(w.window) {
			block, err := w.provider.NextBlock()
			if err != nil {
				w.window = nil
				w.pos = 0
				return written, err
			}
			w.window = block
			w.pos = 0
		}
		n := copy(w.window[w.pos:], p[written:])
		w.pos += n
		written += n
	}
	return written, nil
}

// WriteString writes s without converting it to a byte slice first.
func (w *Writer) WriteString(s string) (int, error) {
	written := 0
	for written < len(s) {
		if w.pos == len(w.window) {
			block, err := w.provider.NextBlock()
			if err != nil {
				w.window = nil
				w.pos = 0
				return written, err
			}
			w.window = block
			w.pos = 0
		}
		n := copy(w.window[w.pos:], s[written:])
		w.pos += n
		written += n
	}
	return written, nil
}

// Flush is a no-op: written bytes already live in Provider-owned memory.
func (w *Writer) Flush() error {
	return nil
}

// Seek supports only Seek(0, io.SeekCurrent), which reports the number of
// bytes written so far: the Provider's byte count minus the unused tail of
// the current window.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekCurrent {
		return 0, ErrUnsupportedSeek
	}
	return w.provider.ByteCount() - int64(len(w.window)-w.pos), nil
}

// Close returns the unused tail of the open window, if any, to the
// Provider and clears the window. Safe to call more than once; the tail is
// returned exactly once per open window.
func (w *Writer) Close() error {
	if w.window != nil {
		w.provider.ReturnUnused(len(w.window) - w.pos)
		w.window = nil
		w.pos = 0
	}
	return nil
}

var (
	_ io.Writer     = (*Writer)(nil)
	_ io.ByteWriter = (*Writer)(nil)
	_ io.Seeker     = (*Writer)(nil)
	_ io.Closer     = (*Writer)(nil)
)
