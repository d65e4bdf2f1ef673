// Package blockio bridges byte-oriented streaming writers to block-oriented
// zero-copy memory providers.
//
// A Provider hands out fixed-size memory blocks on demand and takes back the
// unused tail of the last block when the writer is done. Writer exposes the
// usual io.Writer / io.ByteWriter surface on top of that, so an encoder can
// stream bytes without knowing that its backing memory arrives in chunks.
//
// Chain is the Provider used by the protocol serialization path: it
// accumulates blocks and exposes the written data as net.Buffers for a
// vectored socket write, avoiding an intermediate copy into a contiguous
// buffer.
//
// Writer instances are not safe for concurrent use. One Writer belongs to
// exactly one in-progress serialization.
package blockio
