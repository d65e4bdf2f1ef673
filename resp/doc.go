// Package resp implements the client side of the Redis serialization
// protocol (RESP2): command serialization and incremental reply decoding.
//
// This package serves as the wire-format foundation for pipelined clients.
// It has no knowledge of connections, queues or callers; it only turns
// command batches into bytes and bytes back into reply values.
//
// # Core Types
//
//   - CommandBatch: an ordered group of commands serialized eagerly into
//     zero-copy blocks, ready for a vectored socket write
//   - Reply: one decoded reply value (status, error, integer, bulk, array)
//   - ReplyBatch: the ordered replies matched to one CommandBatch
//
// # Decoding
//
// DecodeValue decodes a single reply value from the front of a byte slice
// and reports how many bytes it occupied:
//
//	reply, n, err := resp.DecodeValue(data)
//	if errors.Is(err, resp.ErrIncomplete) {
//	    // wait for more bytes; nothing was consumed
//	}
//
// DecodeBatch sequences DecodeValue calls until the wanted reply count is
// reached, appending into a caller-owned ReplyBatch. Because the partially
// built batch lives with the caller, decoding resumes after new bytes
// arrive without re-parsing anything:
//
//	n, complete, err := resp.DecodeBatch(data, &batch, want)
//
// Bytes of an incomplete trailing value are never consumed; the caller
// keeps them and retries with more data appended.
//
// # Errors
//
// ErrIncomplete is the expected "need more bytes" signal. A *ParseError
// means the stream is malformed and the connection should be closed; see
// ShouldCloseConnection.
package resp
