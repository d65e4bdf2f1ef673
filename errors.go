package redpipe

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed classifies every pending call failed because
	// its connection went away before the reply arrived.
	ErrConnectionClosed = errors.New("redpipe: connection closed")

	// ErrNotEnoughData is the engine's signal that inbound bytes do not
	// yet complete the batch at the head of the pipeline. The transport
	// should wait for more bytes; the engine never retries on its own.
	ErrNotEnoughData = errors.New("redpipe: not enough data")

	// ErrTryOtherProtocol is returned when bytes arrive on a connection
	// with no pending batch to match them. On a shared listening port
	// this tells the transport to offer the bytes to another protocol's
	// detector; on a dedicated client connection it means the peer is
	// not speaking this protocol.
	ErrTryOtherProtocol = errors.New("redpipe: no pending batch for inbound data")

	// ErrCallInvalid reports a lock attempt on a call that was already
	// resolved (completed, cancelled or timed out). Benign: whoever
	// resolved it already delivered its outcome.
	ErrCallInvalid = errors.New("redpipe: call already resolved")
)

// ResponseMismatchError reports that a fully decoded reply batch did not
// contain the number of replies the command batch expected. The call is
// failed, but the decoded replies are still attached to it.
type ResponseMismatchError struct {
	Got  int
	Want int
}

func (e *ResponseMismatchError) Error() string {
	return fmt.Sprintf("redpipe: response has %d replies, request pipelined %d", e.Got, e.Want)
}
