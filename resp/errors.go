package resp

import "errors"

// ErrIncomplete reports that the buffer does not yet hold a complete
// value. It is an expected, recoverable condition: keep the bytes and
// retry once more arrive.
var ErrIncomplete = errors.New("resp: incomplete value")

// ParseError reports a malformed reply stream. Once it occurs the
// position of value boundaries is unknown, so the connection carrying the
// stream must be closed.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "resp: " + e.Message + ": " + e.Err.Error()
	}
	return "resp: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EncodingError reports that an outbound command batch could not be
// serialized. The batch never reaches the wire; the connection is
// unaffected.
type EncodingError struct {
	Message string
}

func (e *EncodingError) Error() string {
	return "resp: " + e.Message
}

// ShouldCloseConnection reports whether err implies the reply stream is
// corrupted beyond recovery.
//
// Returns false for nil, ErrIncomplete and EncodingError; true for
// ParseError and unknown errors (conservative default).
func ShouldCloseConnection(err error) bool {
	if err == nil || errors.Is(err, ErrIncomplete) {
		return false
	}
	var encErr *EncodingError
	return !errors.As(err, &encErr)
}
