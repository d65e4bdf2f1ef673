package resp

import (
	"bytes"
	"errors"
	"strconv"
)

var crlfBytes = []byte(CRLF)

// DecodeValue decodes one reply value from the front of data.
// It returns the value and the number of bytes it occupied.
//
// If data does not yet hold a complete value the error is ErrIncomplete
// and no bytes are considered consumed. A *ParseError means the stream is
// malformed.
func DecodeValue(data []byte) (*Reply, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrIncomplete
	}

	line, lineLen, err := readLine(data)
	if err != nil {
		return nil, 0, err
	}

	switch Type(data[0]) {
	case TypeStatus:
		return &Reply{Type: TypeStatus, Str: string(line)}, lineLen, nil

	case TypeError:
		return &Reply{Type: TypeError, Str: string(line)}, lineLen, nil

	case TypeInteger:
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return nil, 0, &ParseError{Message: "invalid integer " + strconv.Quote(string(line)), Err: err}
		}
		return &Reply{Type: TypeInteger, Int: n}, lineLen, nil

	case TypeBulk:
		return decodeBulk(data, line, lineLen)

	case TypeArray:
		return decodeArray(data, line, lineLen)
	}

	return nil, 0, &ParseError{Message: "unknown type marker " + strconv.QuoteRune(rune(data[0]))}
}

// readLine extracts the payload of the first CRLF-terminated line,
// excluding the type marker and the CRLF. lineLen is the full wire length
// of the line including both.
func readLine(data []byte) (line []byte, lineLen int, err error) {
	idx := bytes.Index(data, crlfBytes)
	if idx == -1 {
		return nil, 0, ErrIncomplete
	}
	if idx == 0 {
		return nil, 0, &ParseError{Message: "empty line"}
	}
	return data[1:idx], idx + len(crlfBytes), nil
}

func decodeBulk(data, line []byte, lineLen int) (*Reply, int, error) {
	size, err := strconv.Atoi(string(line))
	if err != nil {
		return nil, 0, &ParseError{Message: "invalid bulk length " + strconv.Quote(string(line)), Err: err}
	}
	if size < 0 {
		return &Reply{Type: TypeBulk, Nil: true}, lineLen, nil
	}
	if size > MaxBulkSize {
		return nil, 0, &ParseError{Message: "bulk length " + strconv.Itoa(size) + " exceeds limit"}
	}

	total := lineLen + size + len(crlfBytes)
	if len(data) < total {
		return nil, 0, ErrIncomplete
	}
	payload := data[lineLen : lineLen+size]
	if !bytes.Equal(data[lineLen+size:total], crlfBytes) {
		return nil, 0, &ParseError{Message: "bulk data not CRLF-terminated"}
	}

	// Copy out of the read buffer: the caller reuses it for the next read.
	body := make([]byte, size)
	copy(body, payload)
	return &Reply{Type: TypeBulk, Data: body}, total, nil
}

func decodeArray(data, line []byte, lineLen int) (*Reply, int, error) {
	count, err := strconv.Atoi(string(line))
	if err != nil {
		return nil, 0, &ParseError{Message: "invalid array length " + strconv.Quote(string(line)), Err: err}
	}
	if count < 0 {
		return &Reply{Type: TypeArray, Nil: true}, lineLen, nil
	}

	elems := make([]*Reply, 0, count)
	consumed := lineLen
	for i := 0; i < count; i++ {
		elem, n, err := DecodeValue(data[consumed:])
		if err != nil {
			// ErrIncomplete propagates as-is: the whole array is
			// re-decoded once more bytes arrive.
			return nil, 0, err
		}
		elems = append(elems, elem)
		consumed += n
	}
	return &Reply{Type: TypeArray, Elems: elems}, consumed, nil
}

// DecodeBatch decodes complete reply values from data into batch until it
// holds want replies or data runs out. It returns the number of bytes
// consumed, which covers complete values only; bytes of a trailing partial
// value stay in data.
//
// batch carries progress across calls: feeding the remainder of a stream
// continues where the previous call stopped, with no re-parsing.
func DecodeBatch(data []byte, batch *ReplyBatch, want int) (consumed int, complete bool, err error) {
	for batch.Len() < want {
		reply, n, err := DecodeValue(data[consumed:])
		if errors.Is(err, ErrIncomplete) {
			return consumed, false, nil
		}
		if err != nil {
			return consumed, false, err
		}
		batch.append(reply)
		consumed += n
	}
	return consumed, true, nil
}
