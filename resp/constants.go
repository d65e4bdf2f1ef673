package resp

// Type identifies a RESP value by its first byte on the wire.
type Type byte

const (
	TypeStatus  Type = '+'
	TypeError   Type = '-'
	TypeInteger Type = ':'
	TypeBulk    Type = '$'
	TypeArray   Type = '*'
)

// Protocol delimiters.
const (
	// CRLF terminates every RESP line.
	CRLF = "\r\n"
)

// MaxBulkSize caps the declared length of a single bulk string. Lengths
// beyond it are treated as a malformed stream rather than an allocation
// request.
const MaxBulkSize = 512 * 1024 * 1024
