package resp

import "strconv"

// Reply is one decoded reply value. It is a plain data container; decoding
// lives in DecodeValue and DecodeBatch.
//
// Which fields are meaningful depends on Type:
//
//   - TypeStatus, TypeError: Str
//   - TypeInteger: Int
//   - TypeBulk: Data (nil for a null bulk), Nil
//   - TypeArray: Elems (nil for a null array), Nil
type Reply struct {
	Type  Type
	Str   string
	Int   int64
	Data  []byte
	Elems []*Reply
	Nil   bool
}

// IsError reports whether the server answered this value with an error.
func (r *Reply) IsError() bool {
	return r.Type == TypeError
}

// Text returns the value as a string where that makes sense: status and
// error text, bulk data, or the decimal form of an integer.
func (r *Reply) Text() string {
	switch r.Type {
	case TypeStatus, TypeError:
		return r.Str
	case TypeBulk:
		return string(r.Data)
	case TypeInteger:
		return strconv.FormatInt(r.Int, 10)
	}
	return ""
}

// ReplyBatch is the ordered sequence of replies matched to one command
// batch. It is either fully decoded and handed to a caller, or still being
// assembled by the receive path; it is never delivered in part.
type ReplyBatch struct {
	replies []*Reply
}

// Len returns the number of decoded replies.
func (b *ReplyBatch) Len() int {
	return len(b.replies)
}

// Replies returns the decoded replies in arrival order.
func (b *ReplyBatch) Replies() []*Reply {
	return b.replies
}

// Reply returns the i-th reply. It panics if i is out of range, matching
// slice semantics.
func (b *ReplyBatch) Reply(i int) *Reply {
	return b.replies[i]
}

func (b *ReplyBatch) append(r *Reply) {
	b.replies = append(b.replies, r)
}
