package query

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const cursorSize = 8

// Cursor is an opaque paging position, encoding the id of the last record seen
type Cursor []byte

var EmptyCursor = Cursor{}

// ToCursor builds a cursor pointing at the record with the given id
func ToCursor(id uint64) Cursor {
	return binary.BigEndian.AppendUint64(make(Cursor, 0, cursorSize), id)
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}

// ToBase58 renders the cursor for clients
func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}

// CursorFromBase58 decodes a cursor rendered with ToBase58. An empty string is
// the empty cursor.
func CursorFromBase58(val string) (Cursor, error) {
	if len(val) == 0 {
		return EmptyCursor, nil
	}

	decoded, err := base58.Decode(val)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cursor")
	}
	if len(decoded) != cursorSize {
		return nil, errors.Errorf("invalid cursor length %d", len(decoded))
	}
	return decoded, nil
}
