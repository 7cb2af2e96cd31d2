package session

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Row layout, all integers big-endian:
//
//	version(1) | len(1) key | tokenHash(32) | len(1) userID | len(1) asUserID | createdAt(8) | updatedAt(8)
//
// Version 1 rows end after createdAt.
const (
	schemaV1      uint8 = 1
	schemaCurrent uint8 = 2
	maxFieldLen         = 255
)

// ErrCorrupt is returned by Decode for truncated or over-long rows.
var ErrCorrupt = errors.New("corrupt session row")

// Encode serializes s in the current row layout.
func Encode(s *Session) ([]byte, error) {
	switch {
	case len(s.Key) > maxFieldLen:
		return nil, errors.New("key too long")
	case len(s.UserID) > maxFieldLen:
		return nil, errors.New("userID too long")
	case len(s.AsUserID) > maxFieldLen:
		return nil, errors.New("asUserID too long")
	}

	out := make([]byte, 0, 1+3+len(s.Key)+len(s.UserID)+len(s.AsUserID)+len(s.TokenHash)+16)
	out = append(out, schemaCurrent)
	out = appendString(out, s.Key)
	out = append(out, s.TokenHash[:]...)
	out = appendString(out, s.UserID)
	out = appendString(out, s.AsUserID)
	out = binary.BigEndian.AppendUint64(out, uint64(s.CreatedAt))
	out = binary.BigEndian.AppendUint64(out, uint64(s.UpdatedAt))
	return out, nil
}

// Decode parses a row of any supported version. Version 1 rows have no
// UpdatedAt; it is filled from CreatedAt.
func Decode(data []byte) (*Session, error) {
	r := rowReader{buf: data}

	version := r.readByte()
	if r.err != nil {
		return nil, r.err
	}
	if version != schemaCurrent && version != schemaV1 {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{SchemaVersion: version}
	s.Key = r.readString()
	copy(s.TokenHash[:], r.take(len(s.TokenHash)))
	s.UserID = r.readString()
	s.AsUserID = r.readString()
	s.CreatedAt = r.readInt64()
	s.UpdatedAt = s.CreatedAt
	if version == schemaCurrent {
		s.UpdatedAt = r.readInt64()
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	return s, nil
}

func appendString(out []byte, value string) []byte {
	out = append(out, byte(len(value)))
	return append(out, value...)
}

// rowReader consumes buf front to back. After the first short read every
// call returns zero values and err stays set.
type rowReader struct {
	buf []byte
	err error
}

func (r *rowReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrCorrupt, n, len(r.buf))
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *rowReader) readByte() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *rowReader) readString() string {
	n := r.readByte()
	return string(r.take(int(n)))
}

func (r *rowReader) readInt64() int64 {
	if b := r.take(8); b != nil {
		return int64(binary.BigEndian.Uint64(b))
	}
	return 0
}
