// Package tuple implements the closed set of field types, the tuple
// schema (TupleDesc), and the Tuple value type that every page format
// in this repository (heap pages, B+-tree leaves) serializes.
package tuple

import (
	"encoding/binary"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

// FieldType is one of the two field types this engine supports. There is
// no extensibility point here on purpose: every page format depends on
// being able to compute a field's serialized width without looking at
// its value (IntType) or without looking at anything but the schema's
// declared max length (StringType).
type FieldType int

const (
	IntType FieldType = iota
	StringType
)

func (t FieldType) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	default:
		return "unknown"
	}
}

// IntLen is the on-disk width of an IntField: 4 bytes, two's-complement,
// big-endian.
const IntLen = 4

// Field is a single typed value inside a Tuple. Implementations must
// serialize to exactly Len() bytes and must parse back byte-for-byte
// what they wrote.
type Field interface {
	Type() FieldType
	Len() int
	Serialize(w io.Writer) error
	fieldEquals(other Field) bool
	String() string
}

// IntField is a fixed 4-byte signed integer field.
type IntField struct {
	Value int32
}

func (f IntField) Type() FieldType { return IntType }
func (f IntField) Len() int        { return IntLen }

func (f IntField) Serialize(w io.Writer) error {
	var buf [IntLen]byte
	binary.BigEndian.PutUint32(buf[:], uint32(f.Value))
	_, err := w.Write(buf[:])
	return errors.Wrap(err, "serialize int field")
}

func (f IntField) fieldEquals(other Field) bool {
	o, ok := other.(IntField)
	return ok && o.Value == f.Value
}

func (f IntField) String() string { return strconv.FormatInt(int64(f.Value), 10) }

// ParseIntField reads exactly IntLen bytes from r.
func ParseIntField(r io.Reader) (IntField, error) {
	var buf [IntLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return IntField{}, errors.Wrap(err, "parse int field")
	}
	return IntField{Value: int32(binary.BigEndian.Uint32(buf[:]))}, nil
}

// StringField is a variable-content, fixed-maximum-length field. On the
// wire it is a 4-byte big-endian length prefix followed by exactly
// MaxLen bytes, NUL-padded; Value itself may be shorter than MaxLen.
type StringField struct {
	Value  string
	MaxLen int
}

func (f StringField) Type() FieldType { return StringType }
func (f StringField) Len() int        { return IntLen + f.MaxLen }

func (f StringField) Serialize(w io.Writer) error {
	if len(f.Value) > f.MaxLen {
		return errors.Newf("string field value %q longer than max length %d", f.Value, f.MaxLen)
	}
	var lenBuf [IntLen]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Value)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "serialize string field length")
	}
	padded := make([]byte, f.MaxLen)
	copy(padded, f.Value)
	_, err := w.Write(padded)
	return errors.Wrap(err, "serialize string field value")
}

func (f StringField) fieldEquals(other Field) bool {
	o, ok := other.(StringField)
	return ok && o.Value == f.Value
}

func (f StringField) String() string { return f.Value }

// ParseStringField reads a length-prefixed, NUL-padded string field
// whose maximum length is maxLen.
func ParseStringField(r io.Reader, maxLen int) (StringField, error) {
	var lenBuf [IntLen]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return StringField{}, errors.Wrap(err, "parse string field length")
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > maxLen {
		return StringField{}, errors.Newf("string field length %d exceeds max length %d", n, maxLen)
	}
	padded := make([]byte, maxLen)
	if _, err := io.ReadFull(r, padded); err != nil {
		return StringField{}, errors.Wrap(err, "parse string field value")
	}
	return StringField{Value: string(padded[:n]), MaxLen: maxLen}, nil
}
