package tuple

import "github.com/cockroachdb/errors"

// ErrNoSuchField is returned when a field index or name does not exist
// in a TupleDesc.
var ErrNoSuchField = errors.New("no such field")

// FieldDesc names and types a single column. StringMaxLen is only
// meaningful when Type == StringType; it is the declared maximum byte
// length a STRING value for this column may take, and therefore the
// fixed on-disk width for that column (plus the 4-byte length prefix).
type FieldDesc struct {
	Type         FieldType
	Name         string
	StringMaxLen int
}

// IntFieldDesc builds an INT column descriptor.
func IntFieldDesc(name string) FieldDesc {
	return FieldDesc{Type: IntType, Name: name}
}

// StringFieldDesc builds a STRING column descriptor with the given
// maximum length.
func StringFieldDesc(name string, maxLen int) FieldDesc {
	return FieldDesc{Type: StringType, Name: name, StringMaxLen: maxLen}
}

// TupleDesc is the ordered, immutable schema shared by every tuple in a
// table. Two TupleDescs are equal when they have the same number of
// fields and the same field types (and, for STRING fields, the same
// max length, since that determines the fixed on-disk width) in the
// same order; names are not compared.
type TupleDesc struct {
	fields []FieldDesc
}

// NewTupleDesc builds a TupleDesc from the given field descriptors. It
// panics if fields is empty, mirroring the "length >= 1" invariant
// spec.md places on TupleDesc — a schema with zero fields can never
// occur in a well-formed table and is a programmer error, not a
// recoverable runtime condition.
func NewTupleDesc(fields ...FieldDesc) TupleDesc {
	if len(fields) == 0 {
		panic("tuple: TupleDesc must have at least one field")
	}
	cp := make([]FieldDesc, len(fields))
	copy(cp, fields)
	return TupleDesc{fields: cp}
}

func (d TupleDesc) NumFields() int { return len(d.fields) }

func (d TupleDesc) Field(i int) (FieldDesc, error) {
	if i < 0 || i >= len(d.fields) {
		return FieldDesc{}, errors.Wrapf(ErrNoSuchField, "field index %d", i)
	}
	return d.fields[i], nil
}

func (d TupleDesc) FieldType(i int) (FieldType, error) {
	f, err := d.Field(i)
	return f.Type, err
}

func (d TupleDesc) FieldName(i int) (string, error) {
	f, err := d.Field(i)
	return f.Name, err
}

// IndexForName returns the index of the first field with the given
// name.
func (d TupleDesc) IndexForName(name string) (int, error) {
	for i, f := range d.fields {
		if f.Name == name {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrNoSuchField, "field name %q", name)
}

// Size is the fixed on-disk width of a tuple with this schema: the sum
// of each field's serialized width.
func (d TupleDesc) Size() int {
	size := 0
	for _, f := range d.fields {
		size += fieldWidth(f)
	}
	return size
}

// Equals compares field-type (and, for STRING, max-length) sequences
// only, per spec.md §3.
func (d TupleDesc) Equals(other TupleDesc) bool {
	if len(d.fields) != len(other.fields) {
		return false
	}
	for i, f := range d.fields {
		o := other.fields[i]
		if f.Type != o.Type {
			return false
		}
		if f.Type == StringType && f.StringMaxLen != o.StringMaxLen {
			return false
		}
	}
	return true
}

func fieldWidth(f FieldDesc) int {
	switch f.Type {
	case IntType:
		return IntLen
	case StringType:
		return IntLen + f.StringMaxLen
	default:
		return 0
	}
}
