package tuple

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrSchemaMismatch is raised when a tuple's schema does not match the
// page or field being targeted.
var ErrSchemaMismatch = errors.New("tuple schema mismatch")

// Tuple is a single row: a schema, an ordered array of field values
// matching that schema, and an optional RecordID set once the tuple is
// placed on a page.
type Tuple struct {
	Desc     TupleDesc
	Fields   []Field
	RecordID *RecordID
}

// New builds a Tuple for the given schema with all fields unset
// (zero-valued per field type).
func New(desc TupleDesc) *Tuple {
	fields := make([]Field, desc.NumFields())
	for i := 0; i < desc.NumFields(); i++ {
		fd, _ := desc.Field(i)
		if fd.Type == StringType {
			fields[i] = StringField{MaxLen: fd.StringMaxLen}
		} else {
			fields[i] = IntField{}
		}
	}
	return &Tuple{Desc: desc, Fields: fields}
}

// SetField sets the ith field, validating that its type matches the
// schema.
func (t *Tuple) SetField(i int, f Field) error {
	fd, err := t.Desc.Field(i)
	if err != nil {
		return err
	}
	if fd.Type != f.Type() {
		return errors.Wrapf(ErrSchemaMismatch, "field %d: schema wants %s, got %s", i, fd.Type, f.Type())
	}
	t.Fields[i] = f
	return nil
}

func (t *Tuple) Field(i int) (Field, error) {
	if i < 0 || i >= len(t.Fields) {
		return nil, errors.Wrapf(ErrNoSuchField, "field index %d", i)
	}
	return t.Fields[i], nil
}

// Equals compares two tuples by schema and field values, ignoring
// RecordID — this is what the multiset-equality properties in spec.md
// §8 need (two round-tripped or re-inserted copies of "the same"
// tuple may carry different RecordIDs).
func (t *Tuple) Equals(other *Tuple) bool {
	if !t.Desc.Equals(other.Desc) || len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].fieldEquals(other.Fields[i]) {
			return false
		}
	}
	return true
}

// Serialize writes the tuple's fields, in schema order, with no
// header or length prefix beyond what each field contributes.
func (t *Tuple) Serialize(w io.Writer) error {
	for i, f := range t.Fields {
		if err := f.Serialize(w); err != nil {
			return errors.Wrapf(err, "serialize field %d", i)
		}
	}
	return nil
}

// Parse reads a tuple matching desc from r.
func Parse(r io.Reader, desc TupleDesc) (*Tuple, error) {
	t := New(desc)
	for i := 0; i < desc.NumFields(); i++ {
		fd, _ := desc.Field(i)
		var f Field
		var err error
		if fd.Type == StringType {
			f, err = ParseStringField(r, fd.StringMaxLen)
		} else {
			f, err = ParseIntField(r)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse field %d", i)
		}
		t.Fields[i] = f
	}
	return t, nil
}

// Bytes serializes the tuple to a standalone byte slice, sized exactly
// to Desc.Size().
func (t *Tuple) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(t.Desc.Size())
	_ = t.Serialize(&buf)
	return buf.Bytes()
}
