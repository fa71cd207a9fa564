package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testDesc() TupleDesc {
	return NewTupleDesc(IntFieldDesc("id"), StringFieldDesc("name", 20))
}

func TestTupleDescBasics(t *testing.T) {
	d := testDesc()
	assert.Equal(t, 2, d.NumFields())

	typ, err := d.FieldType(0)
	assert.NoError(t, err)
	assert.Equal(t, IntType, typ)

	name, err := d.FieldName(1)
	assert.NoError(t, err)
	assert.Equal(t, "name", name)

	assert.Equal(t, IntLen+(IntLen+20), d.Size())
}

func TestTupleDescIndexForName(t *testing.T) {
	d := testDesc()
	idx, err := d.IndexForName("name")
	assert.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = d.IndexForName("nope")
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestTupleDescFieldOutOfRange(t *testing.T) {
	d := testDesc()
	_, err := d.Field(5)
	assert.ErrorIs(t, err, ErrNoSuchField)
}

func TestTupleDescEqualsIgnoresNames(t *testing.T) {
	a := NewTupleDesc(IntFieldDesc("id"), StringFieldDesc("payload", 16))
	b := NewTupleDesc(IntFieldDesc("other_id"), StringFieldDesc("other_payload", 16))
	assert.True(t, a.Equals(b))

	c := NewTupleDesc(IntFieldDesc("id"), StringFieldDesc("payload", 32))
	assert.False(t, a.Equals(c))

	dShort := NewTupleDesc(IntFieldDesc("id"))
	assert.False(t, a.Equals(dShort))
}

func TestNewTupleDescPanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() {
		NewTupleDesc()
	})
}
