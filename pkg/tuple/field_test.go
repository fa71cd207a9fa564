package tuple

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntFieldRoundTrip(t *testing.T) {
	f := IntField{Value: -12345}
	var buf bytes.Buffer
	assert.NoError(t, f.Serialize(&buf))
	assert.Equal(t, IntLen, buf.Len())

	parsed, err := ParseIntField(&buf)
	assert.NoError(t, err)
	assert.Equal(t, f, parsed)
}

func TestStringFieldRoundTrip(t *testing.T) {
	f := StringField{Value: "hello", MaxLen: 10}
	var buf bytes.Buffer
	assert.NoError(t, f.Serialize(&buf))
	assert.Equal(t, f.Len(), buf.Len())

	parsed, err := ParseStringField(&buf, 10)
	assert.NoError(t, err)
	assert.Equal(t, f.Value, parsed.Value)
	assert.Equal(t, f.MaxLen, parsed.MaxLen)
}

func TestStringFieldTooLong(t *testing.T) {
	f := StringField{Value: "too long for this field", MaxLen: 4}
	var buf bytes.Buffer
	err := f.Serialize(&buf)
	assert.Error(t, err)
}

func TestStringFieldEmptyValue(t *testing.T) {
	f := StringField{Value: "", MaxLen: 8}
	var buf bytes.Buffer
	assert.NoError(t, f.Serialize(&buf))

	parsed, err := ParseStringField(&buf, 8)
	assert.NoError(t, err)
	assert.Equal(t, "", parsed.Value)
}

func TestFieldEqualsAcrossTypes(t *testing.T) {
	i := IntField{Value: 1}
	s := StringField{Value: "1", MaxLen: 4}
	assert.False(t, i.fieldEquals(s))
	assert.False(t, s.fieldEquals(i))
	assert.True(t, i.fieldEquals(IntField{Value: 1}))
	assert.False(t, i.fieldEquals(IntField{Value: 2}))
}

func TestFieldTypeString(t *testing.T) {
	assert.Equal(t, "int", IntType.String())
	assert.Equal(t, "string", StringType.String())
}
