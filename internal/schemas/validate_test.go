package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string"},
		"count": {"type": "integer", "minimum": 0}
	}
}`

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(testSchema, []byte(`{"title": "Neo Portrait", "count": 2}`)))
}

func TestValidate_MissingField(t *testing.T) {
	err := Validate(testSchema, []byte(`{"count": 2}`))
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, "(root)", ve.Errors[0].Field)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidate_WrongType(t *testing.T) {
	err := Validate(testSchema, []byte(`{"title": "x", "count": "two"}`))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "count", ve.Errors[0].Field)
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(testSchema, []byte(`{ invalid json }`))
	require.Error(t, err)

	var le *SchemaLoadError
	assert.True(t, errors.As(err, &le))
}

func TestValidate_MalformedSchema(t *testing.T) {
	err := Validate(`{"type": 12}`, []byte(`{}`))
	var le *SchemaLoadError
	require.True(t, errors.As(err, &le))
	assert.Contains(t, le.Error(), "failed to load schema")
}
