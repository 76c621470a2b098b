package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateArgs(t *testing.T) {
	desc := Descriptor{
		Name: "test__typed",
		Params: map[string]Param{
			"name":  {Type: TypeString, Required: true},
			"count": {Type: TypeInteger},
			"ratio": {Type: TypeNumber},
			"flag":  {Type: TypeBoolean},
			"tags":  {Type: TypeArray},
		},
	}

	// Valid call, including the float64 shape JSON decoding produces for
	// integers.
	err := validateArgs(map[string]any{
		"name":  "x",
		"count": float64(3),
		"ratio": 0.5,
		"flag":  true,
		"tags":  []any{"a"},
	}, desc)
	assert.NoError(t, err)

	// Missing required field.
	err = validateArgs(map[string]any{"count": 1}, desc)
	assert.Error(t, err)
	vErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "name", vErr.Field)

	// Non-integral float is not an integer.
	err = validateArgs(map[string]any{"name": "x", "count": 1.5}, desc)
	assert.Error(t, err)

	// Wrong type.
	err = validateArgs(map[string]any{"name": 42}, desc)
	assert.Error(t, err)

	// Undeclared extras pass through.
	err = validateArgs(map[string]any{"name": "x", "extra": struct{}{}}, desc)
	assert.NoError(t, err)
}
