package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverSection struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type testConfig struct {
	Name     string        `json:"name" validate:"required"`
	Decision string        `json:"decision" validate:"oneof=allow ask deny"`
	Server   serverSection `yaml:"server"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		err := ValidateStruct(testConfig{Name: "cp", Decision: "ask", Server: serverSection{Port: 3000}})
		assert.NoError(t, err)
	})

	t.Run("fields reported by tag name", func(t *testing.T) {
		err := ValidateStruct(testConfig{Decision: "maybe", Server: serverSection{Port: 70000}})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "name is required", fields["name"])
		assert.Equal(t, "decision must be one of: allow ask deny", fields["decision"])
		assert.Equal(t, "server.port must be at most 65535", fields["server.port"])
		assert.Equal(t, "Validation failed: name is required", err.Error())
		assert.Equal(t, "name", GetValidationField(err))
	})
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(nil))
	assert.True(t, IsValidationError(&ValidationError{Message: "x"}))
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.Empty(t, GetValidationField(assert.AnError))
}
