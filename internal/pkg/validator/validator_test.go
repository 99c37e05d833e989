package validator

import (
	"errors"
	"testing"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorInitialization(t *testing.T) {
	t.Run("should initialize validator instance", func(t *testing.T) {
		assert.NotNil(t, validator)
	})

	t.Run("should work correctly after initialization", func(t *testing.T) {
		type SimpleStruct struct {
			Name string `validate:"required"`
		}

		err := validator.Struct(SimpleStruct{Name: "test"})
		assert.NoError(t, err)
	})
}

func TestFormatError(t *testing.T) {
	t.Run("should transform validation errors to formatted errors", func(t *testing.T) {
		testValidator := gvalidator.New()

		type TestStruct struct {
			Name string `validate:"required"`
		}

		err := testValidator.Struct(TestStruct{Name: ""})
		require.Error(t, err)

		formattedErr := formatError(err)

		assert.ErrorIs(t, formattedErr, ErrValidationFailed)
		assert.Contains(t, formattedErr.Error(), "'Name': value '' does not meet the requirements for the 'required' validation")
	})

	t.Run("should return non-validation errors unchanged", func(t *testing.T) {
		plain := errors.New("not a validation error")
		assert.Equal(t, plain, formatError(plain))
	})
}

func TestValidate(t *testing.T) {
	type Config struct {
		Address string `validate:"required,hostname_port"`
		Port    int    `validate:"min=1,max=65535"`
	}

	t.Run("should pass for a valid struct", func(t *testing.T) {
		err := Validate(Config{Address: "127.0.0.1:8334", Port: 8334})
		assert.NoError(t, err)
	})

	t.Run("should fail for a missing required field", func(t *testing.T) {
		err := Validate(Config{Port: 8334})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("should report every failing field", func(t *testing.T) {
		err := Validate(Config{Address: "nonsense", Port: 0})
		require.ErrorIs(t, err, ErrValidationFailed)
		assert.Contains(t, err.Error(), "Address")
		assert.Contains(t, err.Error(), "Port")
	})
}
