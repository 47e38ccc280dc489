package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate
)

func init() {
	validate = validator.New()
	// report fields by their json or yaml name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	// Field is the path of the first failing field in declaration order
	Field  string
	Fields map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors.
// Fields are keyed by their namespaced path, e.g. "server.port".
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	var first, firstField string
	for _, err := range errs {
		field := fieldPath(err)
		tag := err.Tag()

		var msg string
		switch tag {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "min":
			msg = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gt":
			msg = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			msg = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			msg = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			msg = fmt.Sprintf("%s validation failed on '%s' tag", field, tag)
		}
		fields[field] = msg
		if first == "" {
			first, firstField = msg, field
		}
	}

	return &ValidationError{
		Message: "Validation failed: " + first,
		Field:   firstField,
		Fields:  fields,
	}
}

// fieldPath drops the root struct name from the namespace
func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return err.Field()
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationField returns the first failing field of a ValidationError
func GetValidationField(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Field
	}
	return ""
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}
