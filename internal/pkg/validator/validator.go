// Package validator wraps go-playground/validator for declarative struct
// validation with a stable sentinel error. Tags such as `validate:"required"`
// or `validate:"eth_addr"` annotate input structs; Validate reports every
// failing field behind ErrValidationFailed.
package validator

import (
	"errors"
	"fmt"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the root of the error chain returned when any field
// fails validation, so callers can match with errors.Is regardless of how
// many fields failed.
var ErrValidationFailed = errors.New("struct validation failed")

// validate is the singleton go-playground instance, built on package load.
var validate *gvalidator.Validate

// errStringFormat describes a single failing field.
//
// Example: "'Address': value '0x' does not meet the requirements for the 'eth_addr' validation"
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func init() {
	validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())
}

// formatError converts raw validator errors into a joined error rooted at
// ErrValidationFailed. Non-validation errors pass through unchanged.
func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Field(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks the given struct against its validation tags. It returns
// nil when every field passes, otherwise an error chain starting with
// ErrValidationFailed and one formatted entry per failing field.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}
