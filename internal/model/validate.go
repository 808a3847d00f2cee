package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared across the package. No custom validations are
// registered after init, so concurrent use is safe.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the tag-driven checks and flattens the first
// failure into a single error for the boundary logs.
func validateStruct(kind string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("invalid %s: field %s failed on %q", kind, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("invalid %s: %w", kind, err)
}
