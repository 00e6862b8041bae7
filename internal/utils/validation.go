package contextutils

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// IsValidUUID reports whether the given string is a well-formed UUID.
// Identifiers are validated but never reformatted: the stored value is
// exactly the string the caller supplied.
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidateStruct runs struct tag validation and returns the first failure
// as a VALIDATION_ERROR with the offending field in the details.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return NewAppError(ErrorCodeValidationError, SeverityWarn, "Validation failed", "field: "+verrs[0].Field())
	}
	return NewAppErrorWithCause(ErrorCodeValidationError, SeverityWarn, "Validation failed", err.Error(), err)
}
