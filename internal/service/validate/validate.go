package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/medipals/internal/apperrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report 'json' tag names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Struct checks 'validate' tags of s
// Failed fields are reported as *apperrors.ValidationError keyed by dotted JSON path
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("validator misuse: %w", err)
	}

	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fieldPath(fe)] = message(fe)
	}

	return &apperrors.ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from the namespace: "BankDetails.address.city" -> "address.city"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, path, found := strings.Cut(ns, "."); found {
		return path
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return fmt.Sprintf("This field is required when %s is empty", fe.Param())
	case "required_with":
		return fmt.Sprintf("This field is required together with %s", fe.Param())
	case "min":
		return fmt.Sprintf("Value is too short (minimum %s)", fe.Param())
	case "max":
		return fmt.Sprintf("Value is too long (maximum %s)", fe.Param())
	case "len":
		return fmt.Sprintf("Value must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("Value must be one of: %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("Value must match date format %s", fe.Param())
	default:
		return "Invalid value"
	}
}
